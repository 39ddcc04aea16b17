package main

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"

	"github.com/vultisig/octra-wallet/api"
	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/internal/logging"
	"github.com/vultisig/octra-wallet/storage/backend"
)

func main() {
	cfg, err := config.ReadConfig("config")
	if err != nil {
		panic(err)
	}
	logging.SetLevel(cfg.Server.LogLevel)

	store, err := backend.Open(*cfg)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Logger.Errorf("fail to close store, err: %v", err)
		}
	}()

	blobs, err := backend.OpenBlobs(*cfg)
	if err != nil {
		panic(err)
	}

	var client *asynq.Client
	if cfg.Storage.Backend == backend.Redis || cfg.Storage.Backend == "" {
		client = asynq.NewClient(redisOptions(*cfg))
		defer func() {
			if err := client.Close(); err != nil {
				logging.Logger.Errorf("fail to close asynq client, err: %v", err)
			}
		}()
	}

	sdClient, err := newStatsdClient(*cfg)
	if err != nil {
		panic(err)
	}

	server, err := api.NewServer(*cfg, store, blobs, client, sdClient)
	if err != nil {
		panic(err)
	}
	defer server.Close()
	if err := server.StartServer(); err != nil {
		panic(err)
	}
}

func redisOptions(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// newStatsdClient returns a no-op client when no agent is configured.
func newStatsdClient(cfg config.Config) (statsd.ClientInterface, error) {
	if cfg.Datadog.Host == "" {
		return &statsd.NoOpClient{}, nil
	}
	client, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		return nil, fmt.Errorf("fail to create statsd client, err: %w", err)
	}
	return client, nil
}
