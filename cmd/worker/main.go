package main

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/internal/logging"
	"github.com/vultisig/octra-wallet/internal/tasks"
	"github.com/vultisig/octra-wallet/rpc"
	"github.com/vultisig/octra-wallet/service"
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

	sdClient, err := newStatsdClient(*cfg)
	if err != nil {
		panic(err)
	}

	gateway := rpc.NewGatewayFromConfig(*cfg, store, logging.Logger)
	accounts := service.NewAccountService(service.NewNodeClient(gateway), store)
	worker := service.NewWorker(accounts, sdClient)

	redisAddr := cfg.Redis.Host + ":" + cfg.Redis.Port
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Username: cfg.Redis.User,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Logger:      logging.Logger.WithField("service", "worker"),
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)

	logging.Logger.WithFields(logrus.Fields{
		"redis": redisAddr,
		"queue": tasks.QUEUE_NAME,
	}).Info("Starting worker")

	mux := asynq.NewServeMux()
	worker.Register(mux)
	if err := srv.Run(mux); err != nil {
		panic(fmt.Sprintf("could not run worker: %v", err))
	}
}

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
