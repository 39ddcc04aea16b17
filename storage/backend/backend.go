package backend

import (
	"fmt"

	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/storage"
	"github.com/vultisig/octra-wallet/storage/postgres"
)

const (
	Memory   = "memory"
	Redis    = "redis"
	Postgres = "postgres"
)

// Open returns the key-value store selected by cfg.Storage.Backend.
func Open(cfg config.Config) (storage.KV, error) {
	switch cfg.Storage.Backend {
	case Memory:
		return storage.NewMemoryStorage(), nil
	case Redis, "":
		s, err := storage.NewRedisStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("fail to connect to redis, err: %w", err)
		}
		return s, nil
	case Postgres:
		s, err := postgres.NewPostgresBackend(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("fail to connect to postgres, err: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// OpenBlobs returns nil when no block storage host is configured.
func OpenBlobs(cfg config.Config) (storage.BlobStorage, error) {
	if cfg.BlockStorage.Host == "" {
		return nil, nil
	}
	bs, err := storage.NewBlockStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("fail to create block storage, err: %w", err)
	}
	return bs, nil
}
