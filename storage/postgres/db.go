package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/storage"
)

//go:embed migrations/*
var embeddedMigrations embed.FS

type PostgresBackend struct {
	pool   *pgxpool.Pool
	subs   *storage.Subscribers
	logger *logrus.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	backend := &PostgresBackend{
		pool:   pool,
		subs:   storage.NewSubscribers(),
		logger: logrus.WithField("module", "postgres_storage").Logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := backend.Migrate(); err != nil {
		cancel()
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		cancel()
		pool.Close()
		return nil, fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		cancel()
		pool.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}
	go backend.listen(ctx, conn)

	return backend, nil
}

func (d *PostgresBackend) Close() error {
	d.cancel()
	<-d.done
	d.pool.Close()

	return nil
}

func (d *PostgresBackend) Migrate() error {
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(d.pool)
	defer db.Close()
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose up: %w", err)
	}
	return nil
}
