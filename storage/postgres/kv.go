package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vultisig/octra-wallet/storage"
)

const (
	KV_TABLE      = "kv_store"
	notifyChannel = "walletd_changes"
)

// notification is what travels through pg_notify. Values are not included because NOTIFY
// payloads are capped at 8000 bytes; listeners re-read the current value.
type notification struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
}

func (d *PostgresBackend) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, KV_TABLE)
	var value string
	err := d.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (d *PostgresBackend) Set(ctx context.Context, key string, value string) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, KV_TABLE)
	return d.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
		return notify(ctx, tx, notification{Key: key})
	})
}

func (d *PostgresBackend) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, KV_TABLE)
	return d.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, key)
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return notify(ctx, tx, notification{Key: key, Deleted: true})
	})
}

func (d *PostgresBackend) OnChange(key string, fn func(storage.Change)) func() {
	return d.subs.Add(key, fn)
}

func (d *PostgresBackend) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notify(ctx context.Context, tx pgx.Tx, n notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// listen delivers notifications committed by any process, this one included.
func (d *PostgresBackend) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer close(d.done)
	defer conn.Release()
	for {
		pgn, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.WithError(err).Error("listener stopped")
			return
		}
		var n notification
		if err := json.Unmarshal([]byte(pgn.Payload), &n); err != nil {
			d.logger.WithError(err).Warn("dropping malformed notification")
			continue
		}
		change := storage.Change{Key: n.Key, Deleted: n.Deleted}
		if !n.Deleted {
			value, ok, err := d.Get(ctx, n.Key)
			if err != nil {
				d.logger.WithError(err).WithField("key", n.Key).Warn("fail to read changed key")
				continue
			}
			if !ok {
				change.Deleted = true
			}
			change.NewValue = value
		}
		d.subs.Publish(change)
	}
}
