package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/octra-wallet/storage"
)

func newTestBackend(t *testing.T) *PostgresBackend {
	dsn := os.Getenv("WALLETD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WALLETD_TEST_POSTGRES_DSN not set")
	}
	b, err := NewPostgresBackend(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPostgresKV(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	got := make(chan storage.Change, 4)
	cancel := b.OnChange(key, func(c storage.Change) { got <- c })
	defer cancel()

	_, ok, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, key, "one"))
	require.NoError(t, b.Set(ctx, key, "two"))
	v, ok, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	for i := 0; i < 2; i++ {
		select {
		case c := <-got:
			assert.Equal(t, key, c.Key)
			assert.False(t, c.Deleted)
		case <-time.After(5 * time.Second):
			t.Fatal("no change notification received")
		}
	}

	require.NoError(t, b.Delete(ctx, key))
	select {
	case c := <-got:
		assert.True(t, c.Deleted)
	case <-time.After(5 * time.Second):
		t.Fatal("no delete notification received")
	}
}
