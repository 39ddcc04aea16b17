package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorageCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStorage()
	assert.ErrorIs(t, s.Set(ctx, "k", "v"), context.Canceled)
	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStorageNotifications(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	var mu sync.Mutex
	var got []Change
	cancel := s.OnChange(KeyWalletLocked, func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})

	require.NoError(t, s.Set(ctx, KeyWalletLocked, "true"))
	require.NoError(t, s.Set(ctx, KeyWallets, "[]"))
	require.NoError(t, s.Set(ctx, KeyWalletLocked, "false"))
	require.NoError(t, s.Delete(ctx, KeyWalletLocked))
	cancel()
	require.NoError(t, s.Set(ctx, KeyWalletLocked, "true"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, Change{Key: KeyWalletLocked, NewValue: "true"}, got[0])
	assert.Equal(t, Change{Key: KeyWalletLocked, OldValue: "true", NewValue: "false"}, got[1])
	assert.Equal(t, Change{Key: KeyWalletLocked, OldValue: "false", Deleted: true}, got[2])
}

func TestSubscriberMayWriteFromCallback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	s.OnChange("a", func(c Change) {
		_ = s.Set(ctx, "b", c.NewValue)
	})
	require.NoError(t, s.Set(ctx, "a", "x"))
	v, ok, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	type item struct {
		Name string `json:"name"`
	}
	var out []item
	ok, err := GetJSON(ctx, s, "items", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, s, "items", []item{{Name: "a"}}))
	ok, err = GetJSON(ctx, s, "items", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []item{{Name: "a"}}, out)

	require.NoError(t, s.Set(ctx, "items", "{broken"))
	_, err = GetJSON(ctx, s, "items", &out)
	assert.Error(t, err)
}

func TestAccountStateKey(t *testing.T) {
	assert.Equal(t, "accountState:oct123", AccountStateKey("oct123"))
}
