package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	lock := NewLockService(store)
	wallets := NewWalletService(store, lock, nil)
	w1 := testWallet(t, 1)
	w2 := testWallet(t, 2)

	_, err := wallets.Add(ctx, w1)
	require.NoError(t, err)

	locked, err := lock.IsLocked(ctx)
	require.NoError(t, err)
	assert.False(t, locked, "no password means never locked")

	assert.Equal(t, types.ErrInvalidPassword, types.CodeOf(lock.SetPassword(ctx, "short")))
	require.NoError(t, lock.SetPassword(ctx, "correct horse"))

	var encrypted []types.EncryptedWallet
	_, err = storage.GetJSON(ctx, store, storage.KeyEncryptedWallets, &encrypted)
	require.NoError(t, err)
	require.Len(t, encrypted, 1)
	assert.NotContains(t, encrypted[0].EncryptedData, w1.PrivateKey)

	// open session seals new wallets right away
	_, err = wallets.Add(ctx, w2)
	require.NoError(t, err)
	_, err = storage.GetJSON(ctx, store, storage.KeyEncryptedWallets, &encrypted)
	require.NoError(t, err)
	assert.Len(t, encrypted, 2)

	require.NoError(t, lock.Lock(ctx))
	locked, err = lock.IsLocked(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = lock.Unlock(ctx, "wrong password")
	assert.Equal(t, types.ErrInvalidPassword, types.CodeOf(err))

	got, err := lock.Unlock(ctx, "correct horse")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	locked, err = lock.IsLocked(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestUnlockRestoresWalletsFromEncryptedCopies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	lock := NewLockService(store)
	w := testWallet(t, 3)
	require.NoError(t, storage.SetJSON(ctx, store, storage.KeyWallets, []types.Wallet{w}))
	require.NoError(t, lock.SetPassword(ctx, "long enough"))
	require.NoError(t, lock.Lock(ctx))

	require.NoError(t, store.Delete(ctx, storage.KeyWallets))
	got, err := NewLockService(store).Unlock(ctx, "long enough")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, w, got[0])

	restored, err := loadWallets(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []types.Wallet{w}, restored)
}

func TestUnlockWithoutPassword(t *testing.T) {
	_, err := NewLockService(storage.NewMemoryStorage()).Unlock(context.Background(), "whatever1")
	assert.Equal(t, types.ErrNoPassword, types.CodeOf(err))
}

func TestSealWithoutSession(t *testing.T) {
	_, sealed, err := NewLockService(storage.NewMemoryStorage()).Seal(testWallet(t, 1))
	require.NoError(t, err)
	assert.False(t, sealed)
}
