package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

var (
	walletA = types.Wallet{Address: "octa", PrivateKey: "ka"}
	walletB = types.Wallet{Address: "octb", PrivateKey: "kb"}
)

func seed(t *testing.T, store *storage.MemoryStorage, locked bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, storage.SetJSON(ctx, store, storage.KeyWallets, []types.Wallet{walletA, walletB}))
	require.NoError(t, store.Set(ctx, storage.KeyActiveWalletID, walletB.Address))
	require.NoError(t, store.Set(ctx, storage.KeyWalletPasswordHash, "$2a$hash"))
	flag := "false"
	if locked {
		flag = "true"
	}
	require.NoError(t, store.Set(ctx, storage.KeyWalletLocked, flag))
}

func newBridge(t *testing.T, store Store, delay time.Duration) *Bridge {
	t.Helper()
	b, err := New(context.Background(), store, delay)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestInitialLoad(t *testing.T) {
	testCases := []struct {
		name       string
		prepare    func(t *testing.T, s *storage.MemoryStorage)
		wantLocked bool
		wantActive string
	}{
		{
			name:       "unlocked",
			prepare:    func(t *testing.T, s *storage.MemoryStorage) { seed(t, s, false) },
			wantActive: walletB.Address,
		},
		{
			name:       "locked",
			prepare:    func(t *testing.T, s *storage.MemoryStorage) { seed(t, s, true) },
			wantLocked: true,
		},
		{
			name: "password without flag is locked",
			prepare: func(t *testing.T, s *storage.MemoryStorage) {
				seed(t, s, false)
				require.NoError(t, s.Delete(context.Background(), storage.KeyWalletLocked))
			},
			wantLocked: true,
		},
		{
			name: "no password is never locked",
			prepare: func(t *testing.T, s *storage.MemoryStorage) {
				require.NoError(t, storage.SetJSON(context.Background(), s, storage.KeyWallets, []types.Wallet{walletA}))
				require.NoError(t, s.Set(context.Background(), storage.KeyWalletLocked, "true"))
			},
			wantActive: walletA.Address,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			tc.prepare(t, store)
			st := newBridge(t, store, time.Millisecond).Snapshot()
			assert.Equal(t, tc.wantLocked, st.Locked)
			if tc.wantLocked {
				assert.Empty(t, st.Wallets)
				assert.Nil(t, st.Active)
				return
			}
			require.NotNil(t, st.Active)
			assert.Equal(t, tc.wantActive, st.Active.Address)
		})
	}
}

func TestLockClearsOtherBridgeImmediately(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, false)
	tab1 := newBridge(t, store, 10*time.Millisecond)
	tab2 := newBridge(t, store, 10*time.Millisecond)
	require.Len(t, tab2.Snapshot().Wallets, 2)

	// tab1 locks by writing the flag
	require.NoError(t, store.Set(context.Background(), storage.KeyWalletLocked, "true"))

	for _, b := range []*Bridge{tab1, tab2} {
		st := b.Snapshot()
		assert.True(t, st.Locked)
		assert.Empty(t, st.Wallets)
		assert.Nil(t, st.Active)
	}
}

func TestUnlockReloadsAfterDelay(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, true)
	b := newBridge(t, store, 30*time.Millisecond)

	require.NoError(t, store.Set(context.Background(), storage.KeyWalletLocked, "false"))
	assert.True(t, b.Snapshot().Locked, "reload must wait for the delay")

	require.Eventually(t, func() bool { return !b.Snapshot().Locked }, time.Second, 5*time.Millisecond)
	st := b.Snapshot()
	assert.Len(t, st.Wallets, 2)
	require.NotNil(t, st.Active)
	assert.Equal(t, walletB.Address, st.Active.Address)
}

func TestLockCancelsPendingReload(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, true)
	b := newBridge(t, store, 30*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storage.KeyWalletLocked, "false"))
	require.NoError(t, store.Set(ctx, storage.KeyWalletLocked, "true"))

	time.Sleep(80 * time.Millisecond)
	st := b.Snapshot()
	assert.True(t, st.Locked)
	assert.Empty(t, st.Wallets)
}

// manualNotifier delivers only the changes a test fires by hand.
type manualNotifier struct {
	*storage.MemoryStorage
	mu  sync.Mutex
	fns map[string]func(storage.Change)
}

func (m *manualNotifier) OnChange(key string, fn func(storage.Change)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns[key] = fn
	return func() {}
}

func (m *manualNotifier) fire(c storage.Change) {
	m.mu.Lock()
	fn := m.fns[c.Key]
	m.mu.Unlock()
	fn(c)
}

func TestReloadRechecksFlag(t *testing.T) {
	mem := storage.NewMemoryStorage()
	seed(t, mem, true)
	store := &manualNotifier{MemoryStorage: mem, fns: map[string]func(storage.Change){}}
	b := newBridge(t, store, 10*time.Millisecond)

	// an unlock notification whose write was already superseded by a lock
	store.fire(storage.Change{Key: storage.KeyWalletLocked, NewValue: "false"})
	time.Sleep(50 * time.Millisecond)

	st := b.Snapshot()
	assert.True(t, st.Locked)
	assert.Empty(t, st.Wallets)
}

func TestMergesChangesOnlyWhileUnlocked(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	seed(t, store, false)
	b := newBridge(t, store, 10*time.Millisecond)

	require.NoError(t, store.Set(ctx, storage.KeyActiveWalletID, walletA.Address))
	assert.Equal(t, walletA.Address, b.Snapshot().Active.Address)

	require.NoError(t, storage.SetJSON(ctx, store, storage.KeyWallets, []types.Wallet{walletB}))
	st := b.Snapshot()
	assert.Len(t, st.Wallets, 1)
	assert.Equal(t, walletB.Address, st.Active.Address)

	// unknown active id keeps the current wallet
	require.NoError(t, store.Set(ctx, storage.KeyActiveWalletID, "octz"))
	assert.Equal(t, walletB.Address, b.Snapshot().Active.Address)

	require.NoError(t, store.Set(ctx, storage.KeyWalletLocked, "true"))
	require.NoError(t, storage.SetJSON(ctx, store, storage.KeyWallets, []types.Wallet{walletA, walletB}))
	require.NoError(t, store.Set(ctx, storage.KeyActiveWalletID, walletA.Address))
	st = b.Snapshot()
	assert.True(t, st.Locked)
	assert.Empty(t, st.Wallets)
	assert.Nil(t, st.Active)
}

func TestSubscribeAndClose(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	seed(t, store, false)
	b, err := New(ctx, store, time.Millisecond)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []bool
	b.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Locked)
	})
	require.NoError(t, store.Set(ctx, storage.KeyWalletLocked, "true"))
	b.Close()
	require.NoError(t, store.Set(ctx, storage.KeyWalletLocked, "false"))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, seen)
}
