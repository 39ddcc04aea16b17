package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

const lockedValue = "true"

// Store is a persisted store that also reports writes made by other processes.
type Store interface {
	storage.Store
	storage.Notifier
}

// State is the in-memory wallet view of one bridge. A locked state never carries wallets.
type State struct {
	Locked  bool           `json:"locked"`
	Wallets []types.Wallet `json:"-"`
	Active  *types.Wallet  `json:"-"`
}

// Bridge mirrors the lock flag, wallet list and active wallet id of the shared store
// into memory. Locking clears memory at once; unlocking reloads after a short delay.
type Bridge struct {
	store       Store
	reloadDelay time.Duration
	logger      *logrus.Logger

	mu       sync.Mutex
	state    State
	activeID string
	reload   *time.Timer
	// generation invalidates reloads scheduled before the latest lock transition
	generation uint64
	listeners  []func(State)
	cancels    []func()
	closed     bool
}

// New loads the current state and subscribes to changes.
func New(ctx context.Context, store Store, reloadDelay time.Duration) (*Bridge, error) {
	b := &Bridge{
		store:       store,
		reloadDelay: reloadDelay,
		logger:      logrus.WithField("module", "bridge").Logger,
	}
	state, activeID, err := b.read(ctx)
	if err != nil {
		return nil, err
	}
	b.state = state
	b.activeID = activeID
	b.cancels = []func(){
		store.OnChange(storage.KeyWalletLocked, b.onLockChange),
		store.OnChange(storage.KeyWallets, b.onWalletsChange),
		store.OnChange(storage.KeyActiveWalletID, b.onActiveChange),
	}
	return b, nil
}

// Snapshot returns a copy of the current state.
func (b *Bridge) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Bridge) snapshot() State {
	out := State{Locked: b.state.Locked}
	if b.state.Wallets != nil {
		out.Wallets = append([]types.Wallet{}, b.state.Wallets...)
	}
	if b.state.Active != nil {
		a := *b.state.Active
		out.Active = &a
	}
	return out
}

// Subscribe registers fn for every state change. fn runs outside the bridge lock.
func (b *Bridge) Subscribe(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.generation++
	if b.reload != nil {
		b.reload.Stop()
	}
	cancels := b.cancels
	b.cancels = nil
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// read computes the state from the store: locked when a password hash exists and the
// flag is anything but "false".
func (b *Bridge) read(ctx context.Context) (State, string, error) {
	hash, hasHash, err := b.store.Get(ctx, storage.KeyWalletPasswordHash)
	if err != nil {
		return State{}, "", err
	}
	flag, _, err := b.store.Get(ctx, storage.KeyWalletLocked)
	if err != nil {
		return State{}, "", err
	}
	if hasHash && hash != "" && flag != "false" {
		return State{Locked: true}, "", nil
	}
	var wallets []types.Wallet
	if _, err := storage.GetJSON(ctx, b.store, storage.KeyWallets, &wallets); err != nil {
		return State{}, "", err
	}
	activeID, _, err := b.store.Get(ctx, storage.KeyActiveWalletID)
	if err != nil {
		return State{}, "", err
	}
	return State{Wallets: wallets, Active: types.ResolveActive(wallets, activeID)}, activeID, nil
}

func (b *Bridge) onLockChange(c storage.Change) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.generation++
	if b.reload != nil {
		b.reload.Stop()
		b.reload = nil
	}
	if !c.Deleted && c.NewValue == lockedValue {
		b.state = State{Locked: true}
		b.activeID = ""
		b.logger.Info("wallet locked elsewhere, in-memory wallets cleared")
		b.notifyLocked()
		return
	}
	gen := b.generation
	b.reload = time.AfterFunc(b.reloadDelay, func() { b.reloadIfCurrent(gen) })
	b.mu.Unlock()
}

func (b *Bridge) reloadIfCurrent(gen uint64) {
	state, activeID, err := b.read(context.Background())
	b.mu.Lock()
	if b.closed || gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.reload = nil
	if err != nil {
		b.logger.WithError(err).Warn("fail to reload wallets after unlock, staying locked")
		b.state = State{Locked: true}
		b.notifyLocked()
		return
	}
	b.state = state
	b.activeID = activeID
	b.logger.WithField("wallets", len(state.Wallets)).Info("wallets reloaded after unlock")
	b.notifyLocked()
}

func (b *Bridge) onWalletsChange(c storage.Change) {
	var wallets []types.Wallet
	if !c.Deleted && c.NewValue != "" {
		if err := json.Unmarshal([]byte(c.NewValue), &wallets); err != nil {
			b.logger.WithError(err).Warn("ignoring unreadable wallet list")
			return
		}
	}
	b.mu.Lock()
	if b.closed || b.state.Locked {
		b.mu.Unlock()
		return
	}
	b.state.Wallets = wallets
	b.state.Active = types.ResolveActive(wallets, b.activeID)
	b.notifyLocked()
}

func (b *Bridge) onActiveChange(c storage.Change) {
	b.mu.Lock()
	if b.closed || b.state.Locked {
		b.mu.Unlock()
		return
	}
	b.activeID = c.NewValue
	if w := types.FindWallet(b.state.Wallets, c.NewValue); w != nil {
		b.state.Active = w
	}
	b.notifyLocked()
}

// notifyLocked releases mu and fans the new state out to listeners.
func (b *Bridge) notifyLocked() {
	state := b.snapshot()
	listeners := append([]func(State){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}
