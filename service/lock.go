package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/common"
	"github.com/vultisig/octra-wallet/internal/password"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

const minPasswordLength = 8

const (
	lockedValue   = "true"
	unlockedValue = "false"
)

// Sealer encrypts a wallet for the encrypted backup list while a password session is open.
type Sealer interface {
	Seal(w types.Wallet) (types.EncryptedWallet, bool, error)
}

// LockService owns the password hash and the lock flag. Other processes learn about lock
// transitions through the flag key's change notifications.
type LockService struct {
	store  storage.Store
	now    func() time.Time
	logger *logrus.Logger

	mu       sync.RWMutex
	password string
}

func NewLockService(store storage.Store) *LockService {
	return &LockService{
		store:  store,
		now:    time.Now,
		logger: logrus.WithField("service", "lock").Logger,
	}
}

func (l *LockService) HasPassword(ctx context.Context) (bool, error) {
	hash, ok, err := l.store.Get(ctx, storage.KeyWalletPasswordHash)
	if err != nil {
		return false, err
	}
	return ok && hash != "", nil
}

// IsLocked is true when a password exists and the flag is anything but "false".
func (l *LockService) IsLocked(ctx context.Context) (bool, error) {
	has, err := l.HasPassword(ctx)
	if err != nil || !has {
		return false, err
	}
	flag, _, err := l.store.Get(ctx, storage.KeyWalletLocked)
	if err != nil {
		return true, err
	}
	return flag != unlockedValue, nil
}

// SetPassword installs a new password, re-encrypts every wallet with it and leaves the wallet unlocked.
func (l *LockService) SetPassword(ctx context.Context, pw string) error {
	if len(pw) < minPasswordLength {
		return types.NewValidationError(types.ErrInvalidPassword, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	hash, err := password.HashPassword(pw)
	if err != nil {
		return fmt.Errorf("fail to hash password, err: %w", err)
	}
	wallets, err := loadWallets(ctx, l.store)
	if err != nil {
		return err
	}
	encrypted := make([]types.EncryptedWallet, 0, len(wallets))
	for _, w := range wallets {
		ew, err := l.seal(pw, w)
		if err != nil {
			return err
		}
		encrypted = append(encrypted, ew)
	}
	if err := storage.SetJSON(ctx, l.store, storage.KeyEncryptedWallets, encrypted); err != nil {
		return err
	}
	if err := l.store.Set(ctx, storage.KeyWalletPasswordHash, hash); err != nil {
		return err
	}
	l.setSession(pw)
	return l.store.Set(ctx, storage.KeyWalletLocked, unlockedValue)
}

func (l *LockService) Lock(ctx context.Context) error {
	l.setSession("")
	if err := l.store.Set(ctx, storage.KeyWalletLocked, lockedValue); err != nil {
		return fmt.Errorf("fail to lock wallet, err: %w", err)
	}
	l.logger.Info("wallet locked")
	return nil
}

// Unlock verifies pw, restores the wallet list from the encrypted copies when it is gone,
// seals wallets that have no encrypted copy yet, then clears the lock flag.
func (l *LockService) Unlock(ctx context.Context, pw string) ([]types.Wallet, error) {
	hash, ok, err := l.store.Get(ctx, storage.KeyWalletPasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok || hash == "" {
		return nil, types.NewValidationError(types.ErrNoPassword, "no password has been set")
	}
	if !password.CheckPassword(pw, hash) {
		return nil, types.NewValidationError(types.ErrInvalidPassword, "invalid password")
	}

	var encrypted []types.EncryptedWallet
	if _, err := storage.GetJSON(ctx, l.store, storage.KeyEncryptedWallets, &encrypted); err != nil {
		return nil, err
	}
	wallets, err := loadWallets(ctx, l.store)
	if err != nil {
		return nil, err
	}

	if len(wallets) == 0 {
		for _, ew := range encrypted {
			w, err := l.open(pw, ew)
			if err != nil {
				l.logger.WithError(err).WithField("address", ew.Address).Warn("skipping unreadable encrypted wallet")
				continue
			}
			wallets = append(wallets, w)
		}
		if len(wallets) > 0 {
			if err := storage.SetJSON(ctx, l.store, storage.KeyWallets, wallets); err != nil {
				return nil, err
			}
		}
	}

	changed := false
	for _, w := range wallets {
		if findEncrypted(encrypted, w.Address) >= 0 {
			continue
		}
		ew, err := l.seal(pw, w)
		if err != nil {
			return nil, err
		}
		encrypted = append(encrypted, ew)
		changed = true
	}
	if changed {
		if err := storage.SetJSON(ctx, l.store, storage.KeyEncryptedWallets, encrypted); err != nil {
			return nil, err
		}
	}

	l.setSession(pw)
	if err := l.store.Set(ctx, storage.KeyWalletLocked, unlockedValue); err != nil {
		return nil, err
	}
	l.logger.Info("wallet unlocked")
	return wallets, nil
}

// Seal reports false when no password session is open in this process.
func (l *LockService) Seal(w types.Wallet) (types.EncryptedWallet, bool, error) {
	l.mu.RLock()
	pw := l.password
	l.mu.RUnlock()
	if pw == "" {
		return types.EncryptedWallet{}, false, nil
	}
	ew, err := l.seal(pw, w)
	return ew, err == nil, err
}

func (l *LockService) setSession(pw string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.password = pw
}

func (l *LockService) seal(pw string, w types.Wallet) (types.EncryptedWallet, error) {
	plain, err := json.Marshal(w)
	if err != nil {
		return types.EncryptedWallet{}, fmt.Errorf("fail to serialize wallet, err: %w", err)
	}
	sealed, err := common.EncryptGCM(pw, plain)
	if err != nil {
		return types.EncryptedWallet{}, fmt.Errorf("fail to encrypt wallet, err: %w", err)
	}
	return types.EncryptedWallet{
		Address:       w.Address,
		EncryptedData: base64.StdEncoding.EncodeToString(sealed),
		CreatedAt:     l.now().UnixMilli(),
	}, nil
}

func (l *LockService) open(pw string, ew types.EncryptedWallet) (types.Wallet, error) {
	raw, err := base64.StdEncoding.DecodeString(ew.EncryptedData)
	if err != nil {
		return types.Wallet{}, fmt.Errorf("fail to decode encrypted wallet, err: %w", err)
	}
	plain, err := common.DecryptGCM(pw, raw)
	if err != nil {
		return types.Wallet{}, err
	}
	var w types.Wallet
	if err := json.Unmarshal(plain, &w); err != nil {
		return types.Wallet{}, fmt.Errorf("fail to deserialize wallet, err: %w", err)
	}
	return w, nil
}

func findEncrypted(list []types.EncryptedWallet, address string) int {
	for i := range list {
		if list[i].Address == address {
			return i
		}
	}
	return -1
}

func loadWallets(ctx context.Context, store storage.Store) ([]types.Wallet, error) {
	var wallets []types.Wallet
	if _, err := storage.GetJSON(ctx, store, storage.KeyWallets, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}
