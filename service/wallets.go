package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/signer"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

// WalletService manages the persisted wallet list and the active wallet id.
// Every write replaces the whole list; concurrent writers are last-write-wins.
type WalletService struct {
	store   storage.Store
	sealer  Sealer
	backups *BackupService
	logger  *logrus.Logger
}

func NewWalletService(store storage.Store, sealer Sealer, backups *BackupService) *WalletService {
	return &WalletService{
		store:   store,
		sealer:  sealer,
		backups: backups,
		logger:  logrus.WithField("service", "wallets").Logger,
	}
}

func (s *WalletService) List(ctx context.Context) ([]types.Wallet, error) {
	wallets, err := loadWallets(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if wallets == nil {
		wallets = []types.Wallet{}
	}
	return wallets, nil
}

func (s *WalletService) Active(ctx context.Context) (types.Wallet, error) {
	wallets, err := s.List(ctx)
	if err != nil {
		return types.Wallet{}, err
	}
	activeID, _, err := s.store.Get(ctx, storage.KeyActiveWalletID)
	if err != nil {
		return types.Wallet{}, err
	}
	w := types.ResolveActive(wallets, activeID)
	if w == nil {
		return types.Wallet{}, types.NewValidationError(types.ErrWalletNotFound, "no wallets")
	}
	return *w, nil
}

func (s *WalletService) Find(ctx context.Context, address string) (types.Wallet, error) {
	wallets, err := s.List(ctx)
	if err != nil {
		return types.Wallet{}, err
	}
	w := types.FindWallet(wallets, address)
	if w == nil {
		return types.Wallet{}, types.NewValidationError(types.ErrWalletNotFound, fmt.Sprintf("wallet %s not found", address))
	}
	return *w, nil
}

// Add appends w and makes it active. A wallet already in the list is only switched to.
func (s *WalletService) Add(ctx context.Context, w types.Wallet) (types.Wallet, error) {
	if err := signer.ValidateAddress(w.Address); err != nil {
		return types.Wallet{}, err
	}
	wallets, err := s.List(ctx)
	if err != nil {
		return types.Wallet{}, err
	}
	if existing := types.FindWallet(wallets, w.Address); existing != nil {
		return *existing, s.store.Set(ctx, storage.KeyActiveWalletID, existing.Address)
	}

	wallets = append(wallets, w)
	if err := storage.SetJSON(ctx, s.store, storage.KeyWallets, wallets); err != nil {
		return types.Wallet{}, err
	}
	if err := s.store.Set(ctx, storage.KeyActiveWalletID, w.Address); err != nil {
		return types.Wallet{}, err
	}
	if err := s.addEncrypted(ctx, w); err != nil {
		return types.Wallet{}, err
	}
	s.logger.WithField("address", w.Address).Info("wallet added")
	return w, nil
}

func (s *WalletService) addEncrypted(ctx context.Context, w types.Wallet) error {
	hash, ok, err := s.store.Get(ctx, storage.KeyWalletPasswordHash)
	if err != nil || !ok || hash == "" || s.sealer == nil {
		return err
	}
	ew, sealed, err := s.sealer.Seal(w)
	if err != nil {
		return err
	}
	if !sealed {
		// sealed on the next unlock in a process that holds the password
		s.logger.WithField("address", w.Address).Warn("no password session, encrypted copy deferred")
		return nil
	}
	var encrypted []types.EncryptedWallet
	if _, err := storage.GetJSON(ctx, s.store, storage.KeyEncryptedWallets, &encrypted); err != nil {
		return err
	}
	if findEncrypted(encrypted, w.Address) >= 0 {
		return nil
	}
	return storage.SetJSON(ctx, s.store, storage.KeyEncryptedWallets, append(encrypted, ew))
}

func (s *WalletService) Import(ctx context.Context, req types.ImportWalletRequest) (types.Wallet, error) {
	if req.Mnemonic != "" && req.PrivateKey == "" {
		w, err := signer.WalletFromMnemonic(req.Mnemonic)
		if err != nil {
			return types.Wallet{}, types.NewValidationError(types.ErrMissingField, err.Error())
		}
		return s.Add(ctx, w)
	}
	if err := req.IsValid(); err != nil {
		return types.Wallet{}, err
	}
	w, err := signer.WalletFromPrivateKey(req.PrivateKey)
	if err != nil {
		return types.Wallet{}, types.NewValidationError(types.ErrMissingField, err.Error())
	}
	w.Mnemonic = req.Mnemonic
	return s.Add(ctx, w)
}

func (s *WalletService) Generate(ctx context.Context) (types.Wallet, error) {
	w, err := signer.GenerateWallet()
	if err != nil {
		return types.Wallet{}, err
	}
	return s.Add(ctx, w)
}

func (s *WalletService) Switch(ctx context.Context, address string) error {
	if _, err := s.Find(ctx, address); err != nil {
		return err
	}
	return s.store.Set(ctx, storage.KeyActiveWalletID, address)
}

// Remove drops a wallet and its encrypted copy. The last wallet cannot be removed.
func (s *WalletService) Remove(ctx context.Context, address string) error {
	wallets, err := s.List(ctx)
	if err != nil {
		return err
	}
	if types.FindWallet(wallets, address) == nil {
		return types.NewValidationError(types.ErrWalletNotFound, fmt.Sprintf("wallet %s not found", address))
	}
	if len(wallets) == 1 {
		return types.NewValidationError(types.ErrLastWallet, "cannot remove the last wallet, lock it instead")
	}

	remaining := make([]types.Wallet, 0, len(wallets)-1)
	for _, w := range wallets {
		if w.Address != address {
			remaining = append(remaining, w)
		}
	}
	if err := storage.SetJSON(ctx, s.store, storage.KeyWallets, remaining); err != nil {
		return err
	}

	var encrypted []types.EncryptedWallet
	if _, err := storage.GetJSON(ctx, s.store, storage.KeyEncryptedWallets, &encrypted); err != nil {
		return err
	}
	if idx := findEncrypted(encrypted, address); idx >= 0 {
		encrypted = append(encrypted[:idx], encrypted[idx+1:]...)
		if err := storage.SetJSON(ctx, s.store, storage.KeyEncryptedWallets, encrypted); err != nil {
			return err
		}
	}

	activeID, _, err := s.store.Get(ctx, storage.KeyActiveWalletID)
	if err != nil {
		return err
	}
	if activeID == address {
		if err := s.store.Set(ctx, storage.KeyActiveWalletID, remaining[0].Address); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, storage.AccountStateKey(address)); err != nil {
		s.logger.WithError(err).Warn("fail to drop account snapshot")
	}

	if s.backups != nil && s.backups.Enabled() {
		if err := s.backups.Delete(ctx, address); err != nil {
			s.logger.WithError(err).WithField("address", address).Warn("fail to delete remote backup")
		}
	}
	s.logger.WithField("address", address).Info("wallet removed")
	return nil
}
