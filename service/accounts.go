package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

const historyLimit = 20

// AccountReader is the read side of the node client.
type AccountReader interface {
	FetchBalance(ctx context.Context, address string) (types.AccountState, error)
	FetchEncryptedBalance(ctx context.Context, address string, privateKey string) (types.EncryptedBalance, error)
	FetchHistory(ctx context.Context, address string, limit int) ([]types.TransactionRef, error)
}

// AccountService builds the balance display. Reads never block the caller on failure:
// they degrade to the last snapshot marked stale, or to zeros.
type AccountService struct {
	reader AccountReader
	store  storage.Store
	now    func() time.Time
	logger *logrus.Logger
}

func NewAccountService(reader AccountReader, store storage.Store) *AccountService {
	return &AccountService{
		reader: reader,
		store:  store,
		now:    time.Now,
		logger: logrus.WithField("service", "accounts").Logger,
	}
}

// Refresh returns the view of wallet. When the balance read fails the view is degraded and
// the read error is returned alongside it.
func (a *AccountService) Refresh(ctx context.Context, wallet types.Wallet) (types.AccountView, error) {
	state, err := a.reader.FetchBalance(ctx, wallet.Address)
	if err != nil {
		a.logger.WithError(err).WithField("address", wallet.Address).Warn("balance read failed, serving fallback")
		return a.fallback(ctx, wallet.Address), err
	}

	view := types.AccountView{
		Address:   wallet.Address,
		Balance:   state.Balance,
		Nonce:     state.Nonce,
		FetchedAt: a.now().UTC(),
	}

	enc, err := a.reader.FetchEncryptedBalance(ctx, wallet.Address, wallet.PrivateKey)
	if err != nil {
		a.logger.WithError(err).WithField("address", wallet.Address).Debug("encrypted balance unavailable")
		enc = types.DegradedEncryptedBalance(state.Balance)
	}
	view.Encrypted = enc

	history, err := a.reader.FetchHistory(ctx, wallet.Address, historyLimit)
	if err != nil {
		a.logger.WithError(err).WithField("address", wallet.Address).Debug("history unavailable")
		history = a.cachedHistory(ctx, wallet.Address)
	}
	view.History = history

	if err := storage.SetJSON(ctx, a.store, storage.AccountStateKey(wallet.Address), view); err != nil {
		a.logger.WithError(err).Warn("fail to store account snapshot")
	}
	return view, nil
}

// RefreshAccount refreshes a wallet from the persisted list by address.
func (a *AccountService) RefreshAccount(ctx context.Context, address string) error {
	var wallets []types.Wallet
	if _, err := storage.GetJSON(ctx, a.store, storage.KeyWallets, &wallets); err != nil {
		return err
	}
	w := types.FindWallet(wallets, address)
	if w == nil {
		return types.NewValidationError(types.ErrWalletNotFound, fmt.Sprintf("wallet %s not found", address))
	}
	_, err := a.Refresh(ctx, *w)
	return err
}

// Snapshot returns the last stored view without touching the network.
func (a *AccountService) Snapshot(ctx context.Context, address string) (types.AccountView, bool, error) {
	var view types.AccountView
	ok, err := storage.GetJSON(ctx, a.store, storage.AccountStateKey(address), &view)
	return view, ok, err
}

func (a *AccountService) fallback(ctx context.Context, address string) types.AccountView {
	view, ok, err := a.Snapshot(ctx, address)
	if err != nil || !ok {
		return types.AccountView{
			Address:   address,
			Encrypted: types.DegradedEncryptedBalance(0),
			History:   []types.TransactionRef{},
			Stale:     true,
		}
	}
	view.Stale = true
	return view
}

func (a *AccountService) cachedHistory(ctx context.Context, address string) []types.TransactionRef {
	view, ok, err := a.Snapshot(ctx, address)
	if err != nil || !ok || view.History == nil {
		return []types.TransactionRef{}
	}
	return view.History
}
