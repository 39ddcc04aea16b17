package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/octra-wallet/circuitbreaker"
	"github.com/vultisig/octra-wallet/internal/signer"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/rpc"
	"github.com/vultisig/octra-wallet/storage"
)

func testWallet(t *testing.T, b byte) types.Wallet {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	w, err := signer.WalletFromPrivateKey(base64.StdEncoding.EncodeToString(seed))
	require.NoError(t, err)
	return w
}

func newTestGateway(t *testing.T, store storage.Store, url string) *rpc.Gateway {
	t.Helper()
	require.NoError(t, storage.SetJSON(context.Background(), store, storage.KeyRPCProviders, []types.RPCProvider{
		{ID: "test", Name: "test", URL: url, IsActive: true, Priority: 1},
	}))
	return rpc.NewGateway(rpc.NewRegistry(store, "", logrus.New()), rpc.GatewayOptions{
		Breaker: circuitbreaker.Config{Timeout: 2000, MaxConcurrentRequests: 100, RequestVolumeThreshold: 1000, SleepWindow: 10, ErrorPercentThreshold: 100},
	}, logrus.New())
}

type fakeNode struct {
	mu       sync.Mutex
	state    types.AccountState
	fetchErr error
	sendErr  error
	result   *types.SubmitResult
	fetches  int
	sent     []types.Transaction
	events   []string
	onSend   func()
}

func (f *fakeNode) FetchBalance(ctx context.Context, address string) (types.AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.events = append(f.events, "fetch")
	return f.state, f.fetchErr
}

func (f *fakeNode) SendTransaction(ctx context.Context, tx types.Transaction) (types.SubmitResult, error) {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "send")
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return types.SubmitResult{Success: false, Error: f.sendErr.Error()}, f.sendErr
	}
	if f.result != nil {
		return *f.result, nil
	}
	return types.SubmitResult{Success: true, Hash: "hash-" + tx.Amount}, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	addresses []string
}

func (f *fakeScheduler) ScheduleRefresh(ctx context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses = append(f.addresses, address)
	return nil
}

func (f *fakeScheduler) scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.addresses...)
}
