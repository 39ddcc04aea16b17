package api

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/internal/signer"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

type testNode struct {
	balance string
	sends   atomic.Int32
}

func (n *testNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/balance/"):
		_, _ = io.WriteString(w, `{"balance":"`+n.balance+`","nonce":3}`)
	case r.URL.Path == "/send-tx":
		n.sends.Add(1)
		_, _ = io.WriteString(w, `{"status":"accepted","tx_hash":"abc123"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

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

func newTestServer(t *testing.T, nodeURL string, mutate func(*config.Config)) (*Server, *echo.Echo) {
	t.Helper()
	cfg := *config.Default()
	cfg.Server.RateLimit = 0
	cfg.RPC.DefaultURL = nodeURL
	cfg.RPC.Failover = false
	cfg.Breaker.RequestVolumeThreshold = 1000
	cfg.Breaker.ErrorPercentThreshold = 100
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, storage.NewMemoryStorage(), nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, s.Handler()
}

func do(e *echo.Echo, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		reader = strings.NewReader(string(buf))
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestPing(t *testing.T) {
	_, e := newTestServer(t, "http://127.0.0.1:1", nil)
	rec := do(e, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "walletd is running", rec.Body.String())
}

func TestErrorStatus(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "insufficient balance", err: &types.InsufficientBalanceError{}, want: http.StatusUnprocessableEntity},
		{name: "wallet not found", err: types.NewValidationError(types.ErrWalletNotFound, "x"), want: http.StatusNotFound},
		{name: "locked", err: types.NewValidationError(types.ErrWalletLocked, "x"), want: http.StatusLocked},
		{name: "wrong password", err: types.NewValidationError(types.ErrInvalidPassword, "x"), want: http.StatusUnauthorized},
		{name: "in flight", err: types.NewValidationError(types.ErrRequestInFlight, "x"), want: http.StatusConflict},
		{name: "backups off", err: types.NewValidationError(types.ErrBackupDisabled, "x"), want: http.StatusNotImplemented},
		{name: "other validation", err: types.NewValidationError(types.ErrMissingField, "x"), want: http.StatusBadRequest},
		{name: "already resolved", err: types.NewProtocolViolation(types.ErrAlreadyResolved, "x"), want: http.StatusConflict},
		{name: "protocol violation", err: types.NewProtocolViolation(types.ErrMissingField, "x"), want: http.StatusBadRequest},
		{name: "upstream", err: types.NewUpstreamRejected(types.ErrTxRejected, "x"), want: http.StatusBadGateway},
		{name: "connectivity", err: types.NewConnectivityError(types.ErrRPCConnectionFailed, "x", nil), want: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errorStatus(tc.err))
		})
	}
}

func TestProviders(t *testing.T) {
	_, e := newTestServer(t, "https://node.example", nil)
	type providerList struct {
		Providers []types.RPCProvider `json:"providers"`
		ActiveID  string              `json:"active_id"`
	}

	// the default provider is created on first read
	rec := do(e, http.MethodGet, "/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list providerList
	decodeBody(t, rec, &list)
	require.Len(t, list.Providers, 1)
	assert.Equal(t, "default", list.ActiveID)
	assert.Equal(t, "https://node.example", list.Providers[0].URL)

	rec = do(e, http.MethodPost, "/providers", types.AddProviderRequest{
		Name: "backup", URL: "https://backup.example", Priority: 2,
		Headers: map[string]string{"Authorization": "Bearer secret"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added types.RPCProvider
	decodeBody(t, rec, &added)
	assert.Equal(t, "***", added.Headers["Authorization"])
	assert.False(t, added.IsActive)

	rec = do(e, http.MethodGet, "/providers", nil)
	list = providerList{}
	decodeBody(t, rec, &list)
	assert.Len(t, list.Providers, 2)
	assert.Equal(t, "default", list.ActiveID)

	rec = do(e, http.MethodPut, "/providers/"+added.ID+"/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active types.RPCProvider
	decodeBody(t, rec, &active)
	assert.Equal(t, added.ID, active.ID)

	rec = do(e, http.MethodPut, "/providers/nope/active", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodDelete, "/providers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodDelete, "/providers/"+added.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLockedGuard(t *testing.T) {
	s, e := newTestServer(t, "https://node.example", nil)
	_, err := s.wallets.Add(context.Background(), testWallet(t, 1))
	require.NoError(t, err)

	rec := do(e, http.MethodPost, "/password", types.PasswordRequest{Password: "correct-horse"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(e, http.MethodPost, "/lock", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodGet, "/wallets", nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	var body errorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, types.ErrWalletLocked, body.Code)

	rec = do(e, http.MethodPost, "/unlock", types.PasswordRequest{Password: "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(e, http.MethodPost, "/unlock", types.PasswordRequest{Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/wallets", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDAppConnectionFlow(t *testing.T) {
	s, e := newTestServer(t, "https://node.example", nil)
	w, err := s.wallets.Add(context.Background(), testWallet(t, 2))
	require.NoError(t, err)

	q := url.Values{
		"origin":      {"https://app.example"},
		"success_url": {"https://app.example/ok"},
		"failure_url": {"https://app.example/fail"},
		"app_name":    {"Example"},
	}
	rec := do(e, http.MethodGet, "/dapp?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var opened dappRequestResponse
	decodeBody(t, rec, &opened)
	require.NotEmpty(t, opened.SessionID)
	assert.Equal(t, "connection_pending", opened.State)
	assert.Equal(t, "https://app.example", opened.Origin)

	rec = do(e, http.MethodPost, "/dapp/"+opened.SessionID+"/approve", types.ApproveRequest{Address: w.Address})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "/ok", loc.Path)
	assert.Equal(t, w.Address, loc.Query().Get("account_id"))
	assert.Equal(t, w.PublicKey, loc.Query().Get("public_key"))

	// resolved sessions are dropped
	rec = do(e, http.MethodPost, "/dapp/"+opened.SessionID+"/approve", types.ApproveRequest{Address: w.Address})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/dapps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dapps []types.ConnectedDApp
	decodeBody(t, rec, &dapps)
	require.Len(t, dapps, 1)
	assert.Equal(t, w.Address, dapps[0].SelectedAddress)
	assert.Equal(t, "Example", dapps[0].AppName)

	// the remembered wallet is preselected next time
	rec = do(e, http.MethodGet, "/dapp?"+q.Encode(), nil)
	decodeBody(t, rec, &opened)
	assert.Equal(t, w.Address, opened.Preselected)

	rec = do(e, http.MethodDelete, "/dapps?origin="+url.QueryEscape("https://app.example"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(e, http.MethodDelete, "/dapps?origin="+url.QueryEscape("https://app.example"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDAppRequestParsing(t *testing.T) {
	_, e := newTestServer(t, "https://node.example", nil)

	rec := do(e, http.MethodGet, "/dapp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var idle dappRequestResponse
	decodeBody(t, rec, &idle)
	assert.Equal(t, "idle", idle.State)
	assert.Empty(t, idle.SessionID)

	rec = do(e, http.MethodGet, "/dapp?origin=https%3A%2F%2Fapp.example", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/dapp/unknown/reject", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDAppTransactionFlow(t *testing.T) {
	node := &testNode{balance: "1000"}
	srv := httptest.NewServer(node)
	defer srv.Close()
	s, e := newTestServer(t, srv.URL, nil)
	w, err := s.wallets.Add(context.Background(), testWallet(t, 3))
	require.NoError(t, err)
	to := testWallet(t, 4)

	q := url.Values{
		"action":      {"send"},
		"to":          {to.Address},
		"amount":      {"100"},
		"origin":      {"https://app.example"},
		"success_url": {"https://app.example/ok"},
		"failure_url": {"https://app.example/fail"},
	}
	rec := do(e, http.MethodGet, "/dapp?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var opened dappRequestResponse
	decodeBody(t, rec, &opened)
	assert.Equal(t, "transaction_pending", opened.State)
	assert.Equal(t, "0.001000", opened.Fee)

	rec = do(e, http.MethodPost, "/dapp/"+opened.SessionID+"/approve", types.ApproveRequest{Address: w.Address})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "abc123", loc.Query().Get("tx_hash"))
	assert.EqualValues(t, 1, node.sends.Load())
}

func TestDAppTransactionReject(t *testing.T) {
	node := &testNode{balance: "1000"}
	srv := httptest.NewServer(node)
	defer srv.Close()
	s, e := newTestServer(t, srv.URL, nil)
	_, err := s.wallets.Add(context.Background(), testWallet(t, 3))
	require.NoError(t, err)

	q := url.Values{
		"action":      {"send"},
		"to":          {testWallet(t, 4).Address},
		"amount":      {"5"},
		"origin":      {"https://app.example"},
		"success_url": {"https://app.example/ok"},
		"failure_url": {"https://app.example/fail"},
	}
	rec := do(e, http.MethodGet, "/dapp?"+q.Encode(), nil)
	var opened dappRequestResponse
	decodeBody(t, rec, &opened)

	rec = do(e, http.MethodPost, "/dapp/"+opened.SessionID+"/reject", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://app.example/fail", rec.Header().Get(echo.HeaderLocation))
	assert.Zero(t, node.sends.Load())
}

func TestSend(t *testing.T) {
	testCases := []struct {
		name     string
		balance  string
		amount   string
		want     int
		wantSent int32
	}{
		{name: "accepted", balance: "1000", amount: "1.5", want: http.StatusOK, wantSent: 1},
		{name: "insufficient", balance: "1", amount: "1", want: http.StatusUnprocessableEntity},
		{name: "bad amount", balance: "1000", amount: "abc", want: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			node := &testNode{balance: tc.balance}
			srv := httptest.NewServer(node)
			defer srv.Close()
			s, e := newTestServer(t, srv.URL, nil)
			_, err := s.wallets.Add(context.Background(), testWallet(t, 5))
			require.NoError(t, err)

			rec := do(e, http.MethodPost, "/send", types.SendRequest{To: testWallet(t, 6).Address, Amount: tc.amount})
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantSent, node.sends.Load())
			if tc.want == http.StatusOK {
				var out sendResponse
				decodeBody(t, rec, &out)
				assert.True(t, out.Success)
				assert.Equal(t, "abc123", out.Hash)
				assert.Equal(t, "0.001000", out.Fee)
			}
		})
	}
}

func TestGetAccountDegraded(t *testing.T) {
	s, e := newTestServer(t, "http://127.0.0.1:1", nil)
	w, err := s.wallets.Add(context.Background(), testWallet(t, 7))
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/accounts/"+w.Address, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out accountResponse
	decodeBody(t, rec, &out)
	assert.Equal(t, w.Address, out.Account.Address)
	assert.Equal(t, types.Amount(0), out.Account.Balance)
	require.NotNil(t, out.Error)
	assert.Equal(t, types.KindConnectivity, out.Error.Kind)

	rec = do(e, http.MethodGet, "/accounts/octunknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s, e := newTestServer(t, "https://node.example", func(cfg *config.Config) {
		cfg.Server.JWTSecret = "test-secret"
	})

	rec := do(e, http.MethodGet, "/providers", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(e, http.MethodGet, "/providers", nil, echo.HeaderAuthorization, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(e, http.MethodGet, "/providers", nil, echo.HeaderAuthorization, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := s.authService.GenerateToken("walletctl")
	require.NoError(t, err)
	rec = do(e, http.MethodGet, "/providers", nil, echo.HeaderAuthorization, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(e, http.MethodPost, "/auth/refresh", nil, echo.HeaderAuthorization, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed tokenResponse
	decodeBody(t, rec, &refreshed)
	claims, err := s.authService.ValidateToken(refreshed.Token)
	require.NoError(t, err)
	assert.Equal(t, "walletctl", claims.Subject)
	rec = do(e, http.MethodPost, "/auth/refresh", nil, echo.HeaderAuthorization, "Bearer "+token, echo.HeaderOrigin, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// ping stays open
	rec = do(e, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCrossOriginRequestsRefused(t *testing.T) {
	node := &testNode{balance: "1000"}
	srv := httptest.NewServer(node)
	defer srv.Close()
	s, e := newTestServer(t, srv.URL, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://wallet.example"}
	})
	w, err := s.wallets.Add(context.Background(), testWallet(t, 8))
	require.NoError(t, err)

	q := url.Values{
		"origin":      {"https://app.example"},
		"success_url": {"https://app.example/ok"},
		"failure_url": {"https://app.example/fail"},
	}
	rec := do(e, http.MethodGet, "/dapp?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var opened dappRequestResponse
	decodeBody(t, rec, &opened)
	approve := "/dapp/" + opened.SessionID + "/approve"

	testCases := []struct {
		name    string
		method  string
		target  string
		body    any
		headers []string
		want    int
	}{
		{name: "foreign open", method: http.MethodGet, target: "/dapp?" + q.Encode(), headers: []string{echo.HeaderOrigin, "https://evil.example"}, want: http.StatusForbidden},
		{name: "foreign approve", method: http.MethodPost, target: approve, body: types.ApproveRequest{Address: w.Address}, headers: []string{echo.HeaderOrigin, "https://evil.example"}, want: http.StatusForbidden},
		{name: "foreign send", method: http.MethodPost, target: "/send", body: types.SendRequest{To: testWallet(t, 9).Address, Amount: "1"}, headers: []string{echo.HeaderOrigin, "https://evil.example"}, want: http.StatusForbidden},
		{name: "cross-site without origin", method: http.MethodDelete, target: "/wallets/" + w.Address, headers: []string{"Sec-Fetch-Site", "cross-site"}, want: http.StatusForbidden},
		{name: "same origin", method: http.MethodGet, target: "/wallets", headers: []string{echo.HeaderOrigin, "http://example.com"}, want: http.StatusOK},
		{name: "allowed origin", method: http.MethodGet, target: "/providers", headers: []string{echo.HeaderOrigin, "https://wallet.example"}, want: http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, tc.method, tc.target, tc.body, tc.headers...)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, node.sends.Load())
	wallets, err := s.wallets.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, wallets, 1)

	// the session was never approved
	rec = do(e, http.MethodPost, approve, types.ApproveRequest{Address: w.Address})
	assert.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func TestCORSScopedToRelay(t *testing.T) {
	_, e := newTestServer(t, "https://node.example", nil)

	rec := do(e, http.MethodOptions, "/send", nil,
		echo.HeaderOrigin, "https://evil.example",
		echo.HeaderAccessControlRequestMethod, http.MethodPost)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = do(e, http.MethodOptions, "/api/balance/oct1", nil,
		echo.HeaderOrigin, "https://evil.example",
		echo.HeaderAccessControlRequestMethod, http.MethodGet)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
