package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/rpc"
)

const acceptedStatus = "accepted"

// NodeClient speaks the Octra node REST surface through the RPC gateway.
type NodeClient struct {
	gateway *rpc.Gateway
	logger  *logrus.Logger
}

func NewNodeClient(gateway *rpc.Gateway) *NodeClient {
	return &NodeClient{
		gateway: gateway,
		logger:  logrus.WithField("service", "node").Logger,
	}
}

type balanceResponse struct {
	Balance types.Amount `json:"balance"`
	Nonce   uint64       `json:"nonce"`
}

// FetchBalance reads the public balance and nonce. An unknown account is a fresh one.
// A negative balance means the upstream did not answer usefully and is reported as a
// connectivity failure, never as a balance.
func (n *NodeClient) FetchBalance(ctx context.Context, address string) (types.AccountState, error) {
	resp, err := n.gateway.Read(ctx, rpc.CallRequest{Path: "/balance/" + url.PathEscape(address)})
	if err != nil {
		var rerr *rpc.RPCError
		if errors.As(err, &rerr) && rerr.Status == http.StatusNotFound {
			return types.AccountState{}, nil
		}
		return types.AccountState{}, err
	}
	var out balanceResponse
	if err := resp.JSON(&out); err != nil {
		return types.AccountState{}, err
	}
	if out.Balance < 0 {
		return types.AccountState{}, types.NewConnectivityError(types.ErrRPCNoResponse,
			fmt.Sprintf("upstream returned negative balance for %s", address), nil)
	}
	return types.AccountState{Balance: out.Balance, Nonce: out.Nonce}, nil
}

// flexInt accepts 12 and "12".
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", raw)
	}
	*f = flexInt(v)
	return nil
}

type encryptedBalanceResponse struct {
	Public       types.Amount `json:"public"`
	PublicRaw    flexInt      `json:"public_raw"`
	Encrypted    types.Amount `json:"encrypted"`
	EncryptedRaw flexInt      `json:"encrypted_raw"`
	Total        types.Amount `json:"total"`
}

// FetchEncryptedBalance is best-effort. privateKey is the view capability the node requires.
func (n *NodeClient) FetchEncryptedBalance(ctx context.Context, address string, privateKey string) (types.EncryptedBalance, error) {
	resp, err := n.gateway.Read(ctx, rpc.CallRequest{
		Path:    "/view_encrypted_balance/" + url.PathEscape(address),
		Headers: map[string]string{"X-Private-Key": privateKey},
	})
	if err != nil {
		return types.EncryptedBalance{}, err
	}
	var out encryptedBalanceResponse
	if err := resp.JSON(&out); err != nil {
		return types.EncryptedBalance{}, err
	}
	return types.EncryptedBalance{
		Public:       out.Public,
		PublicRaw:    int64(out.PublicRaw),
		Encrypted:    out.Encrypted,
		EncryptedRaw: int64(out.EncryptedRaw),
		Total:        out.Total,
	}, nil
}

type historyResponse struct {
	RecentTransactions []types.TransactionRef `json:"recent_transactions"`
}

func (n *NodeClient) FetchHistory(ctx context.Context, address string, limit int) ([]types.TransactionRef, error) {
	path := "/address/" + url.PathEscape(address)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := n.gateway.Read(ctx, rpc.CallRequest{Path: path})
	if err != nil {
		var rerr *rpc.RPCError
		if errors.As(err, &rerr) && rerr.Status == http.StatusNotFound {
			return []types.TransactionRef{}, nil
		}
		return nil, err
	}
	var out historyResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if out.RecentTransactions == nil {
		out.RecentTransactions = []types.TransactionRef{}
	}
	return out.RecentTransactions, nil
}

type sendResponse struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

// SendTransaction submits once on the active provider. It never fails over.
func (n *NodeClient) SendTransaction(ctx context.Context, tx types.Transaction) (types.SubmitResult, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return types.SubmitResult{}, fmt.Errorf("fail to serialize transaction, err: %w", err)
	}
	resp, err := n.gateway.Call(ctx, rpc.CallRequest{Path: "/send-tx", Method: http.MethodPost, Body: body})
	if err != nil {
		return types.SubmitResult{Success: false, Error: err.Error()}, err
	}
	var out sendResponse
	if err := resp.JSON(&out); err != nil {
		return types.SubmitResult{Success: false, Error: err.Error()}, err
	}
	if out.Status != acceptedStatus || out.TxHash == "" {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("transaction not accepted, status %q", out.Status)
		}
		rejected := types.NewUpstreamRejected(types.ErrTxRejected, msg)
		return types.SubmitResult{Success: false, Error: msg}, rejected
	}
	return types.SubmitResult{Success: true, Hash: out.TxHash}, nil
}
