package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vultisig/octra-wallet/internal/signer"
	"github.com/vultisig/octra-wallet/internal/types"
)

// Builder assembles signed transactions. It never touches the network.
type Builder struct {
	Now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{Now: time.Now}
}

// signingPayload lists the signed fields in wire order.
type signingPayload struct {
	From      string  `json:"from"`
	To        string  `json:"to_"`
	Amount    string  `json:"amount"`
	Nonce     uint64  `json:"nonce"`
	OU        string  `json:"ou"`
	Timestamp float64 `json:"timestamp"`
	Message   string  `json:"message,omitempty"`
}

// OperationUnits is the ou value the node expects for amount.
func OperationUnits(amount types.Amount) string {
	if amount < FeeThreshold {
		return "1"
	}
	return "3"
}

// CreateTransaction signs a transfer of amount from -> to with the given nonce.
// publicKey is the base64 public key; when empty it is taken from s.
func (b *Builder) CreateTransaction(from, to string, amount types.Amount, nonce uint64, s signer.Signer, publicKey string, message string) (types.Transaction, error) {
	if amount <= 0 {
		return types.Transaction{}, types.NewValidationError(types.ErrInvalidAmount, "amount must be positive")
	}
	if err := signer.ValidateAddress(to); err != nil {
		return types.Transaction{}, err
	}
	if s == nil {
		return types.Transaction{}, fmt.Errorf("signer is required")
	}
	if publicKey == "" {
		publicKey = base64.StdEncoding.EncodeToString(s.PublicKey())
	}

	now := b.Now()
	payload := signingPayload{
		From:      from,
		To:        to,
		Amount:    strconv.FormatInt(amount.Micro(), 10),
		Nonce:     nonce,
		OU:        OperationUnits(amount),
		Timestamp: float64(now.UnixMicro()) / 1e6,
		Message:   message,
	}
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return types.Transaction{}, err
	}
	sig, err := s.Sign(canonical)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("fail to sign transaction, err: %w", err)
	}

	return types.Transaction{
		From:      payload.From,
		To:        payload.To,
		Amount:    payload.Amount,
		Nonce:     payload.Nonce,
		OU:        payload.OU,
		Timestamp: payload.Timestamp,
		Message:   payload.Message,
		Signature: base64.StdEncoding.EncodeToString(sig),
		PublicKey: publicKey,
	}, nil
}

// CanonicalJSON is compact JSON without HTML escaping and without a trailing newline.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("fail to encode signing payload, err: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SigningBytes recomputes the signed payload of tx, used to verify a built transaction.
func SigningBytes(tx types.Transaction) ([]byte, error) {
	return CanonicalJSON(signingPayload{
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Nonce:     tx.Nonce,
		OU:        tx.OU,
		Timestamp: tx.Timestamp,
		Message:   tx.Message,
	})
}
