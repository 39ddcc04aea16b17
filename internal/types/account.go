package types

import "time"

// AccountState is fetched per request and never persisted as truth.
type AccountState struct {
	Balance Amount `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// EncryptedBalance is the shielded balance snapshot.
type EncryptedBalance struct {
	Public       Amount `json:"public"`
	PublicRaw    int64  `json:"public_raw"`
	Encrypted    Amount `json:"encrypted"`
	EncryptedRaw int64  `json:"encrypted_raw"`
	Total        Amount `json:"total"`
}

// DegradedEncryptedBalance mirrors the public balance with zeroed shielded fields.
func DegradedEncryptedBalance(balance Amount) EncryptedBalance {
	return EncryptedBalance{
		Public:    balance,
		PublicRaw: balance.Micro(),
		Total:     balance,
	}
}

// AccountView is what a balance display shows: live values or a degraded fallback.
type AccountView struct {
	Address   string           `json:"address"`
	Balance   Amount           `json:"balance"`
	Nonce     uint64           `json:"nonce"`
	Encrypted EncryptedBalance `json:"encrypted_balance"`
	History   []TransactionRef `json:"history"`
	Stale     bool             `json:"stale"`
	FetchedAt time.Time        `json:"fetched_at"`
}
