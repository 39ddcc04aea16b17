package types

// Transaction is the signed outbound transfer record sent to /send-tx.
// Field order matters: the signature covers the compact JSON of every field before Signature.
type Transaction struct {
	From      string  `json:"from"`
	To        string  `json:"to_"`
	Amount    string  `json:"amount"`
	Nonce     uint64  `json:"nonce"`
	OU        string  `json:"ou"`
	Timestamp float64 `json:"timestamp"`
	Message   string  `json:"message,omitempty"`
	Signature string  `json:"signature"`
	PublicKey string  `json:"public_key"`
}

// SubmitResult reports the outcome of one submission attempt.
type SubmitResult struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendRequest is the direct-send request body.
type SendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Message string `json:"message,omitempty"`
}

func (r SendRequest) IsValid() error {
	if r.From == "" {
		return NewValidationError(ErrMissingField, "from is required")
	}
	if r.To == "" {
		return NewValidationError(ErrMissingField, "to is required")
	}
	if r.Amount == "" {
		return NewValidationError(ErrMissingField, "amount is required")
	}
	return nil
}

// TransactionRef is one entry of an address history listing.
type TransactionRef struct {
	Hash  string `json:"hash"`
	Epoch int64  `json:"epoch,omitempty"`
}
