package types

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindConnectivity      ErrorKind = "CONNECTIVITY_ERROR"
	KindUpstreamRejected  ErrorKind = "UPSTREAM_REJECTED"
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindProtocolViolation ErrorKind = "PROTOCOL_VIOLATION"
	KindUnknown           ErrorKind = "UNKNOWN_ERROR"
)

const (
	// balance related
	ErrInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrInvalidAmount     = "INVALID_AMOUNT"

	// request related
	ErrInvalidAddress   = "INVALID_ADDRESS"
	ErrMissingField     = "MISSING_FIELD"
	ErrWalletNotFound   = "WALLET_NOT_FOUND"
	ErrWalletLocked     = "WALLET_LOCKED"
	ErrProviderNotFound = "PROVIDER_NOT_FOUND"
	ErrInvalidPassword  = "INVALID_PASSWORD"
	ErrNoPassword       = "NO_PASSWORD"
	ErrLastWallet       = "LAST_WALLET"
	ErrBackupDisabled   = "BACKUP_DISABLED"
	ErrBackupNotFound   = "BACKUP_NOT_FOUND"
	ErrUnauthorized     = "UNAUTHORIZED"

	// network/RPC related
	ErrRPCConnectionFailed = "RPC_CONNECTION_FAILED"
	ErrRPCNoResponse       = "RPC_NO_RESPONSE"
	ErrTxRejected          = "TX_REJECTED"

	// handshake state
	ErrNoPendingRequest = "NO_PENDING_REQUEST"
	ErrAlreadyResolved  = "ALREADY_RESOLVED"
	ErrRequestInFlight  = "REQUEST_IN_FLIGHT"
)

// kinded is implemented by every error that belongs to the taxonomy.
type kinded interface {
	ErrorKind() ErrorKind
}

type WalletError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *WalletError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

func (e *WalletError) ErrorKind() ErrorKind {
	return e.Kind
}

func NewConnectivityError(code, message string, err error) *WalletError {
	return &WalletError{Kind: KindConnectivity, Code: code, Message: message, Err: err}
}

func NewValidationError(code, message string) *WalletError {
	return &WalletError{Kind: KindValidation, Code: code, Message: message}
}

func NewUpstreamRejected(code, message string) *WalletError {
	return &WalletError{Kind: KindUpstreamRejected, Code: code, Message: message}
}

func NewProtocolViolation(code, message string) *WalletError {
	return &WalletError{Kind: KindProtocolViolation, Code: code, Message: message}
}

// InsufficientBalanceError carries the numbers needed for a precise user message.
type InsufficientBalanceError struct {
	Amount    Amount
	Fee       Amount
	Needed    Amount
	Available Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: need %s OCT (%s + %s fee), but only have %s OCT",
		ErrInsufficientFunds, e.Needed, e.Amount, e.Fee, e.Available)
}

func (e *InsufficientBalanceError) ErrorKind() ErrorKind {
	return KindValidation
}

// KindOf classifies err. Errors outside the taxonomy are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}

// CodeOf returns the WalletError code carried by err, if any.
func CodeOf(err error) string {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code
	}
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return ErrInsufficientFunds
	}
	return ""
}
