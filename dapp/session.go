package dapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/types"
)

type State int

const (
	Idle State = iota
	ConnectionPending
	TransactionPending
	Approved
	Rejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ConnectionPending:
		return "connection_pending"
	case TransactionPending:
		return "transaction_pending"
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Resolved() bool {
	return s == Approved || s == Rejected
}

// Navigator is how a session leaves the page. ClearQuery is always called before Redirect.
type Navigator interface {
	ClearQuery()
	Redirect(target string)
}

// Submitter runs one transaction submission.
type Submitter interface {
	Submit(ctx context.Context, wallet types.Wallet, to string, amount types.Amount, message string) (types.SubmitResult, error)
}

// WalletLister lists the wallets a request may be approved with.
type WalletLister interface {
	List(ctx context.Context) ([]types.Wallet, error)
}

// Protocol opens handshake sessions against the shared connected-dApp list.
type Protocol struct {
	connections *ConnectionStore
	wallets     WalletLister
	submitter   Submitter
	logger      *logrus.Logger
}

func NewProtocol(connections *ConnectionStore, wallets WalletLister, submitter Submitter) *Protocol {
	return &Protocol{
		connections: connections,
		wallets:     wallets,
		submitter:   submitter,
		logger:      logrus.WithField("module", "dapp").Logger,
	}
}

// Session is one page load worth of handshake. It resolves at most once.
type Session struct {
	protocol *Protocol
	nav      Navigator

	mu          sync.Mutex
	state       State
	connection  *types.ConnectionRequest
	transaction *types.TransactionRequest
	origin      string
	preselected string
	inFlight    bool
	target      string
}

// Open enters the pending state named by in. An empty descriptor gives an idle session.
func (p *Protocol) Open(ctx context.Context, in Inbound, nav Navigator) (*Session, error) {
	s := &Session{protocol: p, nav: nav, state: Idle}
	switch {
	case in.Transaction != nil:
		tx := *in.Transaction
		s.transaction = &tx
		s.origin = tx.Origin
		s.state = TransactionPending
	case in.Connection != nil:
		conn := *in.Connection
		s.connection = &conn
		s.origin = conn.Origin
		s.state = ConnectionPending
	default:
		return s, nil
	}

	preselected, err := p.preselect(ctx, s.origin)
	if err != nil {
		return nil, err
	}
	s.preselected = preselected
	p.logger.WithFields(logrus.Fields{
		"origin": s.origin,
		"state":  s.state.String(),
	}).Info("dapp request opened")
	return s, nil
}

// preselect returns the address remembered for origin when that wallet still exists.
func (p *Protocol) preselect(ctx context.Context, origin string) (string, error) {
	known, err := p.connections.FindByOrigin(ctx, origin)
	if err != nil || known == nil || known.SelectedAddress == "" {
		return "", err
	}
	wallets, err := p.wallets.List(ctx)
	if err != nil {
		return "", err
	}
	if types.FindWallet(wallets, known.SelectedAddress) == nil {
		return "", nil
	}
	return known.SelectedAddress, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Origin() string {
	return s.origin
}

// Preselected is the address to offer by default, empty when there is none.
func (s *Session) Preselected() string {
	return s.preselected
}

func (s *Session) Connection() *types.ConnectionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connection == nil {
		return nil
	}
	c := *s.connection
	return &c
}

func (s *Session) Transaction() *types.TransactionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transaction == nil {
		return nil
	}
	t := *s.transaction
	return &t
}

// Target is the redirect the session resolved with.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// checkPending must be called with mu held.
func (s *Session) checkPending() error {
	switch {
	case s.state.Resolved():
		return types.NewProtocolViolation(types.ErrAlreadyResolved, "request already resolved")
	case s.state == Idle:
		return types.NewProtocolViolation(types.ErrNoPendingRequest, "no pending request")
	case s.inFlight:
		return types.NewValidationError(types.ErrRequestInFlight, "request is being processed")
	}
	return nil
}

// Approve resolves the pending request with wallet and returns the redirect target.
// A failed submission leaves the transaction pending and redirects nowhere.
func (s *Session) Approve(ctx context.Context, wallet types.Wallet) (string, error) {
	s.mu.Lock()
	if err := s.checkPending(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.state == ConnectionPending {
		defer s.mu.Unlock()
		return s.approveConnection(ctx, wallet)
	}
	tx := *s.transaction
	s.inFlight = true
	s.mu.Unlock()

	target, err := s.approveTransaction(ctx, wallet, tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return "", err
	}
	s.resolve(Approved, target)
	return target, nil
}

func (s *Session) approveConnection(ctx context.Context, wallet types.Wallet) (string, error) {
	req := *s.connection
	appName := req.AppName
	if appName == "" {
		appName = req.Origin
	}
	params := map[string]string{ParamAccountID: wallet.Address}
	if wallet.PublicKey != "" {
		params[ParamPublicKey] = wallet.PublicKey
	}
	target, err := withParams(req.SuccessURL, params)
	if err != nil {
		return "", types.NewProtocolViolation(types.ErrMissingField, "success_url is not a url")
	}
	err = s.protocol.connections.Upsert(ctx, types.ConnectedDApp{
		Origin:          req.Origin,
		AppName:         appName,
		Permissions:     req.Permissions,
		SelectedAddress: wallet.Address,
	})
	if err != nil {
		return "", fmt.Errorf("fail to store connection, err: %w", err)
	}
	s.protocol.logger.WithFields(logrus.Fields{
		"origin":  req.Origin,
		"address": wallet.Address,
	}).Info("dapp connection approved")
	s.resolve(Approved, target)
	return target, nil
}

func (s *Session) approveTransaction(ctx context.Context, wallet types.Wallet, tx types.TransactionRequest) (string, error) {
	amount, err := types.ParseAmount(tx.Amount)
	if err != nil {
		return "", types.NewValidationError(types.ErrInvalidAmount, err.Error())
	}
	result, err := s.protocol.submitter.Submit(ctx, wallet, tx.To, amount, tx.Message)
	if err != nil {
		return "", err
	}
	if !result.Success || result.Hash == "" {
		return "", types.NewUpstreamRejected(types.ErrTxRejected, result.Error)
	}
	target, err := withParams(tx.SuccessURL, map[string]string{ParamTxHash: result.Hash})
	if err != nil {
		return "", types.NewProtocolViolation(types.ErrMissingField, "success_url is not a url")
	}
	s.protocol.logger.WithFields(logrus.Fields{
		"origin": tx.Origin,
		"hash":   result.Hash,
	}).Info("dapp transaction approved")
	return target, nil
}

// Reject resolves the pending request to its failure url. Nothing is written.
func (s *Session) Reject(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPending(); err != nil {
		return "", err
	}
	var target string
	if s.connection != nil {
		target = s.connection.FailureURL
	} else {
		target = s.transaction.FailureURL
	}
	s.protocol.logger.WithField("origin", s.origin).Info("dapp request rejected")
	s.resolve(Rejected, target)
	return target, nil
}

// resolve clears request state and the page query before redirecting. Must be called with mu held.
func (s *Session) resolve(state State, target string) {
	s.state = state
	s.target = target
	s.connection = nil
	s.transaction = nil
	if s.nav != nil {
		s.nav.ClearQuery()
		s.nav.Redirect(target)
	}
}
