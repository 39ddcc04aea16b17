package service

import (
	"context"
	"errors"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/signer"
	"github.com/vultisig/octra-wallet/internal/types"
)

// Fee schedule: a flat 0.001 OCT below 1000 OCT, 0.003 OCT from 1000 OCT up.
const (
	FeeThreshold = types.Amount(1000 * types.MicroPerOCT)
	LowFee       = types.Amount(1000)
	HighFee      = types.Amount(3000)
)

func Fee(amount types.Amount) types.Amount {
	if amount < FeeThreshold {
		return LowFee
	}
	return HighFee
}

// Node is the part of the node client the pipeline needs.
type Node interface {
	FetchBalance(ctx context.Context, address string) (types.AccountState, error)
	SendTransaction(ctx context.Context, tx types.Transaction) (types.SubmitResult, error)
}

type Pipeline struct {
	node      Node
	builder   *Builder
	nonces    *NonceManager
	scheduler RefreshScheduler
	sdClient  statsd.ClientInterface
	logger    *logrus.Logger
}

func NewPipeline(node Node, builder *Builder, nonces *NonceManager, scheduler RefreshScheduler, sdClient statsd.ClientInterface) *Pipeline {
	if sdClient == nil {
		sdClient = &statsd.NoOpClient{}
	}
	return &Pipeline{
		node:      node,
		builder:   builder,
		nonces:    nonces,
		scheduler: scheduler,
		sdClient:  sdClient,
		logger:    logrus.WithField("service", "pipeline").Logger,
	}
}

func (p *Pipeline) incCounter(name string, tags []string) {
	if err := p.sdClient.Count(name, 1, tags, 1); err != nil {
		p.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (p *Pipeline) measureTime(name string, start time.Time, tags []string) {
	if err := p.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		p.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

// Submit sends amount from wallet to to. Steps run strictly in order for one attempt:
// fee, fresh balance and nonce, sufficiency check, build, submit, delayed refresh.
// A failed attempt is terminal, nothing is retried.
func (p *Pipeline) Submit(ctx context.Context, wallet types.Wallet, to string, amount types.Amount, message string) (types.SubmitResult, error) {
	defer p.measureTime("tx.submit.latency", time.Now(), nil)
	p.incCounter("tx.submit", nil)

	result, err := p.submit(ctx, wallet, to, amount, message)
	if err != nil {
		p.incCounter("tx.submit.error", []string{"kind:" + string(types.KindOf(err))})
		p.logger.WithFields(logrus.Fields{
			"from":   wallet.Address,
			"to":     to,
			"amount": amount.String(),
			"kind":   types.KindOf(err),
		}).WithError(err).Warn("transaction submission failed")
		result.Success = false
		if result.Error == "" {
			result.Error = err.Error()
		}
		return result, err
	}
	return result, nil
}

func (p *Pipeline) submit(ctx context.Context, wallet types.Wallet, to string, amount types.Amount, message string) (types.SubmitResult, error) {
	fee := Fee(amount)
	if amount <= 0 {
		return types.SubmitResult{}, types.NewValidationError(types.ErrInvalidAmount, "amount must be positive")
	}
	if err := signer.ValidateAddress(to); err != nil {
		return types.SubmitResult{}, err
	}
	s, err := signer.NewEd25519(wallet.PrivateKey)
	if err != nil {
		return types.SubmitResult{}, types.NewValidationError(types.ErrMissingField, "wallet private key is unusable")
	}

	// one submission per sender at a time, so the next one fetches after this one landed
	unlock := p.nonces.Lock(wallet.Address)
	defer unlock()

	// once issued, network calls run to completion under the http client timeout; a caller
	// going away must not abort a send the node may already have applied
	ctx = context.WithoutCancel(ctx)

	fresh, err := p.node.FetchBalance(ctx, wallet.Address)
	if err != nil {
		return types.SubmitResult{}, err
	}

	needed := amount + fee
	if needed > fresh.Balance {
		return types.SubmitResult{}, &types.InsufficientBalanceError{
			Amount:    amount,
			Fee:       fee,
			Needed:    needed,
			Available: fresh.Balance,
		}
	}

	nonce := p.nonces.GetNextNonce(wallet.Address, fresh.Nonce)
	tx, err := p.builder.CreateTransaction(wallet.Address, to, amount, nonce, s, wallet.PublicKey, message)
	if err != nil {
		return types.SubmitResult{}, err
	}

	result, err := p.node.SendTransaction(ctx, tx)
	if err != nil {
		return result, err
	}
	if !result.Success {
		return result, types.NewUpstreamRejected(types.ErrTxRejected, result.Error)
	}
	p.nonces.MarkUsed(wallet.Address, nonce)

	p.logger.WithFields(logrus.Fields{
		"from":  wallet.Address,
		"to":    to,
		"nonce": nonce,
		"hash":  result.Hash,
	}).Info("transaction accepted")

	if p.scheduler != nil {
		if err := p.scheduler.ScheduleRefresh(ctx, wallet.Address); err != nil {
			p.logger.WithError(err).Warn("fail to schedule account refresh")
		}
	}
	return result, nil
}

// IsInsufficientBalance reports whether err is a balance validation failure.
// Forget drops the nonce tracked for address, so a re-imported wallet starts from the node's view.
func (p *Pipeline) Forget(address string) {
	p.nonces.ResetNonce(address)
}

func IsInsufficientBalance(err error) bool {
	var ib *types.InsufficientBalanceError
	return errors.As(err, &ib)
}
