package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/afex/hystrix-go/hystrix"
)

type Config struct {
	Timeout                int
	MaxConcurrentRequests  int
	RequestVolumeThreshold int
	SleepWindow            int
	ErrorPercentThreshold  int
}

// Functor is one attempt in a fallback chain, run inside its own named circuit.
type Functor[T any] struct {
	exec        func(ctx context.Context) (T, error)
	circuitName string
}

func NewFunctor[T any](exec func(ctx context.Context) (T, error), circuitName string) Functor[T] {
	return Functor[T]{exec: exec, circuitName: circuitName}
}

// finalError wraps an error that ends the chain without counting against the circuit.
type finalError struct {
	err error
}

func (f *finalError) Error() string { return f.err.Error() }
func (f *finalError) Unwrap() error { return f.err }

// Final marks err as a definitive answer: the chain stops and the circuit is not tripped.
// A 4xx from a provider is final, trying the next provider would not change it.
func Final(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{err: err}
}

type CircuitBreaker struct {
	config Config
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{config: config}
}

func (cb *CircuitBreaker) configure(name string) {
	if hystrix.GetCircuitSettings()[name] != nil {
		return
	}
	hystrix.ConfigureCommand(name, hystrix.CommandConfig{
		Timeout:                cb.config.Timeout,
		MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
		RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
		SleepWindow:            cb.config.SleepWindow,
		ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
	})
}

// Execute runs functors in order until one succeeds or returns a Final error.
// Errors of every failed attempt are accumulated. This is a blocking function.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, functors []Functor[T]) (T, error) {
	var zero T
	if len(functors) == 0 {
		return zero, fmt.Errorf("command is nil or empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var accumulated error
	for _, f := range functors {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		cb.configure(f.circuitName)

		var (
			result T
			final  error
		)
		err := hystrix.DoC(ctx, f.circuitName, func(ctx context.Context) error {
			res, err := f.exec(ctx)
			var fe *finalError
			if errors.As(err, &fe) {
				final = fe.err
				return nil
			}
			if err == nil {
				result = res
			}
			return err
		}, nil)

		if err == nil {
			if final != nil {
				return zero, final
			}
			return result, nil
		}

		if accumulated != nil {
			accumulated = fmt.Errorf("%w, %s.error: %w", accumulated, f.circuitName, err)
		} else {
			accumulated = fmt.Errorf("%s.error: %w", f.circuitName, err)
		}
		// keep iterating even on ErrMaxConcurrency so every provider gets a chance
	}
	return zero, accumulated
}
