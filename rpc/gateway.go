package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/circuitbreaker"
	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

const (
	DefaultTargetHeader = "X-RPC-Target"
	// RelayErrorHeader marks a relay-generated failure, as opposed to an upstream error body.
	RelayErrorHeader = "X-Relay-Error"

	maxResponseBytes = 10 << 20
)

// CallRequest describes one RPC call. Path is appended to the target base URL.
type CallRequest struct {
	Path        string
	Method      string
	Body        []byte
	OverrideURL string
	Headers     map[string]string
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return types.NewConnectivityError(types.ErrRPCNoResponse, "malformed rpc response", err)
	}
	return nil
}

type GatewayOptions struct {
	Timeout time.Duration
	// RelayURL, when set, sends every call to <RelayURL><RelayPrefix><path> with the real
	// target in TargetHeader.
	RelayURL     string
	RelayPrefix  string
	TargetHeader string
	Failover     bool
	Breaker      circuitbreaker.Config
}

type Gateway struct {
	registry *Registry
	client   *http.Client
	opts     GatewayOptions
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewGateway(registry *Registry, opts GatewayOptions, logger *logrus.Logger) *Gateway {
	if opts.TargetHeader == "" {
		opts.TargetHeader = DefaultTargetHeader
	}
	if opts.RelayPrefix == "" {
		opts.RelayPrefix = "/api"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Gateway{
		registry: registry,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		breaker:  circuitbreaker.NewCircuitBreaker(opts.Breaker),
		logger:   logger,
	}
}

// Call issues req against OverrideURL, or the active provider when no override is given.
// Provider headers are only sent to the provider's own URL so credentials never reach an override target.
func (g *Gateway) Call(ctx context.Context, req CallRequest) (*Response, error) {
	provider, err := g.registry.Active(ctx)
	if err != nil {
		return nil, err
	}
	base := provider.URL
	providerHeaders := provider.Headers
	if req.OverrideURL != "" && !sameBase(req.OverrideURL, provider.URL) {
		base = req.OverrideURL
		providerHeaders = nil
	}
	return g.do(ctx, base, providerHeaders, req)
}

// Read is Call with failover across providers in priority order, each behind its own circuit.
// Only reads may use it: a submission retried on another provider could be applied twice.
func (g *Gateway) Read(ctx context.Context, req CallRequest) (*Response, error) {
	if !g.opts.Failover || req.OverrideURL != "" {
		return g.Call(ctx, req)
	}
	active, err := g.registry.Active(ctx)
	if err != nil {
		return nil, err
	}
	providers, err := g.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	ordered := []types.RPCProvider{active}
	for _, p := range providers {
		if p.ID != active.ID {
			ordered = append(ordered, p)
		}
	}

	functors := make([]circuitbreaker.Functor[*Response], 0, len(ordered))
	for _, p := range ordered {
		p := p
		functors = append(functors, circuitbreaker.NewFunctor(func(ctx context.Context) (*Response, error) {
			resp, err := g.do(ctx, p.URL, p.Headers, req)
			if rerr, ok := err.(*RPCError); ok && !rerr.Retryable() {
				return nil, circuitbreaker.Final(rerr)
			}
			return resp, err
		}, "rpc."+p.ID))
	}
	resp, err := circuitbreaker.Execute(ctx, g.breaker, functors)
	if err != nil {
		if _, ok := err.(*RPCError); ok {
			return nil, err
		}
		if types.KindOf(err) == types.KindUnknown {
			return nil, types.NewConnectivityError(types.ErrRPCConnectionFailed, "all rpc providers failed", err)
		}
		return nil, err
	}
	return resp, nil
}

func (g *Gateway) do(ctx context.Context, base string, providerHeaders map[string]string, req CallRequest) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	base = strings.TrimRight(base, "/")
	url := base + req.Path
	if g.opts.RelayURL != "" {
		url = strings.TrimRight(g.opts.RelayURL, "/") + g.opts.RelayPrefix + req.Path
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, types.NewConnectivityError(types.ErrRPCConnectionFailed, "fail to create request", err)
	}
	for k, v := range mergeHeaders(providerHeaders, req.Headers) {
		httpReq.Header.Set(k, v)
	}
	if g.opts.RelayURL != "" {
		httpReq.Header.Set(g.opts.TargetHeader, base)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, types.NewConnectivityError(types.ErrRPCConnectionFailed, fmt.Sprintf("fail to reach %s", base), err)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.NewConnectivityError(types.ErrRPCNoResponse, "fail to read rpc response", err)
	}

	g.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     req.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("rpc call")

	if resp.Header.Get(RelayErrorHeader) != "" {
		return nil, types.NewConnectivityError(types.ErrRPCConnectionFailed, "relay could not reach upstream", fmt.Errorf("%s", string(buf)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RPCError{Status: resp.StatusCode, Body: string(buf)}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: buf}, nil
}

// mergeHeaders applies defaults, then provider headers, then call headers. Later entries win.
func mergeHeaders(providerHeaders, callHeaders map[string]string) map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	for _, layer := range []map[string]string{providerHeaders, callHeaders} {
		for k, v := range layer {
			out[http.CanonicalHeaderKey(k)] = v
		}
	}
	return out
}

func sameBase(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

// NewGatewayFromConfig builds the registry and gateway every binary shares.
func NewGatewayFromConfig(cfg config.Config, store storage.Store, logger *logrus.Logger) *Gateway {
	registry := NewRegistry(store, cfg.RPC.DefaultURL, logger)
	return NewGateway(registry, GatewayOptions{
		Timeout:      cfg.RPC.Timeout,
		RelayURL:     cfg.RPC.RelayURL,
		RelayPrefix:  cfg.Relay.Prefix,
		TargetHeader: cfg.Relay.TargetHeader,
		Failover:     cfg.RPC.Failover,
		Breaker: circuitbreaker.Config{
			Timeout:                cfg.Breaker.Timeout,
			MaxConcurrentRequests:  cfg.Breaker.MaxConcurrentRequests,
			RequestVolumeThreshold: cfg.Breaker.RequestVolumeThreshold,
			SleepWindow:            cfg.Breaker.SleepWindow,
			ErrorPercentThreshold:  cfg.Breaker.ErrorPercentThreshold,
		},
	}, logger)
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}
