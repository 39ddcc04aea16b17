package rpc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

const (
	DefaultProviderID   = "default"
	DefaultProviderName = "Octra Network (Default)"
	DefaultProviderURL  = "https://octra.network"
)

// Registry owns the persisted provider list. Writes are read-modify-write of the whole
// list, so concurrent writers from different processes are last-write-wins.
type Registry struct {
	store      storage.Store
	defaultURL string
	now        func() time.Time
	logger     *logrus.Logger
}

func NewRegistry(store storage.Store, defaultURL string, logger *logrus.Logger) *Registry {
	if defaultURL == "" {
		defaultURL = DefaultProviderURL
	}
	return &Registry{
		store:      store,
		defaultURL: defaultURL,
		now:        time.Now,
		logger:     logger,
	}
}

func (r *Registry) load(ctx context.Context) ([]types.RPCProvider, error) {
	var providers []types.RPCProvider
	if _, err := storage.GetJSON(ctx, r.store, storage.KeyRPCProviders, &providers); err != nil {
		return nil, fmt.Errorf("fail to load rpc providers, err: %w", err)
	}
	return providers, nil
}

func (r *Registry) save(ctx context.Context, providers []types.RPCProvider) error {
	if providers == nil {
		providers = []types.RPCProvider{}
	}
	if err := storage.SetJSON(ctx, r.store, storage.KeyRPCProviders, providers); err != nil {
		return fmt.Errorf("fail to save rpc providers, err: %w", err)
	}
	return nil
}

func (r *Registry) defaultProvider() types.RPCProvider {
	return types.RPCProvider{
		ID:        DefaultProviderID,
		Name:      DefaultProviderName,
		URL:       r.defaultURL,
		Headers:   map[string]string{},
		Priority:  1,
		IsActive:  true,
		CreatedAt: r.now().UnixMilli(),
	}
}

// List returns providers ordered by priority, then creation time.
func (r *Registry) List(ctx context.Context) ([]types.RPCProvider, error) {
	providers, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	sortProviders(providers)
	return providers, nil
}

func sortProviders(providers []types.RPCProvider) {
	sort.SliceStable(providers, func(i, j int) bool {
		if providers[i].Priority != providers[j].Priority {
			return providers[i].Priority < providers[j].Priority
		}
		return providers[i].CreatedAt < providers[j].CreatedAt
	})
}

// Active returns the provider flagged active. When none is, the default provider is
// activated (added if missing) and persisted before being returned.
func (r *Registry) Active(ctx context.Context) (types.RPCProvider, error) {
	providers, err := r.load(ctx)
	if err != nil {
		return types.RPCProvider{}, err
	}
	for _, p := range providers {
		if p.IsActive {
			return p, nil
		}
	}

	def := r.defaultProvider()
	found := false
	for i := range providers {
		if providers[i].ID == DefaultProviderID {
			providers[i].IsActive = true
			def = providers[i]
			found = true
			break
		}
	}
	if !found {
		providers = append(providers, def)
	}
	if err := r.save(ctx, providers); err != nil {
		return types.RPCProvider{}, err
	}
	r.logger.WithField("provider", def.ID).Info("no active rpc provider, activated default")
	return def, nil
}

// SetActive makes id the single active provider. An unknown id is a silent no-op;
// callers re-read the registry to confirm.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	providers, err := r.load(ctx)
	if err != nil {
		return err
	}
	if indexOf(providers, id) < 0 {
		return nil
	}
	for i := range providers {
		providers[i].IsActive = providers[i].ID == id
	}
	return r.save(ctx, providers)
}

func (r *Registry) Add(ctx context.Context, req types.AddProviderRequest) (types.RPCProvider, error) {
	if err := req.IsValid(); err != nil {
		return types.RPCProvider{}, err
	}
	providers, err := r.load(ctx)
	if err != nil {
		return types.RPCProvider{}, err
	}
	p := types.RPCProvider{
		ID:        uuid.NewString(),
		Name:      req.Name,
		URL:       req.URL,
		Headers:   req.Headers,
		Priority:  req.Priority,
		IsActive:  !hasActive(providers),
		CreatedAt: r.now().UnixMilli(),
	}
	if p.Headers == nil {
		p.Headers = map[string]string{}
	}
	providers = append(providers, p)
	if err := r.save(ctx, providers); err != nil {
		return types.RPCProvider{}, err
	}
	return p, nil
}

// Update replaces the editable fields of an existing provider. The active flag is untouched.
func (r *Registry) Update(ctx context.Context, p types.RPCProvider) error {
	providers, err := r.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(providers, p.ID)
	if idx < 0 {
		return types.NewValidationError(types.ErrProviderNotFound, fmt.Sprintf("provider %s not found", p.ID))
	}
	if err := (types.AddProviderRequest{Name: p.Name, URL: p.URL}).IsValid(); err != nil {
		return err
	}
	providers[idx].Name = p.Name
	providers[idx].URL = p.URL
	providers[idx].Headers = p.Headers
	providers[idx].Priority = p.Priority
	return r.save(ctx, providers)
}

// Remove drops a provider. Removing the active one promotes the remaining provider with the
// lowest priority number.
func (r *Registry) Remove(ctx context.Context, id string) error {
	providers, err := r.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(providers, id)
	if idx < 0 {
		return types.NewValidationError(types.ErrProviderNotFound, fmt.Sprintf("provider %s not found", id))
	}
	wasActive := providers[idx].IsActive
	providers = append(providers[:idx], providers[idx+1:]...)
	if wasActive && len(providers) > 0 {
		sortProviders(providers)
		providers[0].IsActive = true
	}
	return r.save(ctx, providers)
}

func indexOf(providers []types.RPCProvider, id string) int {
	for i := range providers {
		if providers[i].ID == id {
			return i
		}
	}
	return -1
}

func hasActive(providers []types.RPCProvider) bool {
	for _, p := range providers {
		if p.IsActive {
			return true
		}
	}
	return false
}
