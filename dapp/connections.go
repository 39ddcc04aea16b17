package dapp

import (
	"context"
	"time"

	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

// ConnectionStore keeps the connected-dApp list. It holds one entry per origin;
// duplicates left by older writers are collapsed on the next upsert of that origin.
type ConnectionStore struct {
	store storage.Store
	now   func() time.Time
}

func NewConnectionStore(store storage.Store) *ConnectionStore {
	return &ConnectionStore{store: store, now: time.Now}
}

func (c *ConnectionStore) List(ctx context.Context) ([]types.ConnectedDApp, error) {
	var list []types.ConnectedDApp
	if _, err := storage.GetJSON(ctx, c.store, storage.KeyConnectedDApps, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []types.ConnectedDApp{}
	}
	return list, nil
}

// FindByOrigin returns the first entry for origin, or nil.
func (c *ConnectionStore) FindByOrigin(ctx context.Context, origin string) (*types.ConnectedDApp, error) {
	list, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Origin == origin {
			d := list[i]
			return &d, nil
		}
	}
	return nil, nil
}

// Upsert replaces the entry for d.Origin in place, or appends it.
func (c *ConnectionStore) Upsert(ctx context.Context, d types.ConnectedDApp) error {
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	if d.ConnectedAt == 0 {
		d.ConnectedAt = c.now().UnixMilli()
	}
	out := make([]types.ConnectedDApp, 0, len(list)+1)
	placed := false
	for _, e := range list {
		if e.Origin != d.Origin {
			out = append(out, e)
			continue
		}
		if !placed {
			out = append(out, d)
			placed = true
		}
	}
	if !placed {
		out = append(out, d)
	}
	return storage.SetJSON(ctx, c.store, storage.KeyConnectedDApps, out)
}

// Disconnect drops every entry for origin and reports whether there was one.
func (c *ConnectionStore) Disconnect(ctx context.Context, origin string) (bool, error) {
	list, err := c.List(ctx)
	if err != nil {
		return false, err
	}
	out := make([]types.ConnectedDApp, 0, len(list))
	for _, e := range list {
		if e.Origin != origin {
			out = append(out, e)
		}
	}
	if len(out) == len(list) {
		return false, nil
	}
	return true, storage.SetJSON(ctx, c.store, storage.KeyConnectedDApps, out)
}
