package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the persisted key-value collaborator. Collections are stored whole under one key;
// writers read-modify-write the collection and concurrent writers are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// Change describes one write to a key, delivered to every subscriber of that key
// including subscribers in the process that made the write.
type Change struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

type Notifier interface {
	// OnChange registers fn for writes to key. The returned func removes the subscription.
	OnChange(key string, fn func(Change)) (cancel func())
}

type KV interface {
	Store
	Notifier
	Close() error
}

// GetJSON decodes the value under key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("fail to deserialize %s, err: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fail to serialize %s, err: %w", key, err)
	}
	return s.Set(ctx, key, string(buf))
}
