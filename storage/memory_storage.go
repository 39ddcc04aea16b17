package storage

import (
	"context"
	"sync"

	"github.com/vultisig/octra-wallet/contexthelper"
)

// MemoryStorage keeps everything in process. Notifications are delivered synchronously.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
	subs *Subscribers
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]string),
		subs: NewSubscribers(),
	}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value string) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	old := m.data[key]
	m.data[key] = value
	m.mu.Unlock()
	m.subs.Publish(Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	old, ok := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()
	if ok {
		m.subs.Publish(Change{Key: key, OldValue: old, Deleted: true})
	}
	return nil
}

func (m *MemoryStorage) OnChange(key string, fn func(Change)) func() {
	return m.subs.Add(key, fn)
}

func (m *MemoryStorage) Close() error {
	return nil
}
