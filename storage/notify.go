package storage

import "sync"

// Subscribers fans changes out to per-key callbacks. Callbacks run on the publishing goroutine
// without the registry lock held, so they may call back into the store.
type Subscribers struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(Change)
}

func NewSubscribers() *Subscribers {
	return &Subscribers{subs: make(map[string]map[uint64]func(Change))}
}

func (s *Subscribers) Add(key string, fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]func(Change))
	}
	s.subs[key][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
		})
	}
}

func (s *Subscribers) Publish(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subs[c.Key]))
	for _, fn := range s.subs[c.Key] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}
