package service

import "sync"

// NonceManager serializes submissions per sender and remembers the last nonce this process
// embedded, so a nonce is never handed out twice even when the node lags behind.
type NonceManager struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	lastUsed map[string]uint64
}

func NewNonceManager() *NonceManager {
	return &NonceManager{
		locks:    make(map[string]*sync.Mutex),
		lastUsed: make(map[string]uint64),
	}
}

// Lock blocks until the caller owns address. The returned func releases it.
func (n *NonceManager) Lock(address string) func() {
	n.mu.Lock()
	l, ok := n.locks[address]
	if !ok {
		l = &sync.Mutex{}
		n.locks[address] = l
	}
	n.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// GetNextNonce returns fresh+1, or one past the last nonce used here if that is higher.
func (n *NonceManager) GetNextNonce(address string, fresh uint64) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := fresh + 1
	if last, ok := n.lastUsed[address]; ok && last >= next {
		next = last + 1
	}
	return next
}

// MarkUsed records a nonce that reached the node.
func (n *NonceManager) MarkUsed(address string, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nonce > n.lastUsed[address] {
		n.lastUsed[address] = nonce
	}
}

func (n *NonceManager) ResetNonce(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.lastUsed, address)
}
