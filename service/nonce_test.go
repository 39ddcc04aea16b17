package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetNextNonce(t *testing.T) {
	n := NewNonceManager()
	assert.EqualValues(t, 6, n.GetNextNonce("a", 5))

	n.MarkUsed("a", 6)
	// node has not caught up yet
	assert.EqualValues(t, 7, n.GetNextNonce("a", 5))
	// node caught up and moved past
	assert.EqualValues(t, 10, n.GetNextNonce("a", 9))
	// other senders are independent
	assert.EqualValues(t, 1, n.GetNextNonce("b", 0))

	n.MarkUsed("a", 3)
	assert.EqualValues(t, 7, n.GetNextNonce("a", 5))

	n.ResetNonce("a")
	assert.EqualValues(t, 6, n.GetNextNonce("a", 5))
}

func TestLockSerializesPerAddress(t *testing.T) {
	n := NewNonceManager()
	unlock := n.Lock("a")

	acquired := make(chan struct{})
	go func() {
		release := n.Lock("a")
		close(acquired)
		release()
	}()

	otherDone := make(chan struct{})
	go func() {
		release := n.Lock("b")
		release()
		close(otherDone)
	}()

	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("lock on a different address blocked")
	}
	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Lock("c")()
		}()
	}
	wg.Wait()
}
