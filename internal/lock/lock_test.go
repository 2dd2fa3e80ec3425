package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockWalletIsExclusive(t *testing.T) {
	m := NewManager()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.LockWallet("alice", "GBP")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, m.Held())
}

func TestKeysAreCaseInsensitiveOnCurrency(t *testing.T) {
	m := NewManager()
	unlock := m.LockWallet("alice", "gbp")

	acquired := make(chan struct{})
	go func() {
		release := m.LockWallet("alice", "GBP")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held wallet lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the wallet lock")
	}
}

func TestDifferentOwnersDoNotBlock(t *testing.T) {
	m := NewManager()
	unlock := m.Acquire("alice", "GBP", "AAPL")
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := m.Acquire("bob", "GBP", "AAPL")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated owner was blocked")
	}
}

func TestAcquireReleasesBothAndIsIdempotent(t *testing.T) {
	m := NewManager()
	unlock := m.Acquire("alice", "GBP", "AAPL")
	require.Equal(t, 2, m.Held())

	unlock()
	unlock()
	assert.Equal(t, 0, m.Held())

	unlock = m.Acquire("alice", "", "AAPL")
	assert.Equal(t, 1, m.Held())
	unlock()
}
