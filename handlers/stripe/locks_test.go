package stripe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionLocks_SerializesSameID(t *testing.T) {
	l := newSubscriptionLocks()

	// unsynchronized counter: only correct if the lock serializes access
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("sub_123")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)

	l.mu.Lock()
	assert.Empty(t, l.locks)
	l.mu.Unlock()
}

func TestSubscriptionLocks_DropsEntryOnLastUnlock(t *testing.T) {
	l := newSubscriptionLocks()

	unlockA := l.Lock("sub_a")
	unlockB := l.Lock("sub_b")
	unlockA()

	l.mu.Lock()
	assert.Len(t, l.locks, 1)
	l.mu.Unlock()

	unlockB()

	l.mu.Lock()
	assert.Empty(t, l.locks)
	l.mu.Unlock()
}
