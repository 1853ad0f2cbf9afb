package stripe

import "sync"

// subscriptionLocks serializes webhook handlers per subscription ID. Stripe
// can deliver customer.subscription.updated and invoice.payment_succeeded
// almost simultaneously for the same subscription; without this, both
// re-fetch-then-write sequences interleave and the earlier snapshot can
// overwrite the later one.
type subscriptionLocks struct {
	mu    sync.Mutex
	locks map[string]*subscriptionLock
}

type subscriptionLock struct {
	sync.Mutex
	refs int
}

func newSubscriptionLocks() *subscriptionLocks {
	return &subscriptionLocks{locks: make(map[string]*subscriptionLock)}
}

// Lock acquires the mutex for the given subscription ID and returns its
// unlock function, so callers can `defer locks.Lock(id)()`. Entries are
// reference-counted and dropped on the last unlock, so terminal
// subscriptions do not pin map entries forever.
func (l *subscriptionLocks) Lock(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &subscriptionLock{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
