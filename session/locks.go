package session

import "sync"

// lockRegistry hands out one mutex per user. Entries are created on first use
// and never evicted; the per-user footprint is a single mutex, which is an
// accepted trade-off for not having to coordinate eviction with lock holders.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for userID, creating it if needed.
func (r *lockRegistry) get(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// len reports how many users have a lock allocated.
func (r *lockRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
