package service

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
)

// keyedMutex linearizes bids per auction inside a single process. Acquisition
// is bounded: waiters time out with ErrLockTimeout instead of queueing
// indefinitely. A multi-node deployment must move this to a datastore lock.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[snowflake.ID]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[snowflake.ID]*lockEntry)}
}

// Acquire blocks until the key's lock is held, the timeout elapses, or ctx is
// done. On success the returned func releases the lock.
func (k *keyedMutex) Acquire(ctx context.Context, key snowflake.ID, timeout time.Duration) (func(), error) {
	k.mu.Lock()
	entry := k.entries[key]
	if entry == nil {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			k.put(key, entry)
		}, nil
	case <-timer.C:
		k.put(key, entry)
		return nil, auctiondomain.ErrLockTimeout
	case <-ctx.Done():
		k.put(key, entry)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) put(key snowflake.ID, entry *lockEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
