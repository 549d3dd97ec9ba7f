package app

import (
	"slices"
	"sync"
)

// rootKey stands in for the empty parent ID so root-level creates are serialized too.
const rootKey = "\x00root"

// keyedLocks hands out one mutex per group identifier and frees it once unused.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// lock acquires every key in sorted order and returns the matching unlock.
func (k *keyedLocks) lock(keys ...string) (unlock func()) {
	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			key = rootKey
		}
		normalized = append(normalized, key)
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	held := make([]*keyedLock, 0, len(normalized))
	for _, key := range normalized {
		l := k.acquire(key)
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(normalized[i])
		}
	}
}

func (k *keyedLocks) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys are currently tracked.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
