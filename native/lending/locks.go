package lending

import (
	"sort"
	"sync"
)

// keyedLocks serializes mutations per user and per asset. Locks are acquired
// in sorted key order so operations touching several keys (liquidations
// involve two users and one asset) cannot deadlock against each other.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *keyedLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.locks[key]; ok {
		return existing
	}
	created := &sync.Mutex{}
	l.locks[key] = created
	return created
}

// acquire locks every key and returns the release function. Duplicate keys
// are collapsed so callers may pass overlapping sets.
func (l *keyedLocks) acquire(keys ...string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	held := make([]*sync.Mutex, 0, len(unique))
	for _, key := range unique {
		mu := l.get(key)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func userLockKey(user string) string   { return "user/" + user }
func assetLockKey(asset string) string { return "asset/" + asset }
