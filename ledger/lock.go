/*
lock.go - Per-(date, target) advisory locking

PURPOSE:
  The balance-sufficiency check and the ledger write are separated by
  several persistence round-trips. Two concurrent payments against the
  same near-exhausted target could both pass the check and both post,
  overdrawing the target. KeyedLock closes that window: the orchestrator
  holds the lock for every (date, target) it touches across the whole
  validate-then-write sequence.

  Locks are acquired in sorted key order so two calls touching overlapping
  target sets cannot deadlock.
*/
package ledger

import (
	"sort"
	"sync"
)

// KeyedLock is a set of named mutexes, one per (date, target) pair.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedLock) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// LockKey builds the lock key for one (date, target) pair.
func LockKey(date Date, target PaymentTarget) string {
	return date.String() + "/" + target.Key()
}

// Acquire locks every key (deduplicated, sorted) and returns the release
// function. Release must be called exactly once.
func (k *KeyedLock) Acquire(keys []string) (release func()) {
	uniq := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		uniq[key] = struct{}{}
	}
	ordered := make([]string, 0, len(uniq))
	for key := range uniq {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, key := range ordered {
		m := k.lockFor(key)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		// Unlock in reverse acquisition order.
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// AcquireTargets locks (date, target) for every target.
func (k *KeyedLock) AcquireTargets(date Date, targets []PaymentTarget) (release func()) {
	keys := make([]string, 0, len(targets))
	for _, t := range targets {
		keys = append(keys, LockKey(date, t))
	}
	return k.Acquire(keys)
}
