/*
Package lock provides per-key mutual exclusion for redemptions and chat
sessions.

PURPOSE:
  A redemption reads a balance, checks it and writes it back. Two of those
  for the same identity must never interleave, otherwise both read the same
  balance and the second write silently discards the first debit. The lock
  is held across the whole read-verify-write sequence.

KEY TYPES:
  Locker:      TryLock(ctx, key) -> release, ok, err
  KeyedMutex:  in-process implementation, also offers a blocking Lock
  RedisLocker: cross-process implementation (SET NX PX + token-checked DEL)

SEMANTICS:
  - TryLock never waits. ok=false means another holder exists; the caller
    reports "busy" instead of queueing.
  - Distinct keys never contend.
  - release is safe to call more than once.

SEE ALSO:
  - redemption/redemption.go: per-identity try-lock
  - conversation/engine.go: per-channel blocking lock
*/
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive ownership of a key.
type Locker interface {
	// TryLock acquires key without waiting. When ok is true the caller owns
	// key until release is called.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// =============================================================================
// KEYED MUTEX - In-process implementation
// =============================================================================

// KeyedMutex is a set of mutexes created on demand and discarded when no
// goroutine references them, so memory stays bounded by concurrent keys.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// TryLock implements Locker. It never returns an error.
func (k *KeyedMutex) TryLock(_ context.Context, key string) (func(), bool, error) {
	s := k.ref(key)
	select {
	case s.ch <- struct{}{}:
		return k.releaser(key, s), true, nil
	default:
		k.unref(key, s)
		return nil, false, nil
	}
}

// Lock waits for key until ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	s := k.ref(key)
	select {
	case s.ch <- struct{}{}:
		return k.releaser(key, s), nil
	case <-ctx.Done():
		k.unref(key, s)
		return nil, ctx.Err()
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *KeyedMutex) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *KeyedMutex) releaser(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key, s)
		})
	}
}
