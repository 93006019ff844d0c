package conversation

import (
	"sync"
	"time"
)

// step is the state of a session. Each variant carries only what is valid in
// that state.
type step interface {
	isStep()
}

// awaitingIdentity waits for the requester's identifier.
type awaitingIdentity struct{}

// awaitingSelection waits for a reward code; identity is confirmed.
type awaitingSelection struct {
	identity string
}

func (awaitingIdentity) isStep()  {}
func (awaitingSelection) isStep() {}

type session struct {
	step     step
	lastSeen time.Time
}

// sessionTable maps channel address to session. Sessions are only mutated
// while the channel lock is held, and always under the table lock too, since
// PurgeExpired reads them from other goroutines.
type sessionTable struct {
	mu   sync.Mutex
	byCh map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byCh: make(map[string]*session)}
}

// acquire returns the live session for channel and marks it seen at now.
// An expired session is dropped and reported as missing. Lookup and touch
// happen in one critical section so a concurrent purge cannot split them.
func (t *sessionTable) acquire(channel string, now time.Time, expired func(*session) bool) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byCh[channel]
	if !ok {
		return nil, false
	}
	if expired(s) {
		delete(t.byCh, channel)
		return nil, false
	}
	s.lastSeen = now
	return s, true
}

// advance moves s to the next step and (re)registers it under channel, in
// case a purge removed it while the message was being handled.
func (t *sessionTable) advance(channel string, s *session, next step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.step = next
	t.byCh[channel] = s
}

func (t *sessionTable) put(channel string, s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byCh[channel] = s
}

func (t *sessionTable) remove(channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCh, channel)
}

func (t *sessionTable) removeIf(pred func(*session) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for ch, s := range t.byCh {
		if pred(s) {
			delete(t.byCh, ch)
			n++
		}
	}
	return n
}

func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byCh)
}
