package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func olderThan(ttl time.Duration, now time.Time) func(*session) bool {
	return func(s *session) bool { return now.Sub(s.lastSeen) > ttl }
}

func TestSessionTable_AcquireTouchesBeforePurgeSeesIt(t *testing.T) {
	// GIVEN: a session last seen at t0 with a 10 minute TTL
	tbl := newSessionTable()
	tbl.put("ch", &session{step: awaitingIdentity{}, lastSeen: t0})

	// WHEN: a message arrives at t0+9m and a purge runs at t0+12m
	s, ok := tbl.acquire("ch", t0.Add(9*time.Minute), olderThan(10*time.Minute, t0.Add(9*time.Minute)))
	require.True(t, ok)
	removed := tbl.removeIf(olderThan(10*time.Minute, t0.Add(12*time.Minute)))

	// THEN: the purge sees the new lastSeen and keeps the session
	assert.Equal(t, 0, removed)
	assert.Equal(t, t0.Add(9*time.Minute), s.lastSeen)
	assert.Equal(t, 1, tbl.len())
}

func TestSessionTable_AcquireDropsExpired(t *testing.T) {
	tbl := newSessionTable()
	tbl.put("ch", &session{step: awaitingIdentity{}, lastSeen: t0})

	now := t0.Add(11 * time.Minute)
	_, ok := tbl.acquire("ch", now, olderThan(10*time.Minute, now))

	assert.False(t, ok)
	assert.Equal(t, 0, tbl.len())
}

func TestSessionTable_AdvanceRestoresPurgedSession(t *testing.T) {
	// GIVEN: a session acquired for handling
	tbl := newSessionTable()
	tbl.put("ch", &session{step: awaitingIdentity{}, lastSeen: t0})
	s, ok := tbl.acquire("ch", t0, olderThan(time.Minute, t0))
	require.True(t, ok)

	// WHEN: a purge removes it mid-message and the handler then advances it
	tbl.removeIf(func(*session) bool { return true })
	tbl.advance("ch", s, awaitingSelection{identity: "12345678909"})

	// THEN: the confirmed identity is still on the channel
	got, ok := tbl.acquire("ch", t0, olderThan(time.Minute, t0))
	require.True(t, ok)
	assert.Equal(t, awaitingSelection{identity: "12345678909"}, got.step)
}
