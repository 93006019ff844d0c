/*
Package conversation is the per-requester state machine that turns inbound
chat text into replies.

PURPOSE:
  A requester writes from a channel address (a phone number, a chat JID).
  The engine keeps one session per address, asks for the identifier, shows
  the catalog and hands the chosen reward to the redemption service.

STATES:
  (none) --any text--> awaitingIdentity --known id--> awaitingSelection
  awaitingIdentity   --unknown id--> awaitingIdentity
  awaitingIdentity   --nothing affordable--> (ended)
  awaitingSelection  --0|voltar|sair--> (ended)
  awaitingSelection  --unknown code--> awaitingSelection
  awaitingSelection  --busy--> awaitingSelection
  awaitingSelection  --any other outcome--> (ended)

  An ended session is removed; the next message starts over with a greeting.

FAULTS:
  A panic while handling one message is recovered, logged, the session is
  dropped and a generic apology is returned. It never reaches the transport.

CONCURRENCY:
  Messages from one address are handled one at a time (per-channel lock).
  Different addresses proceed in parallel.

SEE ALSO:
  - session.go:  step types and the session table
  - messages.go: reply texts
  - redemption/redemption.go: the write path
*/
package conversation

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/warp/rewards-bot/directory"
	"github.com/warp/rewards-bot/lock"
	"github.com/warp/rewards-bot/logger"
	"github.com/warp/rewards-bot/receipt"
	"github.com/warp/rewards-bot/redemption"
	"github.com/warp/rewards-bot/rewards"
	"github.com/warp/rewards-bot/sanitize"
)

// Catalog provides the cached directory snapshot.
type Catalog interface {
	Current(ctx context.Context) (*directory.Snapshot, error)
}

// Redeemer performs a redemption.
type Redeemer interface {
	Redeem(ctx context.Context, req redemption.Request) (*redemption.Result, error)
}

type Options struct {
	IdentityMode sanitize.IdentityMode
	Location     *time.Location
	SessionTTL   time.Duration // 0 keeps idle sessions forever
	Now          func() time.Time
}

type Engine struct {
	catalog  Catalog
	redeemer Redeemer
	log      *logger.Logger
	opts     Options

	channels *lock.KeyedMutex
	sessions *sessionTable
}

func NewEngine(catalog Catalog, redeemer Redeemer, log *logger.Logger, opts Options) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if !opts.IdentityMode.Valid() {
		opts.IdentityMode = sanitize.IdentityCPF
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		catalog:  catalog,
		redeemer: redeemer,
		log:      log.With("service", "Conversation"),
		opts:     opts,
		channels: lock.NewKeyedMutex(),
		sessions: newSessionTable(),
	}
}

// Handle processes one inbound message and returns the reply. It never
// panics and never returns an empty reply.
func (e *Engine) Handle(ctx context.Context, channel, text string) (reply string) {
	release, err := e.channels.Lock(ctx, channel)
	if err != nil {
		return MsgGenericError
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while handling message",
				"channel", channel,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			e.sessions.remove(channel)
			reply = MsgGenericError
		}
	}()

	snap, err := e.catalog.Current(ctx)
	if err != nil {
		e.log.Error("directory unavailable", "channel", channel, "error", err)
		return MsgLoadError
	}

	now := e.opts.Now()
	sess, ok := e.sessions.acquire(channel, now, func(s *session) bool {
		if e.expired(s, now) {
			e.log.Debug("session expired", "channel", channel)
			return true
		}
		return false
	})
	if !ok {
		e.sessions.put(channel, &session{step: awaitingIdentity{}, lastSeen: now})
		return greeting(e.opts.IdentityMode)
	}

	switch st := sess.step.(type) {
	case awaitingIdentity:
		return e.onIdentity(channel, sess, snap, text)
	case awaitingSelection:
		return e.onSelection(ctx, channel, st, snap, text)
	default:
		e.sessions.remove(channel)
		return MsgGenericError
	}
}

func (e *Engine) onIdentity(channel string, sess *session, snap *directory.Snapshot, text string) string {
	key := sanitize.NormalizeIdentity(text, e.opts.IdentityMode)
	emp, ok := snap.Employee(key)
	if !ok {
		return identityNotFound(e.opts.IdentityMode)
	}

	body, available := catalog(emp, snap.Rewards())
	if !available {
		e.sessions.remove(channel)
		return body + MsgNoneAvailable
	}
	e.sessions.advance(channel, sess, awaitingSelection{identity: key})
	return body + MsgChoosePrompt
}

func (e *Engine) onSelection(ctx context.Context, channel string, st awaitingSelection, snap *directory.Snapshot, text string) string {
	if isExit(text) {
		e.sessions.remove(channel)
		return MsgEnded
	}

	reward, ok := snap.Reward(strings.TrimSpace(text))
	if !ok {
		return MsgInvalidOption
	}

	res, err := e.redeemer.Redeem(ctx, redemption.Request{
		Identity: st.identity,
		Reward:   reward,
		Channel:  channel,
	})
	if err != nil {
		reply, keep := outcome(err, reward)
		if !keep {
			e.sessions.remove(channel)
		}
		if !rewards.IsBusinessRejection(err) && !rewards.IsNotFound(err) {
			e.log.Warn("redemption failed", "channel", channel, "identity", st.identity, "error", err)
		}
		return reply
	}

	e.sessions.remove(channel)
	return receipt.Render(receipt.FromRecord(res.Record, e.opts.IdentityMode, e.opts.Location))
}

func (e *Engine) expired(s *session, now time.Time) bool {
	return e.opts.SessionTTL > 0 && now.Sub(s.lastSeen) > e.opts.SessionTTL
}

// PurgeExpired drops idle sessions and returns how many were removed.
func (e *Engine) PurgeExpired() int {
	if e.opts.SessionTTL <= 0 {
		return 0
	}
	now := e.opts.Now()
	return e.sessions.removeIf(func(s *session) bool { return e.expired(s, now) })
}

// Sessions reports how many conversations are open.
func (e *Engine) Sessions() int {
	return e.sessions.len()
}
