/*
scheduler.go - Periodic directory reload

PURPOSE:
  Re-reads the employee and reward tables on a fixed interval so edits made
  by HR show up without a restart, and drops idle conversations.

DESIGN:
  - Runs a background goroutine with configurable interval (default: 5 min)
  - A failed reload is logged; the previous snapshot keeps serving
  - Reload shares its read with any concurrent manual reload

USAGE:
  scheduler := NewReloadScheduler(dir, engine, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Reload endpoint (manual reload)
  - directory/directory.go: Reload
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/rewards-bot/directory"
	"github.com/warp/rewards-bot/logger"
)

// Reloader is what the scheduler refreshes.
type Reloader interface {
	Reload(ctx context.Context) (*directory.Snapshot, error)
}

// SessionPurger drops idle conversations.
type SessionPurger interface {
	PurgeExpired() int
}

// ReloadScheduler handles the periodic reload.
type ReloadScheduler struct {
	Directory Reloader
	Sessions  SessionPurger
	Interval  time.Duration
	Timeout   time.Duration
	Enabled   bool

	log    *logger.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReloadScheduler creates a new scheduler. sessions may be nil.
func NewReloadScheduler(dir Reloader, sessions SessionPurger, log *logger.Logger) *ReloadScheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &ReloadScheduler{
		Directory: dir,
		Sessions:  sessions,
		Interval:  5 * time.Minute,
		Timeout:   time.Minute,
		Enabled:   true,
		log:       log.With("service", "Scheduler"),
	}
}

// Start begins the scheduler. The first reload runs immediately.
func (rs *ReloadScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.Interval <= 0 {
		rs.log.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info("started", "interval", rs.Interval.String())
}

// Stop stops the scheduler and waits for an in-flight reload.
func (rs *ReloadScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info("stopped")
	}
}

func (rs *ReloadScheduler) run() {
	defer rs.wg.Done()

	rs.RunNow()

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow()
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one reload and purge.
func (rs *ReloadScheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.Timeout)
	defer cancel()

	snap, err := rs.Directory.Reload(ctx)
	if err != nil {
		rs.log.Error("reload failed, keeping previous snapshot", "error", err)
	} else {
		rs.log.Debug("reloaded",
			"employees", snap.EmployeeCount(),
			"rewards", snap.RewardCount(),
		)
	}

	if rs.Sessions != nil {
		if n := rs.Sessions.PurgeExpired(); n > 0 {
			rs.log.Info("purged idle sessions", "count", n)
		}
	}
}
