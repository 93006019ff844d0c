package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/rewards-bot/config"
	"github.com/warp/rewards-bot/conversation"
	"github.com/warp/rewards-bot/directory"
	"github.com/warp/rewards-bot/lock"
	"github.com/warp/rewards-bot/logger"
	"github.com/warp/rewards-bot/redemption"
	"github.com/warp/rewards-bot/store"
	"github.com/warp/rewards-bot/store/sheets"
	"github.com/warp/rewards-bot/store/sqlite"
)

// Optional store capabilities, checked on the unwrapped backend.
type (
	pinger interface {
		Ping(ctx context.Context) error
	}
	resetter interface {
		Reset(ctx context.Context) error
	}
)

var errNoReset = errors.New("store cannot be reset")

// app is every long-lived component, wired from one Config.
type app struct {
	cfg     config.Config
	log     *logger.Logger
	backend store.RowStore // as opened, without the timeout wrapper
	store   store.RowStore
	dir     *directory.Directory
	engine  *conversation.Engine

	closers []func() error
}

// newApp opens the store and the lock backend and builds the services on
// top. The tables are created or repaired before anything reads them.
func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	raw, err := a.openStore(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open store", err)
	}
	a.backend = raw
	a.store = store.WithTimeout(raw, cfg.StoreTimeout)

	if err := directory.Bootstrap(ctx, a.store); err != nil {
		a.Close()
		return nil, WrapExitError(ExitFailure, "failed to prepare tables", err)
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitFailure, "failed to connect lock backend", err)
	}

	loc := cfg.Location()
	a.dir = directory.New(a.store, log, directory.Options{
		IdentityMode: cfg.IdentityMode,
		Location:     loc,
	})
	svc := redemption.NewService(a.dir, locker, log, redemption.Options{Location: loc})
	a.engine = conversation.NewEngine(a.dir, svc, log, conversation.Options{
		IdentityMode: cfg.IdentityMode,
		Location:     loc,
		SessionTTL:   cfg.SessionTTL,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.RowStore, error) {
	switch a.cfg.StoreDriver {
	case config.DriverMemory:
		a.log.Warn("using in-memory store, nothing survives a restart")
		return store.NewMemory(), nil
	case config.DriverSQLite:
		st, err := sqlite.New(a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		a.log.Info("sqlite store ready", "path", a.cfg.SQLitePath)
		return st, nil
	case config.DriverSheets:
		st, err := sheets.NewFromCredentialsJSON(ctx, []byte(a.cfg.CredentialsJSON), a.cfg.SheetID)
		if err != nil {
			return nil, err
		}
		a.log.Info("google sheets store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}
}

func (a *app) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.RedisAddr == "" {
		return lock.NewKeyedMutex(), nil
	}
	rdb, err := lock.Dial(ctx, a.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.log.Info("redis identity lock ready", "addr", a.cfg.RedisAddr)
	return lock.NewRedisLocker(rdb, "rewards:redeem:", a.cfg.LockTTL, a.log), nil
}

// ping checks that the backend answers, for stores that can tell.
func (a *app) ping(ctx context.Context) error {
	p, ok := a.backend.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// reset empties the backend and recreates the tables.
func (a *app) reset(ctx context.Context) error {
	r, ok := a.backend.(resetter)
	if !ok {
		return fmt.Errorf("%w: driver %q", errNoReset, a.cfg.StoreDriver)
	}
	if err := r.Reset(ctx); err != nil {
		return err
	}
	return directory.Bootstrap(ctx, a.store)
}

// Close releases the store and lock connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
