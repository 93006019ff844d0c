/*
Package directory caches the employee and reward tables in memory.

PURPOSE:
  Every chat message needs the catalog and the requester's record. Reading the
  spreadsheet on every message would be slow and would hit API quotas, so the
  bot keeps an immutable Snapshot of both tables and swaps in a new one on
  reload. Redemptions never trust the snapshot: they re-read the employee row
  through FetchEmployee under the identity lock.

KEY TYPES:
  Directory: owns the current Snapshot, reloads it, writes history lines
  Snapshot:  employees by identity, rewards by code and in sheet order
  Stats:     counts and health for the status endpoint

RELOAD:
  1. Employee and reward tables are read concurrently (errgroup)
  2. Concurrent Reload calls share one store round trip (singleflight),
     detached from the callers' cancellation and bounded by ReloadTimeout
  3. Every cell is normalized (sanitize, rewards.NormalizeGroup)
  4. The new snapshot is swapped in atomically
  5. Groups that needed repair are written back, best-effort
  On failure the previous snapshot keeps serving and the error is wrapped in
  rewards.ErrSourceUnavailable.

BALANCE PATCH:
  After a committed debit the redemption service calls PatchBalance. Balances
  live in per-entry atomics, so readers of a snapshot never see a torn value.
  A patch that lands while a reload is reading the store is re-applied to the
  snapshot that reload produces.

SEE ALSO:
  - schema.go: table names, header spellings, Bootstrap
  - redemption/redemption.go: the only caller of PatchBalance
*/
package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/warp/rewards-bot/logger"
	"github.com/warp/rewards-bot/rewards"
	"github.com/warp/rewards-bot/sanitize"
	"github.com/warp/rewards-bot/store"
)

// HistoryDateLayout renders audit timestamps the way pt-BR locales print them.
const HistoryDateLayout = "02/01/2006, 15:04:05"

// =============================================================================
// SNAPSHOT
// =============================================================================

type employeeEntry struct {
	employee rewards.Employee
	balance  atomic.Int64
}

// Snapshot is an immutable view of both tables, except for balances which
// only change through Directory.PatchBalance.
type Snapshot struct {
	employees map[string]*employeeEntry
	rewards   map[string]rewards.Reward
	order     []rewards.Reward
	LoadedAt  time.Time
}

// Employee returns the cached record for a normalized identity.
func (s *Snapshot) Employee(key string) (rewards.Employee, bool) {
	e, ok := s.employees[key]
	if !ok {
		return rewards.Employee{}, false
	}
	emp := e.employee
	emp.Balance = int(e.balance.Load())
	return emp, true
}

// Reward looks a reward up by the code a requester typed.
func (s *Snapshot) Reward(code string) (rewards.Reward, bool) {
	r, ok := s.rewards[rewardKey(code)]
	return r, ok
}

// Rewards returns the catalog in sheet order.
func (s *Snapshot) Rewards() []rewards.Reward {
	out := make([]rewards.Reward, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Snapshot) EmployeeCount() int { return len(s.employees) }
func (s *Snapshot) RewardCount() int   { return len(s.order) }

func rewardKey(code string) string {
	return strings.TrimSpace(code)
}

// =============================================================================
// DIRECTORY
// =============================================================================

type Options struct {
	IdentityMode sanitize.IdentityMode
	Location     *time.Location
	Now          func() time.Time

	// ReloadTimeout bounds one reload, which runs detached from the caller
	// that started it. Defaults to DefaultReloadTimeout.
	ReloadTimeout time.Duration
}

// DefaultReloadTimeout bounds a reload when Options leaves it unset.
const DefaultReloadTimeout = time.Minute

type Directory struct {
	rs   store.RowStore
	log  *logger.Logger
	opts Options

	snap  atomic.Pointer[Snapshot]
	group singleflight.Group

	mu       sync.Mutex
	lastErr  error
	patchSeq uint64
	patches  map[string]balancePatch
}

type balancePatch struct {
	balance int
	seq     uint64
}

// Stats summarizes the directory for the status endpoint.
type Stats struct {
	EmployeeCount int
	RewardCount   int
	LoadedAt      time.Time
	Connected     bool
	LastError     string
}

func New(rs store.RowStore, log *logger.Logger, opts Options) *Directory {
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
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = DefaultReloadTimeout
	}
	return &Directory{
		rs:      rs,
		log:     log.With("service", "Directory"),
		opts:    opts,
		patches: make(map[string]balancePatch),
	}
}

// IdentityMode reports how identities are normalized.
func (d *Directory) IdentityMode() sanitize.IdentityMode { return d.opts.IdentityMode }

// Current returns the cached snapshot, loading it on first use.
func (d *Directory) Current(ctx context.Context) (*Snapshot, error) {
	if s := d.snap.Load(); s != nil {
		return s, nil
	}
	return d.Reload(ctx)
}

// Reload fetches both tables and swaps in a fresh snapshot. Concurrent
// callers share one reload, so it is not cancelled with any one caller's ctx;
// Options.ReloadTimeout bounds it instead.
func (d *Directory) Reload(ctx context.Context) (*Snapshot, error) {
	v, err, shared := d.group.Do("reload", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.ReloadTimeout)
		defer cancel()
		return d.reload(rctx)
	})
	if shared {
		d.log.Debug("reload shared with concurrent caller")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (d *Directory) reload(ctx context.Context) (*Snapshot, error) {
	d.mu.Lock()
	startSeq := d.patchSeq
	d.mu.Unlock()

	var empRows, rewRows []store.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := d.rs.Rows(gctx, EmployeeTable)
		empRows = rows
		return err
	})
	g.Go(func() error {
		rows, err := d.rs.Rows(gctx, RewardTable)
		rewRows = rows
		return err
	})
	if err := g.Wait(); err != nil {
		d.setErr(err)
		d.log.Error("reload failed, keeping previous snapshot", "error", err)
		return nil, fmt.Errorf("%w: %w", rewards.ErrSourceUnavailable, err)
	}

	snap, fixes := d.build(empRows, rewRows)

	d.mu.Lock()
	for key, p := range d.patches {
		if p.seq > startSeq {
			if e := snap.employees[key]; e != nil {
				e.balance.Store(int64(p.balance))
			}
		} else {
			delete(d.patches, key)
		}
	}
	d.lastErr = nil
	d.snap.Store(snap)
	d.mu.Unlock()

	d.log.Info("snapshot loaded",
		"employees", snap.EmployeeCount(),
		"rewards", snap.RewardCount(),
		"group_fixes", len(fixes),
	)

	d.writeBack(ctx, fixes)
	return snap, nil
}

// groupFix is a repaired group waiting to be written back to its row.
type groupFix struct {
	table string
	row   int
	field string
	value string
}

func (d *Directory) build(empRows, rewRows []store.Row) (*Snapshot, []groupFix) {
	snap := &Snapshot{
		employees: make(map[string]*employeeEntry, len(empRows)),
		rewards:   make(map[string]rewards.Reward, len(rewRows)),
		LoadedAt:  d.opts.Now(),
	}
	var fixes []groupFix

	for _, row := range empRows {
		emp, fix, ok := d.parseEmployee(row)
		if !ok {
			continue
		}
		if fix != nil {
			fixes = append(fixes, *fix)
		}
		if _, dup := snap.employees[emp.Key]; dup {
			d.log.Warn("duplicate identity, keeping first row", "identity", emp.Key, "row", row.Number)
			continue
		}
		e := &employeeEntry{employee: emp}
		e.balance.Store(int64(emp.Balance))
		snap.employees[emp.Key] = e
	}

	for _, row := range rewRows {
		rw, fix, ok := parseReward(row)
		if !ok {
			continue
		}
		if fix != nil {
			fixes = append(fixes, *fix)
		}
		key := rewardKey(rw.Code)
		if _, dup := snap.rewards[key]; dup {
			d.log.Warn("duplicate reward code, keeping first row", "code", rw.Code, "row", row.Number)
			continue
		}
		snap.rewards[key] = rw
		snap.order = append(snap.order, rw)
	}

	return snap, fixes
}

func (d *Directory) parseEmployee(row store.Row) (rewards.Employee, *groupFix, bool) {
	key := sanitize.NormalizeIdentity(row.Get(ColIdentity...), d.opts.IdentityMode)
	if key == "" {
		return rewards.Employee{}, nil, false
	}

	rawBalance := row.Get(ColBalance...)
	if sanitize.HasFraction(rawBalance) {
		d.log.Warn("fractional balance truncated", "identity", key, "row", row.Number)
	}
	balance := sanitize.SafePoints(rawBalance)
	if balance < 0 {
		d.log.Warn("negative balance clamped to zero", "identity", key, "row", row.Number)
		balance = 0
	}

	groupField := row.Field(ColGroup...)
	rawGroup := row.Values[groupField]
	group := rewards.NormalizeGroup(rawGroup, rewards.KindEmployee)

	emp := rewards.Employee{
		Key:          key,
		Name:         sanitize.NormalizeName(row.Get(ColName...), sanitize.DefaultNameLength),
		TotalPoints:  sanitize.SafePoints(row.Get(ColTotalPoints...)),
		Balance:      balance,
		Group:        group,
		Row:          row.Number,
		BalanceField: row.Field(ColBalance...),
		GroupField:   groupField,
	}
	if emp.BalanceField == "" {
		emp.BalanceField = ColBalance.Canonical()
	}
	return emp, repair(EmployeeTable, row.Number, groupField, rawGroup, group), true
}

func parseReward(row store.Row) (rewards.Reward, *groupFix, bool) {
	code := strings.TrimSpace(row.Get(ColRewardCode...))
	if code == "" {
		return rewards.Reward{}, nil, false
	}
	groupField := row.Field(ColGroup...)
	rawGroup := row.Values[groupField]
	group := rewards.NormalizeGroup(rawGroup, rewards.KindReward)

	cost := sanitize.SafePoints(row.Get(ColCost...))
	if cost < 0 {
		cost = 0
	}
	rw := rewards.Reward{
		Code:       code,
		Name:       sanitize.NormalizeName(row.Get(ColName...), sanitize.DefaultNameLength),
		Cost:       cost,
		Group:      group,
		Row:        row.Number,
		GroupField: groupField,
	}
	return rw, repair(RewardTable, row.Number, groupField, rawGroup, group), true
}

// repair returns a write-back when the stored group text differs from its
// normalized form. Tables without a group column are left alone.
func repair(table string, row int, field, raw string, g rewards.Group) *groupFix {
	if field == "" || raw == g.String() {
		return nil
	}
	return &groupFix{table: table, row: row, field: field, value: g.String()}
}

func (d *Directory) writeBack(ctx context.Context, fixes []groupFix) {
	for _, f := range fixes {
		err := d.rs.UpdateRow(ctx, f.table, f.row, map[string]string{f.field: f.value})
		if err != nil {
			d.log.Warn("group write-back failed", "table", f.table, "row", f.row, "error", err)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (d *Directory) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
}

// =============================================================================
// AUTHORITATIVE ACCESS
// =============================================================================

// FetchEmployee re-reads the employee table and returns the current row for
// key, bypassing the snapshot. Returns rewards.ErrNotFound when absent.
func (d *Directory) FetchEmployee(ctx context.Context, key string) (rewards.Employee, error) {
	rows, err := d.rs.Rows(ctx, EmployeeTable)
	if err != nil {
		return rewards.Employee{}, fmt.Errorf("%w: %w", rewards.ErrSourceUnavailable, err)
	}
	for _, row := range rows {
		emp, _, ok := d.parseEmployee(row)
		if ok && emp.Key == key {
			return emp, nil
		}
	}
	return rewards.Employee{}, fmt.Errorf("employee: %w", rewards.ErrNotFound)
}

// WriteBalance stores a new balance in the employee's row.
func (d *Directory) WriteBalance(ctx context.Context, emp rewards.Employee, balance int) error {
	err := d.rs.UpdateRow(ctx, EmployeeTable, emp.Row, map[string]string{
		emp.BalanceField: strconv.Itoa(balance),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", rewards.ErrPersistenceFailed, err)
	}
	return nil
}

// AppendHistory writes one audit line for a committed redemption.
func (d *Directory) AppendHistory(ctx context.Context, rec rewards.RedemptionRecord) error {
	err := d.rs.AppendRow(ctx, HistoryTable, map[string]string{
		HistDate:          rec.At.In(d.opts.Location).Format(HistoryDateLayout),
		HistIdentity:      rec.Identity,
		HistName:          rec.Name,
		HistReward:        rec.RewardName,
		HistCost:          strconv.Itoa(rec.Cost),
		HistOrder:         rec.OrderID,
		HistBalanceBefore: strconv.Itoa(rec.BalanceBefore),
		HistBalanceAfter:  strconv.Itoa(rec.BalanceAfter),
		HistRecordID:      rec.ID,
		HistChannel:       rec.Channel,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", rewards.ErrAuditFailed, err)
	}
	return nil
}

// PatchBalance updates the cached balance after a committed debit.
func (d *Directory) PatchBalance(key string, balance int) {
	d.mu.Lock()
	d.patchSeq++
	d.patches[key] = balancePatch{balance: balance, seq: d.patchSeq}
	snap := d.snap.Load()
	d.mu.Unlock()

	if snap == nil {
		return
	}
	if e := snap.employees[key]; e != nil {
		e.balance.Store(int64(balance))
	}
}

// Stats reports counts and health.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	lastErr := d.lastErr
	d.mu.Unlock()

	st := Stats{Connected: lastErr == nil}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	snap := d.snap.Load()
	if snap == nil {
		st.Connected = false
		return st
	}
	st.EmployeeCount = snap.EmployeeCount()
	st.RewardCount = snap.RewardCount()
	st.LoadedAt = snap.LoadedAt
	return st
}
