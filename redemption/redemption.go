/*
Package redemption performs the locked, re-validated balance debit.

PURPOSE:
  Turns "this requester picked that reward" into a committed debit, an order
  id and an audit line. This is the only code path that lowers a balance.

TRANSACTION:
  1. TryLock the identity          -> rewards.ErrBusy if held
  2. Re-read the employee row      -> rewards.ErrNotFound if gone
  3. Re-check tier and balance     -> *IneligibleError, *InsufficientBalanceError
  4. Write the new balance         -> rewards.ErrPersistenceFailed
  5. Order id PED+YYYYMMDDHHmmss from the commit time
  6. Append the audit line         -> logged, Result.AuditErr, never undone
  7. Patch the cached balance
  8. Release the lock (deferred, every path)

  Steps 5-7 run on a context detached from the caller's cancellation: once
  the debit is written, the audit line and cache patch must still happen.

SEE ALSO:
  - directory/directory.go: FetchEmployee, WriteBalance, AppendHistory
  - lock/lock.go: identity locks
*/
package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/rewards-bot/lock"
	"github.com/warp/rewards-bot/logger"
	"github.com/warp/rewards-bot/rewards"
)

// OrderPrefix starts every order id.
const OrderPrefix = "PED"

// OrderID formats t as PED + YYYYMMDDHHmmss. It is a display and audit
// correlation code, not a unique key.
func OrderID(t time.Time) string {
	return OrderPrefix + t.Format("20060102150405")
}

// Ledger is the slice of the directory a redemption needs.
type Ledger interface {
	FetchEmployee(ctx context.Context, key string) (rewards.Employee, error)
	WriteBalance(ctx context.Context, emp rewards.Employee, balance int) error
	AppendHistory(ctx context.Context, rec rewards.RedemptionRecord) error
	PatchBalance(key string, balance int)
}

// Request is one redemption attempt.
type Request struct {
	Identity string
	Reward   rewards.Reward
	Channel  string
}

// Result describes a committed redemption. AuditErr is set when the debit
// committed but the history line could not be written.
type Result struct {
	Record   rewards.RedemptionRecord
	AuditErr error
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	ledger Ledger
	locks  lock.Locker
	log    *logger.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewService(ledger Ledger, locks lock.Locker, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		ledger: ledger,
		locks:  locks,
		log:    log.With("service", "Redemption"),
		loc:    opts.Location,
		now:    opts.Now,
	}
}

// Redeem runs the transaction described in the package comment.
func (s *Service) Redeem(ctx context.Context, req Request) (*Result, error) {
	release, ok, err := s.locks.TryLock(ctx, req.Identity)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w: %w", rewards.ErrSourceUnavailable, err)
	}
	if !ok {
		return nil, rewards.ErrBusy
	}
	defer release()

	emp, err := s.ledger.FetchEmployee(ctx, req.Identity)
	if err != nil {
		return nil, err
	}

	reward := req.Reward
	if !rewards.CanRedeem(emp.Group, reward.Group, reward.Cost) {
		return nil, &rewards.IneligibleError{
			Identity:      emp.Key,
			EmployeeGroup: emp.Group,
			RewardGroup:   reward.Group,
			Cost:          reward.Cost,
		}
	}
	if emp.Balance < reward.Cost {
		return nil, &rewards.InsufficientBalanceError{
			Identity:  emp.Key,
			Reward:    reward.Code,
			Available: emp.Balance,
			Requested: reward.Cost,
			Shortfall: reward.Cost - emp.Balance,
		}
	}

	newBalance := emp.Balance - reward.Cost
	if err := s.ledger.WriteBalance(ctx, emp, newBalance); err != nil {
		s.log.Error("debit not persisted", "identity", emp.Key, "reward", reward.Code, "error", err)
		return nil, err
	}

	// Committed.
	ctx = context.WithoutCancel(ctx)
	at := s.now().In(s.loc)
	rec := rewards.RedemptionRecord{
		ID:            uuid.NewString(),
		At:            at,
		Identity:      emp.Key,
		Name:          emp.Name,
		RewardCode:    reward.Code,
		RewardName:    reward.Name,
		Cost:          reward.Cost,
		OrderID:       OrderID(at),
		BalanceBefore: emp.Balance,
		BalanceAfter:  newBalance,
		Channel:       req.Channel,
	}
	res := &Result{Record: rec}

	if err := s.ledger.AppendHistory(ctx, rec); err != nil {
		s.log.Error("audit append failed after commit",
			"identity", emp.Key,
			"order", rec.OrderID,
			"record_id", rec.ID,
			"error", err,
		)
		res.AuditErr = err
	}

	s.ledger.PatchBalance(emp.Key, newBalance)

	s.log.Info("redemption committed",
		"identity", emp.Key,
		"reward", reward.Code,
		"cost", reward.Cost,
		"balance", newBalance,
		"order", rec.OrderID,
	)
	return res, nil
}
