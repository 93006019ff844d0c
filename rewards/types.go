/*
Package rewards holds the redemption domain: employee and reward records,
the tiered group enumeration, the eligibility table and the error taxonomy.

PURPOSE:
  Employees accumulate points in a spreadsheet maintained by HR. Through a
  chat conversation they spend their balance on catalog rewards. This
  package defines what those records look like once normalized, and which
  (group, reward, cost) combinations are allowed.

KEY TYPES:
  Group:            ordered tier AA > A > B > C > D
  Employee:         spendable balance + tier, with its row in the store
  Reward:           catalog entry with cost and required tier
  RedemptionRecord: one append-only audit line per successful debit

INVARIANTS:
  - Employee.Balance >= 0 after every debit
  - RedemptionRecord.BalanceBefore - Cost == BalanceAfter
  - Every record carries a valid Group (NormalizeGroup never fails)

SEE ALSO:
  - group.go:    tier parsing and repair
  - policies.go: CanRedeem decision table
  - errors.go:   sentinel and structured errors
*/
package rewards

import "time"

// =============================================================================
// RECORDS
// =============================================================================

// Employee is a normalized row of the employee sheet.
type Employee struct {
	Key         string // normalized identity (CPF digits or lower-cased email)
	Name        string
	TotalPoints int // lifetime points, informational
	Balance     int
	Group       Group

	// Location in the backing store, used for in-place updates.
	Row          int
	BalanceField string // header actually present for the balance column
	GroupField   string
}

// Reward is a normalized row of the reward catalog.
type Reward struct {
	Code  string
	Name  string
	Cost  int
	Group Group

	Row        int
	GroupField string
}

// RedemptionRecord is the audit line written after a debit commits.
type RedemptionRecord struct {
	ID            string // audit row key (uuid)
	At            time.Time
	Identity      string
	Name          string
	RewardCode    string
	RewardName    string
	Cost          int
	OrderID       string
	BalanceBefore int
	BalanceAfter  int
	Channel       string // originating chat address, optional
}

// Consistent reports whether the record's balances agree with its cost.
func (r RedemptionRecord) Consistent() bool {
	return r.BalanceBefore-r.Cost == r.BalanceAfter && r.BalanceAfter >= 0
}

// Affordable reports whether e can pay for r and is allowed to.
func (e Employee) Affordable(r Reward) bool {
	return CanRedeem(e.Group, r.Group, r.Cost) && e.Balance >= r.Cost
}
