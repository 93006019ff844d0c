/*
policies.go - Tiered eligibility table

PURPOSE:
  Decides whether an employee of a given tier may redeem a reward of a given
  tier and cost. This is a closed table, not a formula: combinations that are
  not listed are denied.

TABLE:
  Tier  Allowed costs                    Reward tier constraint
  AA    50 100 150 200 250 300           reward index >= AA index (any)
  A     50 100 150 200                   none
  B     50 100                           reward index >= B index (B, C, D)
  C     50                               reward tier must be C
  D     -                                always denied

  Unknown employee tiers are denied.

EXAMPLE:
  CanRedeem(GroupB, GroupB, 50)   // true
  CanRedeem(GroupB, GroupA, 50)   // false: A is above B
  CanRedeem(GroupC, GroupD, 50)   // false: C only takes C rewards

SEE ALSO:
  - group.go: Group ordering
  - redemption/redemption.go: re-checks this under the identity lock
*/
package rewards

import "sort"

// =============================================================================
// ELIGIBILITY RULES
// =============================================================================

// rewardScope restricts which reward tiers a rule accepts.
type rewardScope int

const (
	scopeAny         rewardScope = iota // any reward tier
	scopeAtOrBelow                      // reward index >= employee index
	scopeSameTierOnly                   // reward tier == employee tier
)

type eligibilityRule struct {
	Costs map[int]bool
	Scope rewardScope
}

func costs(values ...int) map[int]bool {
	m := make(map[int]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// eligibilityTable is the full decision table. GroupD has no entry.
var eligibilityTable = map[Group]eligibilityRule{
	GroupAA: {Costs: costs(50, 100, 150, 200, 250, 300), Scope: scopeAtOrBelow},
	GroupA:  {Costs: costs(50, 100, 150, 200), Scope: scopeAny},
	GroupB:  {Costs: costs(50, 100), Scope: scopeAtOrBelow},
	GroupC:  {Costs: costs(50), Scope: scopeSameTierOnly},
}

// CanRedeem reports whether an employee in tier employee may redeem a reward
// tagged reward costing cost. Pure and total.
func CanRedeem(employee, reward Group, cost int) bool {
	rule, ok := eligibilityTable[employee]
	if !ok {
		return false
	}
	if !rule.Costs[cost] {
		return false
	}

	switch rule.Scope {
	case scopeAny:
		return true
	case scopeAtOrBelow:
		ri := reward.Index()
		return ri >= 0 && ri >= employee.Index()
	case scopeSameTierOnly:
		return reward == employee
	default:
		return false
	}
}

// AllowedCosts returns the cost tiers open to a group, ascending. Used to
// explain a rejection to the requester.
func AllowedCosts(g Group) []int {
	rule, ok := eligibilityTable[g]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(rule.Costs))
	for c := range rule.Costs {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}
