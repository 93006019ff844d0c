package rewards

import "strings"

// =============================================================================
// GROUP - Ordered privilege tier
// =============================================================================

// Group is a privilege tier. Lower index in Groups means more privilege.
type Group string

const (
	GroupAA Group = "AA"
	GroupA  Group = "A"
	GroupB  Group = "B"
	GroupC  Group = "C"
	GroupD  Group = "D"
)

// Groups lists every tier, highest privilege first.
var Groups = []Group{GroupAA, GroupA, GroupB, GroupC, GroupD}

// Index returns the tier's position in Groups, or -1 if g is not a tier.
func (g Group) Index() int {
	for i, candidate := range Groups {
		if candidate == g {
			return i
		}
	}
	return -1
}

// Valid reports whether g is a member of Groups.
func (g Group) Valid() bool { return g.Index() >= 0 }

func (g Group) String() string { return string(g) }

// RecordKind selects the default tier used when a stored group is unusable.
type RecordKind int

const (
	KindEmployee RecordKind = iota
	KindReward
)

// DefaultGroup is the tier assigned when repair fails: employees fall to the
// lowest tier, rewards to C.
func (k RecordKind) DefaultGroup() Group {
	if k == KindReward {
		return GroupC
	}
	return GroupD
}

// ParseGroup upper-cases and trims raw and reports whether it names a tier.
func ParseGroup(raw string) (Group, bool) {
	g := Group(strings.ToUpper(strings.TrimSpace(raw)))
	return g, g.Valid()
}

// NormalizeGroup always returns a valid tier. Stray punctuation and digits are
// stripped before the second attempt ("b.", " a1 " -> B, A).
//
// Callers compare the result with the stored text and write it back when they
// differ, so the sheet heals itself over successive reloads.
func NormalizeGroup(raw string, kind RecordKind) Group {
	if g, ok := ParseGroup(raw); ok {
		return g
	}

	upper := strings.ToUpper(raw)
	var b strings.Builder
	for _, r := range upper {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	if g := Group(b.String()); g.Valid() {
		return g
	}
	return kind.DefaultGroup()
}
