/*
Package sanitize normalizes free-text values read from the row store or typed
by a requester into canonical forms.

PURPOSE:
  The backing spreadsheet is edited by hand. Identifiers arrive with dots and
  dashes, names carry stray emoji or tabs, numeric cells hold "1.234" or
  "  50 pts". Everything that enters the domain passes through here first.

FUNCTIONS:
  NormalizeIdentity: CPF digits-only, or lower-cased email
  NormalizeName:     printable, NFC-normalized, length-capped display name
  SafeInt:           lenient integer parse, 0 on garbage
  SafeNumberBR:      Brazilian-formatted decimal ("1.234,56")
  SafePoints:        whole points from either form

GUARANTEES:
  All functions are total: they never return an error and never panic.
  NormalizeIdentity and NormalizeName are idempotent.

SEE ALSO:
  - rewards/group.go: NormalizeGroup (tier repair)
  - directory/directory.go: applies these to every row on reload
*/
package sanitize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// DefaultNameLength is the display-name cap used across the catalog and receipts.
const DefaultNameLength = 60

// =============================================================================
// IDENTITY
// =============================================================================

// IdentityMode selects how requester identifiers are canonicalized.
type IdentityMode string

const (
	IdentityCPF   IdentityMode = "cpf"
	IdentityEmail IdentityMode = "email"
)

// Valid reports whether m is a known identity mode.
func (m IdentityMode) Valid() bool {
	return m == IdentityCPF || m == IdentityEmail
}

// Label is the user-facing name of the identifier ("CPF", "E-mail").
func (m IdentityMode) Label() string {
	if m == IdentityEmail {
		return "E-mail"
	}
	return "CPF"
}

// NormalizeIdentity canonicalizes a raw identifier. An empty result means
// "no usable identifier" and is treated as not found downstream.
func NormalizeIdentity(raw string, mode IdentityMode) string {
	if mode == IdentityEmail {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return digitsOnly(raw)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// =============================================================================
// NAMES
// =============================================================================

// NormalizeName turns control whitespace into spaces, drops every rune that is
// not a letter, digit, space or one of . , ' - and caps the result at maxLen
// runes. maxLen <= 0 uses DefaultNameLength.
func NormalizeName(raw string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultNameLength
	}
	s := norm.NFC.String(raw)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == ',' || r == '\'' || r == '-':
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > maxLen {
		out = strings.TrimSpace(string(runes[:maxLen]))
	}
	return out
}

// =============================================================================
// NUMBERS
// =============================================================================

// SafeInt keeps digits, plus minus signs seen before the first digit, and
// parses what is left. Anything that does not parse yields 0.
func SafeInt(raw string) int {
	var b strings.Builder
	digits := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits = true
			b.WriteRune(r)
		case r == '-' && !digits:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return n
}

// SafeNumberBR parses a number written the Brazilian way: dots group
// thousands, the comma is the decimal separator. Returns zero on garbage.
func SafeNumberBR(raw string) decimal.Decimal {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ".", "")
	s = strings.Replace(s, ",", ".", 1)

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SafePoints reads a whole point count. A cell with a decimal comma
// ("1.234,00") keeps its integer part; anything else goes through SafeInt.
func SafePoints(raw string) int {
	if strings.Contains(raw, ",") {
		return int(SafeNumberBR(raw).IntPart())
	}
	return SafeInt(raw)
}

// HasFraction reports whether raw, read as a Brazilian number, carries a
// non-zero fractional part that SafePoints drops.
func HasFraction(raw string) bool {
	if !strings.Contains(raw, ",") {
		return false
	}
	d := SafeNumberBR(raw)
	return !d.Equal(d.Truncate(0))
}
