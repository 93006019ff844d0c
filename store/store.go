/*
Package store defines the row-store contract the bot reads and writes.

PURPOSE:
  Employee balances, the reward catalog and the redemption history live in a
  spreadsheet-like table service. The bot never owns that data: it reads
  whole tables, updates single rows in place, and appends history lines.
  This interface is the seam between the domain and the table service.

KEY TYPES:
  RowStore: EnsureTable, Headers, Rows, UpdateRow, AppendRow
  Row:      one data row, header name -> cell text

ROW NUMBERS:
  Rows are addressed the way a spreadsheet addresses them: the header is row
  1, the first data row is row 2. Every implementation follows this so a
  Row.Number read from one call can be passed back to UpdateRow.

HEADER ALIASES:
  Sheets edited by hand drift between "Saldo" and "SALDO", "ID" and "CPF".
  Row.Get and Row.Field accept several spellings and use the first present.

IMPLEMENTATIONS:
  - store/memory.go:        in-memory, with fault injection for tests
  - store/sqlite/sqlite.go: SQLite, for local runs
  - store/sheets/sheets.go: Google Sheets, production

SEE ALSO:
  - directory/schema.go: table names and headers
  - timeout.go: bounded-latency decorator
*/
package store

import (
	"context"
	"errors"
	"strings"
)

// =============================================================================
// ROW STORE - Interface for table persistence
// =============================================================================

// RowStore is a key-indexed table service. All calls may fail and all may block
// on the network; callers bound them with a context deadline.
type RowStore interface {
	// EnsureTable creates table with headers if it does not exist, and appends
	// any header missing from an existing table. Idempotent.
	EnsureTable(ctx context.Context, table string, headers []string) error

	// Headers returns the header row of table, in column order.
	Headers(ctx context.Context, table string) ([]string, error)

	// Rows returns every data row of table, in table order.
	Rows(ctx context.Context, table string) ([]Row, error)

	// UpdateRow overwrites the named cells of one row. Cells not named are
	// left untouched.
	UpdateRow(ctx context.Context, table string, row int, fields map[string]string) error

	// AppendRow adds a row after the last one. Unknown field names are an error.
	AppendRow(ctx context.Context, table string, fields map[string]string) error
}

// FirstDataRow is the number of the first row below the header.
const FirstDataRow = 2

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTableNotFound is returned when a table was never ensured.
	ErrTableNotFound = errors.New("table not found")

	// ErrRowNotFound is returned when UpdateRow targets a missing row.
	ErrRowNotFound = errors.New("row not found")

	// ErrUnknownColumn is returned when a write names a header the table lacks.
	ErrUnknownColumn = errors.New("unknown column")
)

// =============================================================================
// ROW
// =============================================================================

// Row is a single data row. Values holds every header of the table, with ""
// for empty cells.
type Row struct {
	Number int
	Values map[string]string
}

// Get returns the first non-blank value among the given header spellings.
func (r Row) Get(names ...string) string {
	for _, n := range names {
		if v, ok := r.Values[n]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Field returns the first of names that exists as a header in this row,
// preferring one that holds a value. Used to pick the column to write back to.
// Returns "" when none of the spellings is present.
func (r Row) Field(names ...string) string {
	first := ""
	for _, n := range names {
		v, ok := r.Values[n]
		if !ok {
			continue
		}
		if strings.TrimSpace(v) != "" {
			return n
		}
		if first == "" {
			first = n
		}
	}
	return first
}

// MissingHeaders returns the entries of want not present in have, in order.
func MissingHeaders(have, want []string) []string {
	seen := make(map[string]bool, len(have))
	for _, h := range have {
		seen[h] = true
	}
	var out []string
	for _, w := range want {
		if !seen[w] {
			out = append(out, w)
			seen[w] = true
		}
	}
	return out
}
