/*
Package sqlite provides a SQLite-backed implementation of store.RowStore.

PURPOSE:
  Lets the bot run locally, or in a single-box deployment, without a Google
  Sheets account. Tables are modelled the way a spreadsheet models them: a
  header list per table and numbered rows whose cells are stored as JSON.
  Everything above the store (normalization, alias headers, write-back)
  behaves exactly as it does against Sheets.

KEY TABLES:
  sheet_tables: table name -> ordered header list
  sheet_rows:   (table, row_number) -> cell values

ROW NUMBERS:
  Row numbers start at 2 (row 1 is the header) and never change. Appends take
  MAX(row_number)+1 inside a transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, like the rest of the store layer.
  ":memory:" databases are pinned to a single connection so every call sees
  the same schema.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  st, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  dir := directory.New(st, log, sanitize.IdentityCPF)

SEE ALSO:
  - store/store.go: RowStore contract
  - store/memory.go: In-memory implementation for tests
  - store/sheets/sheets.go: Google Sheets implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/rewards-bot/store"
)

// Store implements store.RowStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ store.RowStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return st, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sheet_tables (
		name TEXT PRIMARY KEY,
		headers_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sheet_rows (
		table_name TEXT NOT NULL REFERENCES sheet_tables(name),
		row_number INTEGER NOT NULL,
		values_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (table_name, row_number)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW STORE (store.RowStore interface)
// =============================================================================

// EnsureTable creates the table or appends missing headers.
func (s *Store) EnsureTable(ctx context.Context, table string, headers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	existing, err := loadHeaders(ctx, sqlTx, table)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	merged := append(existing, store.MissingHeaders(existing, headers)...)
	if err == nil && len(merged) == len(existing) {
		return nil
	}

	if merged == nil {
		merged = []string{}
	}
	headersJSON, _ := json.Marshal(merged)
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO sheet_tables (name, headers_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET headers_json = excluded.headers_json
	`, table, string(headersJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save headers for %s: %w", table, err)
	}

	return sqlTx.Commit()
}

// Headers returns the table's header list.
func (s *Store) Headers(ctx context.Context, table string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	headers, err := loadHeaders(ctx, s.db, table)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", table, store.ErrTableNotFound)
	}
	return headers, err
}

// Rows returns all rows of a table ordered by row number.
func (s *Store) Rows(ctx context.Context, table string) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	headers, err := loadHeaders(ctx, s.db, table)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", table, store.ErrTableNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_number, values_json
		FROM sheet_rows
		WHERE table_name = ?
		ORDER BY row_number ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var result []store.Row
	for rows.Next() {
		var (
			number     int
			valuesJSON string
		)
		if err := rows.Scan(&number, &valuesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, store.Row{Number: number, Values: decodeValues(valuesJSON, headers)})
	}
	return result, rows.Err()
}

// UpdateRow merges fields into an existing row.
func (s *Store) UpdateRow(ctx context.Context, table string, row int, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	headers, err := loadHeaders(ctx, sqlTx, table)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", table, store.ErrTableNotFound)
	}
	if err != nil {
		return err
	}
	if err := checkColumns(headers, fields); err != nil {
		return fmt.Errorf("%s: %w", table, err)
	}

	var valuesJSON string
	err = sqlTx.QueryRowContext(ctx,
		"SELECT values_json FROM sheet_rows WHERE table_name = ? AND row_number = ?",
		table, row,
	).Scan(&valuesJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s row %d: %w", table, row, store.ErrRowNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load row: %w", err)
	}

	values := decodeValues(valuesJSON, headers)
	for k, v := range fields {
		values[k] = v
	}
	encoded, _ := json.Marshal(values)

	_, err = sqlTx.ExecContext(ctx, `
		UPDATE sheet_rows SET values_json = ?, updated_at = ?
		WHERE table_name = ? AND row_number = ?
	`, string(encoded), time.Now().UTC().Format(time.RFC3339), table, row)
	if err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}

	return sqlTx.Commit()
}

// AppendRow adds a row numbered after the current last row.
func (s *Store) AppendRow(ctx context.Context, table string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	headers, err := loadHeaders(ctx, sqlTx, table)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", table, store.ErrTableNotFound)
	}
	if err != nil {
		return err
	}
	if err := checkColumns(headers, fields); err != nil {
		return fmt.Errorf("%s: %w", table, err)
	}

	var last sql.NullInt64
	if err := sqlTx.QueryRowContext(ctx,
		"SELECT MAX(row_number) FROM sheet_rows WHERE table_name = ?", table,
	).Scan(&last); err != nil {
		return fmt.Errorf("failed to find last row: %w", err)
	}
	next := store.FirstDataRow
	if last.Valid {
		next = int(last.Int64) + 1
	}

	encoded, _ := json.Marshal(fields)
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO sheet_rows (table_name, row_number, values_json, updated_at)
		VALUES (?, ?, ?, ?)
	`, table, next, string(encoded), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("row %d of %s already exists: %w", next, table, err)
		}
		return fmt.Errorf("failed to append row: %w", err)
	}

	return sqlTx.Commit()
}

// Reset drops every table and row.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sheet_rows; DELETE FROM sheet_tables;")
	return err
}

// Helper functions

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadHeaders(ctx context.Context, q queryer, table string) ([]string, error) {
	var headersJSON string
	err := q.QueryRowContext(ctx,
		"SELECT headers_json FROM sheet_tables WHERE name = ?", table,
	).Scan(&headersJSON)
	if err != nil {
		return nil, err
	}
	var headers []string
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		return nil, fmt.Errorf("corrupt headers for %s: %w", table, err)
	}
	return headers, nil
}

// decodeValues returns a map holding every header, "" where the row has no cell.
func decodeValues(valuesJSON string, headers []string) map[string]string {
	raw := map[string]string{}
	if valuesJSON != "" {
		json.Unmarshal([]byte(valuesJSON), &raw)
	}
	values := make(map[string]string, len(headers))
	for _, h := range headers {
		values[h] = raw[h]
	}
	return values
}

func checkColumns(headers []string, fields map[string]string) error {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	for k := range fields {
		if !known[k] {
			return fmt.Errorf("%q: %w", k, store.ErrUnknownColumn)
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
