package store

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Op names a RowStore operation, for fault injection.
type Op string

const (
	OpEnsure Op = "ensure"
	OpRows   Op = "rows"
	OpUpdate Op = "update"
	OpAppend Op = "append"
)

// Fault is consulted before every operation. A non-nil return fails the call
// without touching state. A fault may also block to simulate latency.
type Fault func(ctx context.Context, op Op, table string) error

type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	fault  Fault
	writes int
}

type memTable struct {
	headers []string
	rows    []map[string]string
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable)}
}

// InjectFault installs f for every subsequent call. nil removes it.
func (m *Memory) InjectFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

// Writes counts successful UpdateRow and AppendRow calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) check(ctx context.Context, op Op, table string) error {
	m.mu.RLock()
	f := m.fault
	m.mu.RUnlock()
	if f == nil {
		return ctx.Err()
	}
	if err := f(ctx, op, table); err != nil {
		return err
	}
	return ctx.Err()
}

func (m *Memory) EnsureTable(ctx context.Context, table string, headers []string) error {
	if err := m.check(ctx, OpEnsure, table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		t = &memTable{}
		m.tables[table] = t
	}
	missing := MissingHeaders(t.headers, headers)
	t.headers = append(t.headers, missing...)
	for _, r := range t.rows {
		for _, h := range missing {
			r[h] = ""
		}
	}
	return nil
}

func (m *Memory) Headers(ctx context.Context, table string) ([]string, error) {
	if err := m.check(ctx, OpRows, table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	return append([]string(nil), t.headers...), nil
}

func (m *Memory) Rows(ctx context.Context, table string) ([]Row, error) {
	if err := m.check(ctx, OpRows, table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	result := make([]Row, len(t.rows))
	for i, r := range t.rows {
		values := make(map[string]string, len(r))
		for k, v := range r {
			values[k] = v
		}
		result[i] = Row{Number: i + FirstDataRow, Values: values}
	}
	return result, nil
}

func (m *Memory) UpdateRow(ctx context.Context, table string, row int, fields map[string]string) error {
	if err := m.check(ctx, OpUpdate, table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	i := row - FirstDataRow
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("%s row %d: %w", table, row, ErrRowNotFound)
	}
	if err := t.checkColumns(fields); err != nil {
		return fmt.Errorf("%s: %w", table, err)
	}
	for k, v := range fields {
		t.rows[i][k] = v
	}
	m.writes++
	return nil
}

func (m *Memory) AppendRow(ctx context.Context, table string, fields map[string]string) error {
	if err := m.check(ctx, OpAppend, table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	if err := t.checkColumns(fields); err != nil {
		return fmt.Errorf("%s: %w", table, err)
	}
	r := make(map[string]string, len(t.headers))
	for _, h := range t.headers {
		r[h] = fields[h]
	}
	t.rows = append(t.rows, r)
	m.writes++
	return nil
}

func (t *memTable) checkColumns(fields map[string]string) error {
	for k := range fields {
		found := false
		for _, h := range t.headers {
			if h == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%q: %w", k, ErrUnknownColumn)
		}
	}
	return nil
}
