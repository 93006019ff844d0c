package store

import (
	"context"
	"time"
)

// WithTimeout bounds every call to rs by d. A zero or negative d returns rs
// unchanged.
func WithTimeout(rs RowStore, d time.Duration) RowStore {
	if d <= 0 {
		return rs
	}
	return &timeoutStore{next: rs, timeout: d}
}

type timeoutStore struct {
	next    RowStore
	timeout time.Duration
}

func (s *timeoutStore) EnsureTable(ctx context.Context, table string, headers []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.EnsureTable(ctx, table, headers)
}

func (s *timeoutStore) Headers(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Headers(ctx, table)
}

func (s *timeoutStore) Rows(ctx context.Context, table string) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Rows(ctx, table)
}

func (s *timeoutStore) UpdateRow(ctx context.Context, table string, row int, fields map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.UpdateRow(ctx, table, row, fields)
}

func (s *timeoutStore) AppendRow(ctx context.Context, table string, fields map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.AppendRow(ctx, table, fields)
}
