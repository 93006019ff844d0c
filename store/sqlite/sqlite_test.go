package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rewards-bot/store"
	"github.com/warp/rewards-bot/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// =============================================================================
// ROW STORE TESTS
// =============================================================================

func TestStore_AppendAndRead(t *testing.T) {
	// GIVEN: an ensured employee table
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, "Funcionarios", []string{"ID", "Nome", "Saldo"}))

	// WHEN: appending two rows
	require.NoError(t, st.AppendRow(ctx, "Funcionarios", map[string]string{"ID": "111", "Nome": "Ana", "Saldo": "100"}))
	require.NoError(t, st.AppendRow(ctx, "Funcionarios", map[string]string{"ID": "222"}))

	// THEN: rows come back numbered from 2 with every header present
	rows, err := st.Rows(ctx, "Funcionarios")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, 3, rows[1].Number)
	assert.Equal(t, "Ana", rows[0].Values["Nome"])
	assert.Equal(t, "", rows[1].Values["Saldo"])
}

func TestStore_UpdateRow_MergesCells(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, "Funcionarios", []string{"ID", "Nome", "Saldo"}))
	require.NoError(t, st.AppendRow(ctx, "Funcionarios", map[string]string{"ID": "111", "Nome": "Ana", "Saldo": "100"}))

	require.NoError(t, st.UpdateRow(ctx, "Funcionarios", 2, map[string]string{"Saldo": "50"}))

	rows, err := st.Rows(ctx, "Funcionarios")
	require.NoError(t, err)
	assert.Equal(t, "50", rows[0].Values["Saldo"])
	assert.Equal(t, "Ana", rows[0].Values["Nome"], "untouched cells survive")
}

func TestStore_Errors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Rows(ctx, "Nope")
	assert.ErrorIs(t, err, store.ErrTableNotFound)

	require.NoError(t, st.EnsureTable(ctx, "Recompensas", []string{"ID", "Valor"}))

	err = st.UpdateRow(ctx, "Recompensas", 2, map[string]string{"Valor": "1"})
	assert.ErrorIs(t, err, store.ErrRowNotFound)

	err = st.AppendRow(ctx, "Recompensas", map[string]string{"Preco": "1"})
	assert.ErrorIs(t, err, store.ErrUnknownColumn)

	err = st.AppendRow(ctx, "Historico", map[string]string{"Data": "x"})
	assert.ErrorIs(t, err, store.ErrTableNotFound)
}

func TestStore_EnsureTable_Idempotent_AddsMissingHeaders(t *testing.T) {
	// GIVEN: a reward table created by an older version without "Grupo"
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, "Recompensas", []string{"ID", "Nome", "Valor"}))
	require.NoError(t, st.AppendRow(ctx, "Recompensas", map[string]string{"ID": "1", "Nome": "Caneca", "Valor": "50"}))

	// WHEN: ensuring twice with the current header set
	require.NoError(t, st.EnsureTable(ctx, "Recompensas", []string{"ID", "Nome", "Valor", "Grupo"}))
	require.NoError(t, st.EnsureTable(ctx, "Recompensas", []string{"ID", "Nome", "Valor", "Grupo"}))

	// THEN: the column exists once and can be written
	headers, err := st.Headers(ctx, "Recompensas")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Nome", "Valor", "Grupo"}, headers)
	rows, err := st.Rows(ctx, "Recompensas")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Values, 4)
	require.NoError(t, st.UpdateRow(ctx, "Recompensas", 2, map[string]string{"Grupo": "C"}))
}

func TestStore_Reset(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureTable(ctx, "Historico", []string{"ID"}))
	require.NoError(t, st.AppendRow(ctx, "Historico", map[string]string{"ID": "x"}))

	require.NoError(t, st.Reset(ctx))

	_, err := st.Rows(ctx, "Historico")
	assert.ErrorIs(t, err, store.ErrTableNotFound)
}
