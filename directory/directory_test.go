package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rewards-bot/rewards"
	"github.com/warp/rewards-bot/sanitize"
	"github.com/warp/rewards-bot/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seed(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, Bootstrap(ctx, m))

	employees := []map[string]string{
		{"ID": "123.456.789-09", "Nome": "Ana\tSilva", "Pontos Totais": "300", "Saldo": "100", "Grupo": "B"},
		{"ID": "98765432100", "Nome": "Bruno", "Saldo": "40,00", "Grupo": " c. "},
		{"ID": "", "Nome": "No identity", "Saldo": "500"},
		{"ID": "11111111111", "Nome": "Duplicate", "Saldo": "1", "Grupo": "A"},
		{"ID": "111.111.111-11", "Nome": "Second copy", "Saldo": "999", "Grupo": "A"},
		{"ID": "22222222222", "Nome": "Negative", "Saldo": "-20", "Grupo": "zz"},
	}
	for _, e := range employees {
		require.NoError(t, m.AppendRow(ctx, EmployeeTable, e))
	}

	catalog := []map[string]string{
		{"ID": "1", "Nome": "Caneca", "Valor": "50", "Grupo": "C"},
		{"ID": "2", "Nome": "Mochila", "Valor": "100", "Grupo": "b"},
		{"ID": "3", "Nome": "Fone", "Valor": "300", "Grupo": ""},
		{"ID": "", "Nome": "Ignored", "Valor": "10"},
	}
	for _, r := range catalog {
		require.NoError(t, m.AppendRow(ctx, RewardTable, r))
	}
	return m
}

func newDirectory(rs store.RowStore) *Directory {
	return New(rs, nil, Options{IdentityMode: sanitize.IdentityCPF})
}

// =============================================================================
// RELOAD TESTS
// =============================================================================

func TestReload_NormalizesRows(t *testing.T) {
	// GIVEN: hand-edited sheets
	d := newDirectory(seed(t))

	// WHEN: loading
	snap, err := d.Reload(context.Background())
	require.NoError(t, err)

	// THEN: identities are digits, names clean, groups valid
	ana, ok := snap.Employee("12345678909")
	require.True(t, ok)
	assert.Equal(t, "Ana Silva", ana.Name)
	assert.Equal(t, 100, ana.Balance)
	assert.Equal(t, 300, ana.TotalPoints)
	assert.Equal(t, rewards.GroupB, ana.Group)
	assert.Equal(t, 2, ana.Row)
	assert.Equal(t, "Saldo", ana.BalanceField)

	bruno, _ := snap.Employee("98765432100")
	assert.Equal(t, rewards.GroupC, bruno.Group)
	assert.Equal(t, 40, bruno.Balance, "decimal comma read as points")

	neg, _ := snap.Employee("22222222222")
	assert.Equal(t, 0, neg.Balance)
	assert.Equal(t, rewards.GroupD, neg.Group)

	assert.Equal(t, 4, snap.EmployeeCount(), "blank identity skipped, duplicate collapsed")
	dup, _ := snap.Employee("11111111111")
	assert.Equal(t, "Duplicate", dup.Name, "first row wins")
}

func TestReload_CatalogOrderAndDefaults(t *testing.T) {
	d := newDirectory(seed(t))
	snap, err := d.Reload(context.Background())
	require.NoError(t, err)

	list := snap.Rewards()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{list[0].Code, list[1].Code, list[2].Code})
	assert.Equal(t, rewards.GroupB, list[1].Group)
	assert.Equal(t, rewards.GroupC, list[2].Group, "blank reward group defaults to C")

	r, ok := snap.Reward(" 2 ")
	assert.True(t, ok)
	assert.Equal(t, "Mochila", r.Name)
}

func TestReload_WritesBackRepairedGroups(t *testing.T) {
	// GIVEN: rows whose stored group text is not canonical
	m := seed(t)
	d := newDirectory(m)

	// WHEN: loading
	_, err := d.Reload(context.Background())
	require.NoError(t, err)

	// THEN: the sheet now holds canonical groups
	emps, _ := m.Rows(context.Background(), EmployeeTable)
	assert.Equal(t, "C", emps[1].Values["Grupo"])
	assert.Equal(t, "D", emps[5].Values["Grupo"])
	assert.Equal(t, "", emps[2].Values["Grupo"], "rows without identity are skipped entirely")

	rews, _ := m.Rows(context.Background(), RewardTable)
	assert.Equal(t, "B", rews[1].Values["Grupo"])
	assert.Equal(t, "C", rews[2].Values["Grupo"])

	// AND: a second reload has nothing left to fix
	before := m.Writes()
	_, err = d.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, m.Writes())
}

func TestReload_WriteBackFailureIsNotFatal(t *testing.T) {
	m := seed(t)
	m.InjectFault(func(_ context.Context, op store.Op, _ string) error {
		if op == store.OpUpdate {
			return errors.New("quota exceeded")
		}
		return nil
	})
	d := newDirectory(m)

	snap, err := d.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, snap.EmployeeCount())
}

func TestReload_FailureKeepsPreviousSnapshot(t *testing.T) {
	// GIVEN: a loaded directory
	m := seed(t)
	d := newDirectory(m)
	first, err := d.Reload(context.Background())
	require.NoError(t, err)

	// WHEN: the store goes away
	m.InjectFault(func(_ context.Context, op store.Op, _ string) error {
		if op == store.OpRows {
			return errors.New("sheet offline")
		}
		return nil
	})
	_, err = d.Reload(context.Background())

	// THEN: the error is classified and the old snapshot still serves
	assert.ErrorIs(t, err, rewards.ErrSourceUnavailable)
	cur, err := d.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, cur)

	st := d.Stats()
	assert.False(t, st.Connected)
	assert.Contains(t, st.LastError, "sheet offline")
	assert.Equal(t, 4, st.EmployeeCount)
}

func TestCurrent_FirstLoadFailure(t *testing.T) {
	m := store.NewMemory()
	d := newDirectory(m)

	_, err := d.Current(context.Background())
	assert.ErrorIs(t, err, rewards.ErrSourceUnavailable)
	assert.ErrorIs(t, err, store.ErrTableNotFound)
	assert.False(t, d.Stats().Connected)
}

func TestReload_ConcurrentCallsShareOneRead(t *testing.T) {
	// GIVEN: a slow store that counts reads
	m := seed(t)
	var reads atomic.Int32
	gate := make(chan struct{})
	m.InjectFault(func(_ context.Context, op store.Op, table string) error {
		if op == store.OpRows && table == EmployeeTable {
			reads.Add(1)
			<-gate
		}
		return nil
	})
	d := newDirectory(m)

	// WHEN: many reloads start together
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Reload(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	// THEN: far fewer store reads than callers
	assert.Less(t, reads.Load(), int32(10))
}

func TestReload_OutlivesCancelledCaller(t *testing.T) {
	// GIVEN: a caller whose context is already cancelled
	d := newDirectory(seed(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN: it starts a reload
	snap, err := d.Reload(ctx)

	// THEN: the shared reload still completes
	require.NoError(t, err)
	assert.Equal(t, 3, snap.RewardCount())
	assert.Same(t, snap, d.snap.Load())
}

func TestReload_SharedCallSurvivesFirstCallerLeaving(t *testing.T) {
	// GIVEN: a slow store and a first caller that gives up mid-read
	m := seed(t)
	entered := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	m.InjectFault(func(_ context.Context, op store.Op, table string) error {
		if op == store.OpRows && table == EmployeeTable {
			once.Do(func() { close(entered) })
			<-gate
		}
		return nil
	})
	d := newDirectory(m)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Reload(first)
		firstErr <- err
	}()
	<-entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := d.Reload(context.Background())
		secondErr <- err
	}()

	// WHEN: the first caller cancels before the read returns
	cancel()
	close(gate)

	// THEN: neither caller sees a cancellation error
	assert.NoError(t, <-firstErr)
	assert.NoError(t, <-secondErr)
	assert.NotNil(t, d.snap.Load())
}

func TestReload_TimeoutBoundsStuckStore(t *testing.T) {
	// GIVEN: a store that never answers and a short reload timeout
	m := seed(t)
	m.InjectFault(func(ctx context.Context, op store.Op, _ string) error {
		if op == store.OpRows {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	d := New(m, nil, Options{IdentityMode: sanitize.IdentityCPF, ReloadTimeout: 20 * time.Millisecond})

	// WHEN: a caller without a deadline reloads
	_, err := d.Reload(context.Background())

	// THEN: the reload gives up as unavailable
	require.Error(t, err)
	assert.ErrorIs(t, err, rewards.ErrSourceUnavailable)
}

// =============================================================================
// AUTHORITATIVE ACCESS TESTS
// =============================================================================

func TestFetchEmployee_BypassesSnapshot(t *testing.T) {
	m := seed(t)
	d := newDirectory(m)
	ctx := context.Background()
	_, err := d.Reload(ctx)
	require.NoError(t, err)

	// GIVEN: HR edits the balance after the snapshot was taken
	require.NoError(t, m.UpdateRow(ctx, EmployeeTable, 2, map[string]string{"Saldo": "30"}))

	emp, err := d.FetchEmployee(ctx, "12345678909")
	require.NoError(t, err)
	assert.Equal(t, 30, emp.Balance)

	cached, _ := d.Current(ctx)
	stale, _ := cached.Employee("12345678909")
	assert.Equal(t, 100, stale.Balance)

	_, err = d.FetchEmployee(ctx, "00000000000")
	assert.ErrorIs(t, err, rewards.ErrNotFound)
}

func TestWriteBalanceAndHistory(t *testing.T) {
	m := seed(t)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	d := New(m, nil, Options{Location: loc})
	ctx := context.Background()

	emp, err := d.FetchEmployee(ctx, "12345678909")
	require.NoError(t, err)
	require.NoError(t, d.WriteBalance(ctx, emp, 50))

	at := time.Date(2026, 3, 9, 17, 4, 5, 0, time.UTC)
	require.NoError(t, d.AppendHistory(ctx, rewards.RedemptionRecord{
		ID: "rec-1", At: at, Identity: emp.Key, Name: emp.Name,
		RewardCode: "2", RewardName: "Mochila", Cost: 50, OrderID: "PED20260309140405",
		BalanceBefore: 100, BalanceAfter: 50, Channel: "5511999990000",
	}))

	rows, _ := m.Rows(ctx, EmployeeTable)
	assert.Equal(t, "50", rows[0].Values["Saldo"])

	hist, _ := m.Rows(ctx, HistoryTable)
	require.Len(t, hist, 1)
	h := hist[0].Values
	assert.Equal(t, "09/03/2026, 14:04:05", h[HistDate])
	assert.Equal(t, "12345678909", h[HistIdentity])
	assert.Equal(t, "100", h[HistBalanceBefore])
	assert.Equal(t, "50", h[HistBalanceAfter])
	assert.Equal(t, "rec-1", h[HistRecordID])
	assert.Equal(t, "5511999990000", h[HistChannel])
}

func TestWriteBalance_FailureIsPersistenceError(t *testing.T) {
	m := seed(t)
	d := newDirectory(m)
	emp, err := d.FetchEmployee(context.Background(), "12345678909")
	require.NoError(t, err)

	m.InjectFault(func(_ context.Context, op store.Op, _ string) error {
		if op == store.OpUpdate {
			return errors.New("503")
		}
		return nil
	})
	err = d.WriteBalance(context.Background(), emp, 0)
	assert.ErrorIs(t, err, rewards.ErrPersistenceFailed)
	assert.True(t, rewards.IsRetryable(err))
}

// =============================================================================
// BALANCE PATCH TESTS
// =============================================================================

func TestPatchBalance(t *testing.T) {
	d := newDirectory(seed(t))
	snap, err := d.Reload(context.Background())
	require.NoError(t, err)

	d.PatchBalance("12345678909", 50)
	d.PatchBalance("unknown", 1)

	emp, _ := snap.Employee("12345678909")
	assert.Equal(t, 50, emp.Balance)
}

func TestPatchBalance_SurvivesConcurrentReload(t *testing.T) {
	// GIVEN: a reload blocked after reading the old balance
	m := seed(t)
	d := newDirectory(m)
	_, err := d.Reload(context.Background())
	require.NoError(t, err)

	read := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	m.InjectFault(func(_ context.Context, op store.Op, table string) error {
		if op == store.OpRows && table == RewardTable {
			once.Do(func() { close(read) })
			<-gate
		}
		return nil
	})

	done := make(chan *Snapshot)
	go func() {
		s, _ := d.Reload(context.Background())
		done <- s
	}()
	<-read

	// WHEN: a debit commits and patches while the reload is in flight
	d.PatchBalance("12345678909", 10)
	close(gate)
	snap := <-done

	// THEN: the new snapshot carries the patched balance
	require.NotNil(t, snap)
	emp, _ := snap.Employee("12345678909")
	assert.Equal(t, 10, emp.Balance)
}

// =============================================================================
// BOOTSTRAP TESTS
// =============================================================================

func TestBootstrap_CreatesTables(t *testing.T) {
	m := store.NewMemory()
	require.NoError(t, Bootstrap(context.Background(), m))

	headers, err := m.Headers(context.Background(), HistoryTable)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Data", "CPF", "Nome", "Recompensa", "Valor", "Pedido",
		"Saldo_Anterior", "Saldo_Atual", "Registro", "Contato",
	}, headers)
}

func TestBootstrap_RespectsAliasHeaders(t *testing.T) {
	// GIVEN: an employee sheet using upper-case spellings and no group column
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.EnsureTable(ctx, EmployeeTable, []string{"CPF", "NOME", "PONTOS_TOTAIS", "SALDO"}))

	// WHEN: bootstrapping twice
	require.NoError(t, Bootstrap(ctx, m))
	require.NoError(t, Bootstrap(ctx, m))

	// THEN: only the missing group column is added
	headers, _ := m.Headers(ctx, EmployeeTable)
	assert.Equal(t, []string{"CPF", "NOME", "PONTOS_TOTAIS", "SALDO", "Grupo"}, headers)
}

func TestStats_BeforeLoad(t *testing.T) {
	d := newDirectory(seed(t))
	st := d.Stats()
	assert.False(t, st.Connected)
	assert.Zero(t, st.EmployeeCount)
}
