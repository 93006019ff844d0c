package directory

import (
	"context"
	"fmt"

	"github.com/warp/rewards-bot/store"
)

// =============================================================================
// SHEET SCHEMA
// =============================================================================

// Table names in the backing store.
const (
	EmployeeTable = "Funcionarios"
	RewardTable   = "Recompensas"
	HistoryTable  = "Historico"
)

// Column is one logical column and the header spellings found in the wild.
// The first alias is the canonical header written when the column is missing.
type Column []string

func (c Column) Canonical() string { return c[0] }

var (
	ColIdentity    = Column{"ID", "CPF", "Email", "E-mail", "EMAIL"}
	ColName        = Column{"Nome", "NOME"}
	ColTotalPoints = Column{"Pontos Totais", "PONTOS_TOTAIS"}
	ColBalance     = Column{"Saldo", "SALDO"}
	ColGroup       = Column{"Grupo", "GRUPO"}

	ColRewardCode = Column{"ID", "Codigo", "CODIGO"}
	ColCost       = Column{"Valor", "VALOR"}
)

// History headers. Written verbatim on every successful redemption.
const (
	HistDate          = "Data"
	HistIdentity      = "CPF"
	HistName          = "Nome"
	HistReward        = "Recompensa"
	HistCost          = "Valor"
	HistOrder         = "Pedido"
	HistBalanceBefore = "Saldo_Anterior"
	HistBalanceAfter  = "Saldo_Atual"
	HistRecordID      = "Registro"
	HistChannel       = "Contato"
)

type tableSchema struct {
	name    string
	columns []Column
}

var schema = []tableSchema{
	{EmployeeTable, []Column{ColIdentity, ColName, ColTotalPoints, ColBalance, ColGroup}},
	{RewardTable, []Column{ColRewardCode, ColName, ColCost, ColGroup}},
	{HistoryTable, []Column{
		{HistDate}, {HistIdentity}, {HistName}, {HistReward}, {HistCost},
		{HistOrder}, {HistBalanceBefore}, {HistBalanceAfter}, {HistRecordID}, {HistChannel},
	}},
}

// missingColumns returns the canonical header of every column with no
// spelling present in have.
func (t tableSchema) missingColumns(have []string) []string {
	present := make(map[string]bool, len(have))
	for _, h := range have {
		present[h] = true
	}
	var out []string
	for _, col := range t.columns {
		found := false
		for _, alias := range col {
			if present[alias] {
				found = true
				break
			}
		}
		if !found {
			out = append(out, col.Canonical())
		}
	}
	return out
}

// Bootstrap creates the three tables if absent and adds any column that has
// no spelling at all in an existing table. Existing columns are never renamed
// or duplicated. Idempotent.
func Bootstrap(ctx context.Context, rs store.RowStore) error {
	for _, t := range schema {
		if err := rs.EnsureTable(ctx, t.name, nil); err != nil {
			return fmt.Errorf("ensure %s: %w", t.name, err)
		}
		have, err := rs.Headers(ctx, t.name)
		if err != nil {
			return fmt.Errorf("read %s headers: %w", t.name, err)
		}
		if missing := t.missingColumns(have); len(missing) > 0 {
			if err := rs.EnsureTable(ctx, t.name, missing); err != nil {
				return fmt.Errorf("extend %s headers: %w", t.name, err)
			}
		}
	}
	return nil
}
