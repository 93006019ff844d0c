/*
Package receipt renders the confirmation sent after a committed redemption.

The template is fixed. Render has no business logic and must only be called
with a record produced by a successful redemption.Service.Redeem.
*/
package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/rewards-bot/rewards"
	"github.com/warp/rewards-bot/sanitize"
)

// DateLayout matches the pt-BR locale's date and time rendering.
const DateLayout = "02/01/2006, 15:04:05"

// Receipt holds everything the template prints.
type Receipt struct {
	OrderID       string
	At            time.Time
	Name          string
	IdentityLabel string
	Identity      string
	RewardName    string
	Cost          int
	Balance       int
}

// FromRecord builds a receipt for rec with the timestamp shown in loc.
func FromRecord(rec rewards.RedemptionRecord, mode sanitize.IdentityMode, loc *time.Location) Receipt {
	if loc == nil {
		loc = time.UTC
	}
	return Receipt{
		OrderID:       rec.OrderID,
		At:            rec.At.In(loc),
		Name:          rec.Name,
		IdentityLabel: mode.Label(),
		Identity:      rec.Identity,
		RewardName:    rec.RewardName,
		Cost:          rec.Cost,
		Balance:       rec.BalanceAfter,
	}
}

// Render returns the receipt text, without a trailing newline.
func Render(r Receipt) string {
	var b strings.Builder
	b.WriteString("📋 NOTA DE RESGATE\n\n")
	fmt.Fprintf(&b, "🆔 Pedido: %s\n", r.OrderID)
	fmt.Fprintf(&b, "📅 Data: %s\n\n", r.At.Format(DateLayout))
	fmt.Fprintf(&b, "👤 Funcionário: %s\n", r.Name)
	fmt.Fprintf(&b, "🆔 %s: %s\n\n", r.IdentityLabel, r.Identity)
	fmt.Fprintf(&b, "🎁 Recompensa: %s\n", r.RewardName)
	fmt.Fprintf(&b, "🎯 Pontos utilizados: %d\n", r.Cost)
	fmt.Fprintf(&b, "💰 Saldo restante: %d\n\n", r.Balance)
	b.WriteString("✅ Resgate aprovado!\n")
	b.WriteString("🏢 Procure o RH para retirar.")
	return b.String()
}
