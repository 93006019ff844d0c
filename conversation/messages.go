package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/rewards-bot/rewards"
	"github.com/warp/rewards-bot/sanitize"
)

// =============================================================================
// MESSAGES - Everything the requester reads
// =============================================================================

const (
	MsgLoadError      = "❌ Erro ao carregar dados do sistema."
	MsgGenericError   = "❌ Erro. Tente novamente."
	MsgEnded          = "Conversa encerrada."
	MsgInvalidOption  = "❌ Opção inválida."
	MsgNoneAvailable  = "\n⚠️ Saldo insuficiente."
	MsgChoosePrompt   = "\n📝 Digite o número da recompensa ou *0* para sair."
	MsgBusy           = "⏳ Já existe um resgate em andamento para você. Aguarde um instante e tente novamente."
	MsgNotFoundOnSave = "❌ Funcionário não encontrado."
	MsgSaveFailed     = "❌ Erro ao atualizar o saldo, tente novamente."
	MsgRedeemFailed   = "❌ Erro ao processar resgate."
)

func greeting(mode sanitize.IdentityMode) string {
	return fmt.Sprintf("🤖 Olá! Digite seu %s:", mode.Label())
}

func identityNotFound(mode sanitize.IdentityMode) string {
	return fmt.Sprintf("❌ %s não encontrado.", mode.Label())
}

// catalog renders the employee header and one line per reward, marking the
// ones the employee may redeem right now. It reports whether any is marked.
func catalog(emp rewards.Employee, list []rewards.Reward) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Olá, %s!\n\n", emp.Name)
	fmt.Fprintf(&b, "📊 Pontos Totais: %d\n", emp.TotalPoints)
	fmt.Fprintf(&b, "💰 Saldo Disponível: %d\n\n", emp.Balance)
	b.WriteString("🎁 RECOMPENSAS DISPONÍVEIS:\n\n")

	available := false
	for _, r := range list {
		mark := "❌"
		if emp.Affordable(r) {
			mark = "✅"
			available = true
		}
		fmt.Fprintf(&b, "%s - %s (%d) %s\n", r.Code, r.Name, r.Cost, mark)
	}
	return b.String(), available
}

// outcome maps a failed redemption to its reply. keep is true only when the
// session should stay open for another attempt.
func outcome(err error, reward rewards.Reward) (reply string, keep bool) {
	var (
		short *rewards.InsufficientBalanceError
		inel  *rewards.IneligibleError
	)
	switch {
	case errors.Is(err, rewards.ErrBusy):
		return MsgBusy, true
	case errors.As(err, &short):
		return fmt.Sprintf("❌ Saldo insuficiente para %s.", reward.Name), false
	case errors.As(err, &inel):
		return fmt.Sprintf("❌ Seu grupo (%s) não permite resgatar %s.", inel.EmployeeGroup, reward.Name), false
	case errors.Is(err, rewards.ErrNotFound):
		return MsgNotFoundOnSave, false
	case errors.Is(err, rewards.ErrPersistenceFailed):
		return MsgSaveFailed, false
	default:
		return MsgRedeemFailed, false
	}
}

func isExit(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "0", "voltar", "sair":
		return true
	}
	return false
}
