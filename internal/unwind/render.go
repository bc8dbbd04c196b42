package unwind

import (
	"fmt"
	"strings"
	"time"

	"trade_pilot/internal/models"
)

// Render — сводка аварийного выхода одной строкой текста (без разметки,
// слой представления сам решит, как показывать).
func (c *Coordinator) Render(s *models.UnwindSummary) string {
	var b strings.Builder

	if s.Clean() {
		b.WriteString("🧯 Аварийный выход завершён, остатка нет\n")
	} else {
		b.WriteString("🚨 Аварийный выход завершён С ОСТАТКОМ — проверь биржу руками\n")
	}

	for i := range s.Accounts {
		a := &s.Accounts[i]
		fmt.Fprintf(&b, "— аккаунт %s: снято ордеров %d, закрыто позиций %d",
			a.Account, len(a.CancelledOrders), len(a.Closed))
		if a.ResidualOrders > 0 || a.ResidualPositions > 0 {
			fmt.Fprintf(&b, " | остаток: ордеров %d, позиций %d", a.ResidualOrders, a.ResidualPositions)
		}
		b.WriteString("\n")

		for _, p := range a.Closed {
			fmt.Fprintf(&b, "   · %s %s qty=%.6f (~%.2f USDT)\n",
				p.Symbol, strings.ToUpper(string(p.Side)), p.Qty, p.Notional)
		}
		for _, e := range a.Errors {
			fmt.Fprintf(&b, "   ⚠️ %s\n", e)
		}
	}

	fmt.Fprintf(&b, "Итого закрыто ~%.2f USDT за %s\n",
		s.TotalNotional(), s.Elapsed.Round(10*time.Millisecond))
	return b.String()
}
