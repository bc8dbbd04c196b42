package models

import "time"

// ClosedPosition — одна закрытая позиция в сводке аварийного выхода.
type ClosedPosition struct {
	Symbol   string
	Side     Side
	Qty      float64
	Notional float64
	OrderID  string
}

// AccountUnwind — результат по одному аккаунту.
type AccountUnwind struct {
	Account string

	CancelledOrders []string // orderID успешно снятых ордеров
	Closed          []ClosedPosition
	Errors          []string

	// Остаток после обеих фаз. Успех определяется по нему, не по Errors.
	ResidualOrders    int
	ResidualPositions int
}

func (a *AccountUnwind) Clean() bool {
	return a.ResidualOrders == 0 && a.ResidualPositions == 0
}

// UnwindSummary — эфемерная сводка одного вызова аварийного выхода.
// Никуда не сохраняется.
type UnwindSummary struct {
	Accounts []AccountUnwind
	Elapsed  time.Duration
}

func (s *UnwindSummary) TotalNotional() float64 {
	var total float64
	for _, a := range s.Accounts {
		for _, p := range a.Closed {
			total += p.Notional
		}
	}
	return total
}

func (s *UnwindSummary) Clean() bool {
	for i := range s.Accounts {
		if !s.Accounts[i].Clean() {
			return false
		}
	}
	return true
}
