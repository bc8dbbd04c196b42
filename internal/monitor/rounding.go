package monitor

import (
	"trade_pilot/internal/helper"
	"trade_pilot/internal/models"
	"trade_pilot/internal/risk"
)

// roundToTick округляет цену безубытка в "безопасную" сторону: для long вниз,
// для short вверх — чтобы стоп не оказался по ту сторону средней.
func roundToTick(px, tick float64, side models.Side) float64 {
	if side == models.SideLong {
		return helper.RoundDownToTick(px, tick)
	}
	return helper.RoundUpToTick(px, tick)
}

func roundDownToStep(q, step float64) float64 {
	return risk.AdjustToStep(q, step, risk.RoundDown)
}
