package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trade_pilot/internal/models"
)

type RoundMode int

const (
	RoundDown RoundMode = iota
	RoundUp
	RoundNearest
)

// AdjustToStep приводит значение к точному кратному шага биржи.
// Считаем через decimal, чтобы не ловить хвосты float64 (0.30000000000000004 и т.п.).
// Идемпотентно: повторный вызов ничего не меняет.
func AdjustToStep(v, step float64, mode RoundMode) float64 {
	if step <= 0 || v <= 0 {
		return v
	}
	dv := decimal.NewFromFloat(v)
	ds := decimal.NewFromFloat(step)

	steps := dv.Div(ds)
	switch mode {
	case RoundUp:
		steps = steps.Ceil()
	case RoundNearest:
		steps = steps.Round(0)
	default:
		steps = steps.Floor()
	}
	out, _ := steps.Mul(ds).Float64()
	return out
}

// RiskRewardRatio — отношение потенциала к риску для связки entry/target/stop.
func RiskRewardRatio(entry, target, stop float64, side models.Side) (float64, error) {
	if err := ValidateDirection(side, entry, target, stop); err != nil {
		return 0, err
	}
	var reward, risk float64
	if side == models.SideLong {
		reward = target - entry
		risk = entry - stop
	} else {
		reward = entry - target
		risk = stop - entry
	}
	if risk <= 0 {
		return 0, fmt.Errorf("risk distance <= 0")
	}
	return reward / risk, nil
}

// ValidateDirection отсекает перевёрнутые TP/SL до того, как они уйдут на биржу.
// long: target > entry > stop; short — зеркально.
func ValidateDirection(side models.Side, entry, target, stop float64) error {
	if entry <= 0 {
		return fmt.Errorf("entry <= 0")
	}
	switch side {
	case models.SideLong:
		if target > 0 && target <= entry {
			return fmt.Errorf("long: target %.8f <= entry %.8f", target, entry)
		}
		if stop > 0 && stop >= entry {
			return fmt.Errorf("long: stop %.8f >= entry %.8f", stop, entry)
		}
	case models.SideShort:
		if target > 0 && target >= entry {
			return fmt.Errorf("short: target %.8f >= entry %.8f", target, entry)
		}
		if stop > 0 && stop <= entry {
			return fmt.Errorf("short: stop %.8f <= entry %.8f", stop, entry)
		}
	default:
		return fmt.Errorf("unknown side %q", side)
	}
	return nil
}

// QtyForNotional — объём под заданную стоимость позиции по текущей цене,
// округлённый вниз к шагу инструмента.
func QtyForNotional(notional, price float64, rules models.Instrument) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("price <= 0")
	}
	qty := AdjustToStep(notional/price, rules.QtyStep, RoundDown)
	if qty < rules.MinQty {
		return 0, fmt.Errorf("qty %.8f below minQty %.8f", qty, rules.MinQty)
	}
	if rules.MinNotional > 0 && qty*price < rules.MinNotional {
		return 0, fmt.Errorf("notional %.4f below min %.4f", qty*price, rules.MinNotional)
	}
	return qty, nil
}
