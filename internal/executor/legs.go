package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trade_pilot/internal/helper"
	"trade_pilot/internal/models"
	bybit "trade_pilot/internal/modules/bybit_client/service"
	"trade_pilot/internal/risk"
	"trade_pilot/pkg/logger"
)

// marketLeg отправляет рыночный вход и перечитывает позицию за фактическим
// объёмом/ценой. Возвращает (0, 0), если нога пропущена или исполнение не
// подтвердилось — для сводки это предупреждение, не фатальная ошибка.
func (e *Executor) marketLeg(
	ctx context.Context,
	sb *strings.Builder,
	tc *models.TradeConfig,
	rules models.Instrument,
	px float64,
) (filledQty, avgEntry float64) {
	frac := 100.0
	if tc.Strategy == models.MarketPlusLimits && len(e.cfg.EntryAllocPct) > 0 {
		frac = e.cfg.EntryAllocPct[0]
	}
	notional := tc.EffectiveValue() * frac / 100.0

	if rules.MinNotional > 0 && notional < rules.MinNotional {
		fmt.Fprintf(sb, "⚠️ Рыночная нога пропущена: объём %.2f ниже минимума %.2f\n",
			notional, rules.MinNotional)
		return 0, 0
	}

	qty, err := risk.QtyForNotional(notional, px, rules)
	if err != nil {
		fmt.Fprintf(sb, "⚠️ Рыночная нога пропущена: %v\n", err)
		return 0, 0
	}

	var orderID string
	err = bybit.Retry(ctx, func() error {
		var err error
		orderID, err = e.ex.PlaceOrder(ctx, bybit.OrderRequest{
			Symbol:      tc.Symbol,
			Side:        tc.Side.OrderSide(),
			OrderType:   "Market",
			Qty:         qty,
			PositionIdx: tc.PositionIdx,
		})
		return err
	})
	if err != nil {
		fmt.Fprintf(sb, "❌ Рыночный вход не прошёл: %v\n", err)
		return 0, 0
	}

	// успех отправки != видимость в позиции: даём бирже время и перечитываем
	select {
	case <-ctx.Done():
		return 0, 0
	case <-time.After(e.settleDelay()):
	}

	size, avg, err := e.ex.GetPositionSize(ctx, tc.Symbol, tc.PositionIdx)
	if err != nil {
		fmt.Fprintf(sb, "⚠️ Вход отправлен (ордер %s), но позицию прочитать не удалось: %v\n", orderID, err)
		return 0, 0
	}
	if size <= 0 {
		fmt.Fprintf(sb, "⏳ Вход отправлен (ордер %s), исполнение пока не подтверждено\n", orderID)
		return 0, 0
	}

	fmt.Fprintf(sb, "✅ Рыночный вход: %.6f @ %.6f (ордер %s)\n", size, avg, orderID)
	return size, avg
}

func (e *Executor) settleDelay() time.Duration {
	if e.cfg.SettleDelay > 0 {
		return e.cfg.SettleDelay
	}
	return 2 * time.Second
}

// limitLegs строит лимитные доборы по остатку таблицы аллокаций и шлёт их
// одним батчем. Ноги ниже минимумов пропускаются поштучно.
func (e *Executor) limitLegs(
	ctx context.Context,
	sb *strings.Builder,
	tc *models.TradeConfig,
	rules models.Instrument,
) []string {
	total := tc.EffectiveValue()

	var orders []bybit.OrderRequest
	for i, limitPx := range tc.LimitPrices {
		allocIdx := i + 1 // [0] — рынок
		if allocIdx >= len(e.cfg.EntryAllocPct) {
			break
		}
		notional := total * e.cfg.EntryAllocPct[allocIdx] / 100.0

		limitPx = helper.RoundDownToTick(limitPx, rules.TickSize)
		qty, err := risk.QtyForNotional(notional, limitPx, rules)
		if err != nil {
			fmt.Fprintf(sb, "⚠️ Лимитка #%d пропущена: %v\n", i+1, err)
			continue
		}

		orders = append(orders, bybit.OrderRequest{
			Symbol:      tc.Symbol,
			Side:        tc.Side.OrderSide(),
			OrderType:   "Limit",
			Qty:         qty,
			Price:       limitPx,
			PositionIdx: tc.PositionIdx,
		})
	}
	if len(orders) == 0 {
		sb.WriteString("⚠️ Все лимитные доборы пропущены\n")
		return nil
	}

	var results []bybit.BatchResult
	err := bybit.Retry(ctx, func() error {
		var err error
		results, err = e.ex.PlaceBatchOrders(ctx, orders)
		return err
	})
	if err != nil {
		fmt.Fprintf(sb, "❌ Лимитные доборы не отправлены: %v\n", err)
		return nil
	}

	var ids []string
	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(sb, "❌ Лимитка #%d отклонена: %v\n", i+1, r.Err)
			continue
		}
		ids = append(ids, r.OrderID)
	}
	if len(ids) > 0 {
		fmt.Fprintf(sb, "✅ Лимитные доборы: %d из %d\n", len(ids), len(orders))
	}
	return ids
}

// takeProfitLegs раскладывает исполненный объём по долям тейков и шлёт их
// reduce-only лимитками одним батчем. Тейк не на профитной стороне от средней
// цены пропускается. Возвращает объёмы по ногам и факт выставления TP1:
// монитору нет смысла ждать срабатывания тейка, которого нет в стакане.
func (e *Executor) takeProfitLegs(
	ctx context.Context,
	sb *strings.Builder,
	tc *models.TradeConfig,
	rules models.Instrument,
	filledQty, avgEntry float64,
) (tpQtys []float64, tp1Placed bool) {
	alloc := e.cfg.TPAllocPct[:len(tc.TakeProfits)]

	qtys, err := risk.SplitByAllocations(filledQty, alloc, rules.QtyStep)
	if err != nil {
		fmt.Fprintf(sb, "❌ Тейки не рассчитаны: %v\n", err)
		return nil, false
	}

	var orders []bybit.OrderRequest
	var orderLegs []int
	for i, tpPx := range tc.TakeProfits {
		if qtys[i] <= 0 {
			continue
		}
		if err := risk.ValidateDirection(tc.Side, avgEntry, tpPx, 0); err != nil {
			fmt.Fprintf(sb, "⚠️ TP%d пропущен: %v\n", i+1, err)
			continue
		}
		tpPx = roundTickProfit(tpPx, rules.TickSize, tc.Side)
		orders = append(orders, bybit.OrderRequest{
			Symbol:      tc.Symbol,
			Side:        tc.Side.Opposite(),
			OrderType:   "Limit",
			Qty:         qtys[i],
			Price:       tpPx,
			ReduceOnly:  true,
			PositionIdx: tc.PositionIdx,
		})
		orderLegs = append(orderLegs, i+1)
	}
	if len(orders) == 0 {
		sb.WriteString("⚠️ Все тейки пропущены\n")
		return qtys, false
	}

	var results []bybit.BatchResult
	err = bybit.Retry(ctx, func() error {
		var err error
		results, err = e.ex.PlaceBatchOrders(ctx, orders)
		return err
	})
	if err != nil {
		fmt.Fprintf(sb, "❌ Тейки не отправлены: %v\n", err)
		return qtys, false
	}

	okCnt := 0
	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(sb, "❌ TP%d отклонён: %v\n", orderLegs[i], r.Err)
			continue
		}
		if orderLegs[i] == 1 {
			tp1Placed = true
		}
		okCnt++
	}
	fmt.Fprintf(sb, "✅ Тейки выставлены: %d из %d\n", okCnt, len(orders))
	return qtys, tp1Placed
}

// stopLossLeg — один стоп на весь исполненный объём. Стоп не на убыточной
// стороне от средней — это перевёрнутая конфигурация, пропускаем.
func (e *Executor) stopLossLeg(
	ctx context.Context,
	sb *strings.Builder,
	tc *models.TradeConfig,
	filledQty, avgEntry float64,
) {
	if err := risk.ValidateDirection(tc.Side, avgEntry, 0, tc.StopLoss); err != nil {
		fmt.Fprintf(sb, "⚠️ SL пропущен: %v\n", err)
		return
	}

	err := bybit.Retry(ctx, func() error {
		_, err := e.ex.PlaceOrder(ctx, bybit.OrderRequest{
			Symbol:      tc.Symbol,
			Side:        tc.Side.Opposite(),
			OrderType:   "Market",
			Qty:         filledQty,
			TriggerPx:   tc.StopLoss,
			ReduceOnly:  true,
			PositionIdx: tc.PositionIdx,
		})
		return err
	})
	if err != nil {
		fmt.Fprintf(sb, "❌ SL не выставлен: %v\n", err)
		logger.Error("stop-loss %s: %v", tc.Symbol, err)
		return
	}
	fmt.Fprintf(sb, "✅ SL @ %.6f на весь объём %.6f\n", tc.StopLoss, filledQty)
}

// roundTickProfit прижимает цену тейка к тику в сторону позиции:
// long — вниз, short — вверх, чтобы не улететь за профитную сторону.
func roundTickProfit(px, tick float64, side models.Side) float64 {
	if side == models.SideLong {
		return helper.RoundDownToTick(px, tick)
	}
	return helper.RoundUpToTick(px, tick)
}
