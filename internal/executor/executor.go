package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"

	"trade_pilot/internal/models"
	"trade_pilot/internal/monitor"
	bybit "trade_pilot/internal/modules/bybit_client/service"
	"trade_pilot/internal/notify"
	"trade_pilot/pkg/logger"
)

// Exchange — что оркестратору нужно от биржи.
type Exchange interface {
	GetInstrumentRules(ctx context.Context, symbol string) (models.Instrument, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, r bybit.OrderRequest) (string, error)
	PlaceBatchOrders(ctx context.Context, orders []bybit.OrderRequest) ([]bybit.BatchResult, error)
	GetPositionSize(ctx context.Context, symbol string, positionIdx int) (size, avgEntry float64, err error)
}

// PriceSource — опциональный кеш последней цены (ws-тикер). nil допустим,
// тогда берём цену из правил инструмента (REST).
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// Config — таблицы аллокаций и тайминги, инжектятся снаружи.
type Config struct {
	// Доли входа в процентах: [market, limit1, limit2]. Для MarketOnly
	// рынок получает 100% независимо от таблицы.
	EntryAllocPct []float64
	// Доли тейков в процентах, например 73/1/1/23.
	TPAllocPct []float64

	SettleDelay  time.Duration // пауза перед чтением позиции после market
	BreakevenTP1 bool          // двигать SL в безубыток после TP1
}

// Executor превращает конфигурацию сделки в набор ордеров на бирже и при
// необходимости вешает монитор на TP1. Каждый шаг фейлится независимо и
// попадает в сводку; частичный успех — нормальный исход, не ошибка.
type Executor struct {
	ex     Exchange
	mgr    *monitor.Manager
	n      notify.Notifier
	prices PriceSource
	cfg    Config
}

func New(ex Exchange, mgr *monitor.Manager, n notify.Notifier, prices PriceSource, cfg Config) *Executor {
	return &Executor{ex: ex, mgr: mgr, n: n, prices: prices, cfg: cfg}
}

// Execute выполняет сделку: плечо → рыночный вход → лимитные доборы →
// тейки → стоп → монитор. Возвращает человекочитаемую сводку по шагам.
func (e *Executor) Execute(ctx context.Context, tc models.TradeConfig) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executor.Execute")
	span.SetTag("symbol", tc.Symbol)
	span.SetTag("side", string(tc.Side))
	defer span.Finish()

	// 1. валидация до единого вызова биржи
	if err := e.validate(&tc); err != nil {
		return "", fmt.Errorf("validate: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 %s %s | маржа %.2f | плечо %dx\n",
		tc.Symbol, strings.ToUpper(string(tc.Side)), tc.Margin, tc.Leverage)

	// 2. правила инструмента — без них вся математика объёмов невозможна
	var rules models.Instrument
	err := bybit.Retry(ctx, func() error {
		var err error
		rules, err = e.ex.GetInstrumentRules(ctx, tc.Symbol)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("instrument rules %s: %w", tc.Symbol, err)
	}

	px := rules.LastPx
	if e.prices != nil {
		if wsPx, ok := e.prices.LastPrice(tc.Symbol); ok && wsPx > 0 {
			px = wsPx
		}
	}

	// 3. плечо; "не изменилось" гейтвей уже схлопнул в успех
	if err := bybit.Retry(ctx, func() error {
		return e.ex.SetLeverage(ctx, tc.Symbol, tc.Leverage)
	}); err != nil {
		return "", fmt.Errorf("set leverage: %w", err)
	}
	fmt.Fprintf(&sb, "✅ Плечо %dx установлено\n", tc.Leverage)

	// 4-5. рыночная нога
	filledQty, avgEntry := e.marketLeg(ctx, &sb, &tc, rules, px)

	// 6. лимитные доборы
	var limitIDs []string
	if tc.Strategy == models.MarketPlusLimits {
		limitIDs = e.limitLegs(ctx, &sb, &tc, rules)
	}

	// 7. тейки и стоп — только на подтверждённый объём
	var (
		tpQtys    []float64
		tp1Placed bool
	)
	if filledQty > 0 {
		tpQtys, tp1Placed = e.takeProfitLegs(ctx, &sb, &tc, rules, filledQty, avgEntry)
		e.stopLossLeg(ctx, &sb, &tc, filledQty, avgEntry)
	}

	// 8. монитор
	e.scheduleMonitor(ctx, &sb, &tc, rules, filledQty, avgEntry, limitIDs, tpQtys, tp1Placed)

	return sb.String(), nil
}

// validate — обязательные поля под выбранную стратегию.
func (e *Executor) validate(tc *models.TradeConfig) error {
	if tc.Symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	if !tc.Side.Valid() {
		return fmt.Errorf("side %q invalid", tc.Side)
	}
	if tc.Margin <= 0 {
		return fmt.Errorf("margin <= 0")
	}
	if tc.Leverage < 1 {
		return fmt.Errorf("leverage < 1")
	}
	if len(tc.TakeProfits) == 0 {
		return fmt.Errorf("no take-profits")
	}
	if len(tc.TakeProfits) > len(e.cfg.TPAllocPct) {
		return fmt.Errorf("%d take-profits for %d allocations", len(tc.TakeProfits), len(e.cfg.TPAllocPct))
	}
	if tc.StopLoss <= 0 {
		return fmt.Errorf("stop-loss is required")
	}

	switch tc.Strategy {
	case models.MarketOnly:
	case models.MarketPlusLimits:
		need := len(e.cfg.EntryAllocPct) - 1
		if len(tc.LimitPrices) < need {
			return fmt.Errorf("strategy %s needs %d limit prices, got %d",
				tc.Strategy, need, len(tc.LimitPrices))
		}
		for i, p := range tc.LimitPrices {
			if p <= 0 {
				return fmt.Errorf("limit price #%d <= 0", i+1)
			}
		}
	default:
		return fmt.Errorf("unknown strategy %q", tc.Strategy)
	}
	return nil
}

// scheduleMonitor решает, нужен ли монитор, и вешает его.
// Условия: есть живые лимитки ИЛИ включён безубыток; TP1 сконфигурен,
// положителен и реально стоит в стакане; есть кому слать уведомления.
// Иначе — репортим, не ошибка.
func (e *Executor) scheduleMonitor(
	ctx context.Context,
	sb *strings.Builder,
	tc *models.TradeConfig,
	rules models.Instrument,
	filledQty, avgEntry float64,
	limitIDs []string,
	tpQtys []float64,
	tp1Placed bool,
) {
	if e.mgr == nil || e.n == nil {
		sb.WriteString("ℹ️ Монитор не запущен: некуда слать уведомления\n")
		return
	}
	if len(limitIDs) == 0 && !e.cfg.BreakevenTP1 {
		sb.WriteString("ℹ️ Монитор не требуется: нет доборов и безубыток выключен\n")
		return
	}
	if filledQty <= 0 {
		sb.WriteString("ℹ️ Монитор не запущен: вход не подтверждён\n")
		return
	}
	if len(tpQtys) == 0 || tpQtys[0] <= 0 || tc.TakeProfits[0] <= 0 {
		sb.WriteString("ℹ️ Монитор не запущен: TP1 не сконфигурен\n")
		return
	}
	// монитор ловит исполнение TP1 по сокращению позиции: если сам ордер
	// не встал (пропущен по направлению, отклонён, батч не ушёл), ждать нечего
	if !tp1Placed {
		sb.WriteString("ℹ️ Монитор не запущен: TP1 не выставлен\n")
		return
	}

	rec := models.MonitorRecord{
		TradeID:       uuid.NewString(),
		ChatID:        tc.ChatID,
		Symbol:        tc.Symbol,
		Side:          tc.Side,
		PositionIdx:   tc.PositionIdx,
		InitialQty:    filledQty,
		ExpectedTP1:   tpQtys[0],
		BreakevenTP1:  e.cfg.BreakevenTP1,
		LimitOrderIDs: limitIDs,
		Rules:         rules,
		CreatedAt:     time.Now(),
	}

	if err := e.mgr.Spawn(ctx, rec); err != nil {
		fmt.Fprintf(sb, "⚠️ Монитор не запущен: %v\n", err)
		logger.Error("spawn monitor %s: %v", rec.TradeID, err)
		return
	}
	fmt.Fprintf(sb, "👁 Монитор запущен (trade %s)\n", rec.TradeID)
}
