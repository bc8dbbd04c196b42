package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_pilot/internal/models"
	bybit "trade_pilot/internal/modules/bybit_client/service"
	"trade_pilot/internal/monitor"
)

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Send(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeNotifier) Sendf(format string, args ...any) { f.Send(fmt.Sprintf(format, args...)) }

func (f *fakeNotifier) Confirm(context.Context, string, time.Duration) bool { return true }

type fakeExchange struct {
	mu sync.Mutex

	rules       models.Instrument
	rulesErr    error
	leverageErr error

	placed  []bybit.OrderRequest
	batches [][]bybit.OrderRequest

	// rejectLegs[i] — ошибка для i-й ноги каждого батча
	rejectLegs map[int]error

	size, avgEntry float64

	nextID int
}

func (f *fakeExchange) GetInstrumentRules(_ context.Context, _ string) (models.Instrument, error) {
	return f.rules, f.rulesErr
}

func (f *fakeExchange) SetLeverage(_ context.Context, _ string, _ int) error {
	return f.leverageErr
}

func (f *fakeExchange) PlaceOrder(_ context.Context, r bybit.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, r)
	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID), nil
}

func (f *fakeExchange) PlaceBatchOrders(_ context.Context, orders []bybit.OrderRequest) ([]bybit.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, orders)
	out := make([]bybit.BatchResult, len(orders))
	for i := range orders {
		if err, ok := f.rejectLegs[i]; ok {
			out[i] = bybit.BatchResult{Err: err}
			continue
		}
		f.nextID++
		out[i] = bybit.BatchResult{OrderID: fmt.Sprintf("ord-%d", f.nextID)}
	}
	return out, nil
}

func (f *fakeExchange) GetPositionSize(_ context.Context, _ string, _ int) (float64, float64, error) {
	return f.size, f.avgEntry, nil
}

func btcRules() models.Instrument {
	return models.Instrument{
		Symbol:      "BTCUSDT",
		TickSize:    0.5,
		QtyStep:     0.001,
		MinQty:      0.001,
		MinNotional: 5,
		LastPx:      50000,
	}
}

func defaultConfig() Config {
	return Config{
		EntryAllocPct: []float64{50, 25, 25},
		TPAllocPct:    []float64{73, 1, 1, 23},
		SettleDelay:   time.Millisecond,
		BreakevenTP1:  true,
	}
}

func longTrade(strategy models.OrderStrategy) models.TradeConfig {
	tc := models.TradeConfig{
		ChatID:      7,
		Symbol:      "BTCUSDT",
		Side:        models.SideLong,
		Margin:      100,
		Leverage:    10, // 1000 USDT объёма
		Strategy:    strategy,
		TakeProfits: []float64{51000, 52000, 53000, 54000},
		StopLoss:    49000,
	}
	if strategy == models.MarketPlusLimits {
		tc.LimitPrices = []float64{49500, 49000}
	}
	return tc
}

func TestExecuteMarketOnly(t *testing.T) {
	ex := &fakeExchange{rules: btcRules(), size: 0.02, avgEntry: 50000}
	n := &fakeNotifier{}
	e := New(ex, nil, n, nil, defaultConfig())

	summary, err := e.Execute(context.Background(), longTrade(models.MarketOnly))
	require.NoError(t, err)

	// один рыночный вход и один стоп
	require.Len(t, ex.placed, 2)

	market := ex.placed[0]
	assert.Equal(t, "Market", market.OrderType)
	assert.Equal(t, "Buy", market.Side)
	assert.False(t, market.ReduceOnly)
	// 100% от 1000 USDT по 50000 = 0.02
	assert.InDelta(t, 0.02, market.Qty, 1e-9)

	sl := ex.placed[1]
	assert.Equal(t, "Market", sl.OrderType)
	assert.Equal(t, "Sell", sl.Side)
	assert.True(t, sl.ReduceOnly)
	assert.InDelta(t, 49000, sl.TriggerPx, 1e-9)
	assert.InDelta(t, 0.02, sl.Qty, 1e-9)

	// тейки одним батчем; ноги, чей объём округлился в ноль, не отправлены,
	// сумма отправленных равна исполненному
	require.Len(t, ex.batches, 1)
	tps := ex.batches[0]
	require.Len(t, tps, 2) // 73% и хвост; 1%-ные ноги меньше шага
	var total float64
	for _, o := range tps {
		assert.Equal(t, "Limit", o.OrderType)
		assert.Equal(t, "Sell", o.Side)
		assert.True(t, o.ReduceOnly)
		total += o.Qty
	}
	assert.InDelta(t, 0.02, total, 1e-9)

	assert.Contains(t, summary, "Рыночный вход")
	assert.Contains(t, summary, "SL")
}

func TestExecuteMarketPlusLimits(t *testing.T) {
	ex := &fakeExchange{rules: btcRules(), size: 0.01, avgEntry: 50000}
	n := &fakeNotifier{}

	reg := monitor.NewRegistry(nil)
	mgr := monitor.NewManager(reg, nil, n, time.Minute)
	defer mgr.StopAll()

	e := New(ex, mgr, n, nil, defaultConfig())

	summary, err := e.Execute(context.Background(), longTrade(models.MarketPlusLimits))
	require.NoError(t, err)

	// рынок получает 50% от 1000 USDT = 500 / 50000 = 0.01
	market := ex.placed[0]
	assert.InDelta(t, 0.01, market.Qty, 1e-9)

	// первый батч — две лимитки по 25%
	require.GreaterOrEqual(t, len(ex.batches), 2)
	limits := ex.batches[0]
	require.Len(t, limits, 2)
	for _, o := range limits {
		assert.Equal(t, "Limit", o.OrderType)
		assert.Equal(t, "Buy", o.Side)
		assert.False(t, o.ReduceOnly)
	}
	assert.InDelta(t, 250.0/49500, limits[0].Qty, 1e-3)
	assert.InDelta(t, 49500, limits[0].Price, 1e-9)

	// монитор повешен: в реестре появилась запись с TP1 и лимитками
	recs := reg.Snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, int64(7), recs[0].ChatID)
	assert.Len(t, recs[0].LimitOrderIDs, 2)
	assert.Greater(t, recs[0].ExpectedTP1, 0.0)
	assert.InDelta(t, 0.01, recs[0].InitialQty, 1e-9)
	assert.Equal(t, 1, mgr.Running())

	assert.Contains(t, summary, "Монитор запущен")
}

func TestExecuteValidation(t *testing.T) {
	ex := &fakeExchange{rules: btcRules()}
	e := New(ex, nil, &fakeNotifier{}, nil, defaultConfig())

	tests := []struct {
		name   string
		mutate func(*models.TradeConfig)
	}{
		{"пустой символ", func(tc *models.TradeConfig) { tc.Symbol = "" }},
		{"кривая сторона", func(tc *models.TradeConfig) { tc.Side = "up" }},
		{"нулевая маржа", func(tc *models.TradeConfig) { tc.Margin = 0 }},
		{"нулевое плечо", func(tc *models.TradeConfig) { tc.Leverage = 0 }},
		{"нет тейков", func(tc *models.TradeConfig) { tc.TakeProfits = nil }},
		{"тейков больше, чем долей", func(tc *models.TradeConfig) {
			tc.TakeProfits = []float64{51000, 52000, 53000, 54000, 55000}
		}},
		{"нет стопа", func(tc *models.TradeConfig) { tc.StopLoss = 0 }},
		{"нет лимиток для стратегии", func(tc *models.TradeConfig) {
			tc.Strategy = models.MarketPlusLimits
			tc.LimitPrices = nil
		}},
		{"неизвестная стратегия", func(tc *models.TradeConfig) { tc.Strategy = "vwap" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := longTrade(models.MarketOnly)
			tt.mutate(&tc)
			_, err := e.Execute(context.Background(), tc)
			assert.Error(t, err)
			// до биржи не дошли
			assert.Empty(t, ex.placed)
		})
	}
}

func TestExecuteLeverageFailureAborts(t *testing.T) {
	ex := &fakeExchange{rules: btcRules(), leverageErr: &bybit.APIError{Code: 110013, Msg: "leverage invalid"}}
	e := New(ex, nil, &fakeNotifier{}, nil, defaultConfig())

	_, err := e.Execute(context.Background(), longTrade(models.MarketOnly))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leverage")
	assert.Empty(t, ex.placed)
}

func TestExecuteRulesFailureAborts(t *testing.T) {
	ex := &fakeExchange{rulesErr: errors.New("symbol not found")}
	e := New(ex, nil, &fakeNotifier{}, nil, defaultConfig())

	_, err := e.Execute(context.Background(), longTrade(models.MarketOnly))
	require.Error(t, err)
	assert.Empty(t, ex.placed)
}

func TestExecuteUnconfirmedFillSkipsExits(t *testing.T) {
	// позиция после market читается нулевой — тейки и стоп не выставляем
	ex := &fakeExchange{rules: btcRules(), size: 0, avgEntry: 0}
	e := New(ex, nil, &fakeNotifier{}, nil, defaultConfig())

	summary, err := e.Execute(context.Background(), longTrade(models.MarketOnly))
	require.NoError(t, err)

	require.Len(t, ex.placed, 1) // только рыночный вход
	assert.Empty(t, ex.batches)
	assert.Contains(t, summary, "не подтверждено")
}

func TestExecuteShortDirections(t *testing.T) {
	ex := &fakeExchange{rules: btcRules(), size: 0.02, avgEntry: 50000}
	e := New(ex, nil, &fakeNotifier{}, nil, defaultConfig())

	tc := models.TradeConfig{
		ChatID:      7,
		Symbol:      "BTCUSDT",
		Side:        models.SideShort,
		Margin:      100,
		Leverage:    10,
		Strategy:    models.MarketOnly,
		TakeProfits: []float64{49000, 48000},
		StopLoss:    51000,
		PositionIdx: 2,
	}

	_, err := e.Execute(context.Background(), tc)
	require.NoError(t, err)

	market := ex.placed[0]
	assert.Equal(t, "Sell", market.Side)
	assert.Equal(t, 2, market.PositionIdx)

	// закрывающие ноги шорта покупают
	require.Len(t, ex.batches, 1)
	for _, o := range ex.batches[0] {
		assert.Equal(t, "Buy", o.Side)
	}
	// два тейка: 73% и остаток таблицы (1+1+23+хвост)
	require.Len(t, ex.batches[0], 2)
	var total float64
	for _, o := range ex.batches[0] {
		total += o.Qty
	}
	assert.InDelta(t, 0.02, total, 1e-9)

	sl := ex.placed[1]
	assert.Equal(t, "Buy", sl.Side)
	assert.InDelta(t, 51000, sl.TriggerPx, 1e-9)
}

func TestExecuteSkipsIllogicalTP(t *testing.T) {
	ex := &fakeExchange{rules: btcRules(), size: 0.02, avgEntry: 50000}
	n := &fakeNotifier{}

	reg := monitor.NewRegistry(nil)
	mgr := monitor.NewManager(reg, nil, n, time.Minute)
	defer mgr.StopAll()

	e := New(ex, mgr, n, nil, defaultConfig())

	tc := longTrade(models.MarketOnly)
	tc.TakeProfits = []float64{48000, 52000, 53000, 54000} // TP1 ниже средней для long

	summary, err := e.Execute(context.Background(), tc)
	require.NoError(t, err)

	// TP1 отброшен по направлению, остаётся только хвостовая нога
	require.Len(t, ex.batches, 1)
	assert.Len(t, ex.batches[0], 1)
	assert.Contains(t, summary, "TP1 пропущен")

	// без TP1 в стакане мониторить нечего: сокращения позиции не будет
	assert.Equal(t, 0, mgr.Running())
	assert.Empty(t, reg.Snapshot())
	assert.Contains(t, summary, "Монитор не запущен")
}

func TestExecuteRejectedTP1SkipsMonitor(t *testing.T) {
	ex := &fakeExchange{
		rules: btcRules(), size: 0.02, avgEntry: 50000,
		rejectLegs: map[int]error{0: &bybit.APIError{Code: 110094, Msg: "insufficient"}},
	}
	n := &fakeNotifier{}

	reg := monitor.NewRegistry(nil)
	mgr := monitor.NewManager(reg, nil, n, time.Minute)
	defer mgr.StopAll()

	e := New(ex, mgr, n, nil, defaultConfig())

	summary, err := e.Execute(context.Background(), longTrade(models.MarketOnly))
	require.NoError(t, err)

	assert.Contains(t, summary, "TP1 отклонён")
	assert.Equal(t, 0, mgr.Running())
	assert.Empty(t, reg.Snapshot())
	assert.Contains(t, summary, "Монитор не запущен")
}

type staticPrices struct{ px float64 }

func (s staticPrices) LastPrice(string) (float64, bool) { return s.px, s.px > 0 }

func TestExecuteUsesWSPrice(t *testing.T) {
	ex := &fakeExchange{rules: btcRules(), size: 0.04, avgEntry: 25000}
	// ws-цена вдвое ниже REST-овой — объём рыночной ноги должен удвоиться
	e := New(ex, nil, &fakeNotifier{}, staticPrices{px: 25000}, defaultConfig())

	_, err := e.Execute(context.Background(), longTrade(models.MarketOnly))
	require.NoError(t, err)

	assert.InDelta(t, 0.04, ex.placed[0].Qty, 1e-9)
}
