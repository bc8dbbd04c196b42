package monitor

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
)

const testInterval = 5 * time.Millisecond

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

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

type stopCall struct {
	symbol string
	stopPx float64
	size   float64
}

// fakeExchange скриптуется последовательностью размеров позиции.
type fakeExchange struct {
	mu sync.Mutex

	sizes    []float64 // очередь ответов GetPositionSize; последний повторяется
	avgEntry float64
	sizeErr  error

	open      []models.OpenOrder
	openErr   error
	cancelled []string
	stops     []stopCall
	stopErr   error
}

func (f *fakeExchange) GetPositionSize(_ context.Context, _ string, _ int) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sizeErr != nil {
		return 0, 0, f.sizeErr
	}
	size := f.sizes[0]
	if len(f.sizes) > 1 {
		f.sizes = f.sizes[1:]
	}
	return size, f.avgEntry, nil
}

func (f *fakeExchange) GetOpenOrders(_ context.Context, _ string) ([]models.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, f.openErr
}

func (f *fakeExchange) CancelBatchOrders(_ context.Context, _ string, orderIDs []string) ([]bybit.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderIDs...)
	out := make([]bybit.BatchResult, len(orderIDs))
	for i, id := range orderIDs {
		out[i] = bybit.BatchResult{OrderID: id}
	}
	return out, nil
}

func (f *fakeExchange) SetTradingStop(_ context.Context, symbol string, _ int, stopPx, size float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stops = append(f.stops, stopCall{symbol: symbol, stopPx: stopPx, size: size})
	return nil
}

func (f *fakeExchange) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeExchange) stopCalls() []stopCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stopCall(nil), f.stops...)
}

func monitorRecord() models.MonitorRecord {
	return models.MonitorRecord{
		TradeID:       "t1",
		ChatID:        7,
		Symbol:        "BTCUSDT",
		Side:          models.SideLong,
		InitialQty:    1.0,
		ExpectedTP1:   0.73,
		BreakevenTP1:  true,
		LimitOrderIDs: []string{"lim1", "lim2"},
		Rules: models.Instrument{
			Symbol:   "BTCUSDT",
			TickSize: 0.5,
			QtyStep:  0.001,
		},
		CreatedAt: time.Now(),
	}
}

func TestMonitorResolvesTP1(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	rec := monitorRecord()
	require.NoError(t, reg.Insert(ctx, rec))

	ex := &fakeExchange{
		// два тика без изменений, потом уменьшение ровно на TP1
		sizes:    []float64{1.0, 1.0, 0.27},
		avgEntry: 50000.3,
		open: []models.OpenOrder{
			{OrderID: "lim1", Status: "New"},
			{OrderID: "lim2", Status: "Filled"}, // уже неактивна — отменять нельзя
			{OrderID: "other", Status: "New"},
		},
	}
	n := &fakeNotifier{}

	mon := New(rec, reg, ex, n, testInterval)
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not finish")
	}

	// запись удалена самим монитором
	assert.False(t, reg.Has(7, "t1"))

	// снята только ещё активная лимитка из сохранённых
	assert.Equal(t, []string{"lim1"}, ex.cancelledIDs())

	// стоп в безубыток: средняя прижата к тику вниз (long), объём — остаток
	stops := ex.stopCalls()
	require.Len(t, stops, 1)
	assert.Equal(t, "BTCUSDT", stops[0].symbol)
	assert.InDelta(t, 50000.0, stops[0].stopPx, 1e-9)
	assert.InDelta(t, 0.27, stops[0].size, 1e-9)

	msgs := fmt.Sprint(n.all())
	assert.Contains(t, msgs, "TP1")
}

func TestMonitorCancelledByRecordRemoval(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	rec := monitorRecord()
	require.NoError(t, reg.Insert(ctx, rec))

	ex := &fakeExchange{sizes: []float64{1.0}, avgEntry: 50000}
	n := &fakeNotifier{}

	mon := New(rec, reg, ex, n, testInterval)
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	// кооперативная отмена: сносим запись извне
	time.Sleep(3 * testInterval)
	require.NoError(t, reg.Delete(ctx, 7, "t1"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after record removal")
	}

	// никаких действий разрешения не выполнялось
	assert.Empty(t, ex.cancelledIDs())
	assert.Empty(t, ex.stopCalls())
}

func TestMonitorShutdownKeepsRecord(t *testing.T) {
	reg := NewRegistry(nil)
	rec := monitorRecord()
	require.NoError(t, reg.Insert(context.Background(), rec))

	ex := &fakeExchange{sizes: []float64{1.0}, avgEntry: 50000}
	n := &fakeNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	mon := New(rec, reg, ex, n, testInterval)
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	time.Sleep(3 * testInterval)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on shutdown")
	}

	// shutdown — не разрешение: запись должна пережить рестарт
	assert.True(t, reg.Has(7, "t1"))
}

func TestMonitorSurvivesTransientReadErrors(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	rec := monitorRecord()
	rec.BreakevenTP1 = false
	rec.LimitOrderIDs = nil
	require.NoError(t, reg.Insert(ctx, rec))

	ex := &fakeExchange{sizes: []float64{0}, avgEntry: 50000, sizeErr: errors.New("timeout")}
	n := &fakeNotifier{}

	mon := New(rec, reg, ex, n, testInterval)
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	// несколько тиков с ошибкой чтения — цикл жив
	time.Sleep(4 * testInterval)
	select {
	case <-done:
		t.Fatal("monitor must not exit on transient read errors")
	default:
	}

	// ошибка ушла — позиция плоская, монитор разрешается
	ex.mu.Lock()
	ex.sizeErr = nil
	ex.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not resolve after errors cleared")
	}
	assert.False(t, reg.Has(7, "t1"))
}

func TestManagerSpawnAndStopAll(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	ex := &fakeExchange{sizes: []float64{1.0}, avgEntry: 50000}
	n := &fakeNotifier{}

	mgr := NewManager(reg, ex, n, testInterval)

	rec := monitorRecord()
	require.NoError(t, mgr.Spawn(ctx, rec))
	assert.True(t, reg.Has(7, "t1"))
	assert.Equal(t, 1, mgr.Running())

	// повторный запуск того же trade id — ошибка
	assert.Error(t, mgr.Spawn(ctx, rec))

	mgr.StopAll()
	assert.Equal(t, 0, mgr.Running())
	// записи нетронуты — поднимутся резюмированием
	assert.True(t, reg.Has(7, "t1"))
}
