package monitor

import (
	"context"
	"time"

	"trade_pilot/internal/models"
	bybit "trade_pilot/internal/modules/bybit_client/service"
	"trade_pilot/internal/notify"
	"trade_pilot/pkg/logger"
)

const DefaultInterval = 60 * time.Second

// Exchange — что монитору нужно от биржи.
type Exchange interface {
	GetPositionSize(ctx context.Context, symbol string, positionIdx int) (size, avgEntry float64, err error)
	GetOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
	CancelBatchOrders(ctx context.Context, symbol string, orderIDs []string) ([]bybit.BatchResult, error)
	SetTradingStop(ctx context.Context, symbol string, positionIdx int, stopPx, size float64) error
}

// Monitor наблюдает за одной сделкой: ждёт первый тейк, после него снимает
// лишние лимитки и (опционально) двигает стоп в безубыток.
type Monitor struct {
	rec models.MonitorRecord
	reg *Registry
	ex  Exchange
	n   notify.Notifier

	det      FillDetector
	interval time.Duration
}

func New(rec models.MonitorRecord, reg *Registry, ex Exchange, n notify.Notifier, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		rec:      rec,
		reg:      reg,
		ex:       ex,
		n:        n,
		det:      ReductionHeuristic{},
		interval: interval,
	}
}

type loopExit int

const (
	exitResolved  loopExit = iota // TP1 сработал или позиция закрыта
	exitCancelled                 // запись удалили извне
	exitShutdown                  // процесс останавливается
)

// Run крутит цикл до разрешения TP1 либо внешней отмены (запись удалена из
// реестра). На выходе из цикла запись удаляется — это единственный путь её
// удаления, так записи не протекают. Исключение — shutdown процесса: запись
// остаётся в сторе и монитор поднимется резюмированием после рестарта.
func (m *Monitor) Run(ctx context.Context) {
	exit := m.loop(ctx)

	switch exit {
	case exitShutdown:
		return
	case exitResolved:
		m.onResolved(ctx)
	}

	if err := m.reg.Delete(context.WithoutCancel(ctx), m.rec.ChatID, m.rec.TradeID); err != nil {
		logger.Error("monitor %s: delete record: %v", m.rec.TradeID, err)
	}
	logger.Info("monitor %s [%s]: finished (tp1=%v)", m.rec.TradeID, m.rec.Symbol, exit == exitResolved)
}

func (m *Monitor) loop(ctx context.Context) loopExit {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return exitShutdown
		case <-ticker.C:
		}

		// удаление записи = сигнал отмены
		if !m.reg.Has(m.rec.ChatID, m.rec.TradeID) {
			logger.Info("monitor %s [%s]: record gone, stopping", m.rec.TradeID, m.rec.Symbol)
			return exitCancelled
		}

		size, _, err := m.ex.GetPositionSize(ctx, m.rec.Symbol, m.rec.PositionIdx)
		if err != nil {
			// транзиентные ошибки чтения не валят монитор — дождёмся тика
			logger.Error("monitor %s [%s]: read position: %v", m.rec.TradeID, m.rec.Symbol, err)
			continue
		}

		if m.det.TP1Hit(m.rec.InitialQty, size, m.rec.ExpectedTP1) {
			return exitResolved
		}
	}
}

// onResolved — одна best-effort проходка: ошибки репортим, в цикл не
// возвращаемся.
func (m *Monitor) onResolved(ctx context.Context) {
	m.n.Sendf("🎯 [%s] Сработал TP1 (или позиция закрыта)", m.rec.Symbol)

	m.cancelEntries(ctx)

	if m.rec.BreakevenTP1 {
		m.moveStopToBreakeven(ctx)
	}
}

// cancelEntries снимает ещё живые лимитные доборы: пересекаем сохранённые
// orderId с актуальным списком активных ордеров и отменяем батчем.
func (m *Monitor) cancelEntries(ctx context.Context) {
	if len(m.rec.LimitOrderIDs) == 0 {
		return
	}

	open, err := m.ex.GetOpenOrders(ctx, m.rec.Symbol)
	if err != nil {
		m.n.Sendf("⚠️ [%s] Не удалось прочитать активные ордера: %v", m.rec.Symbol, err)
		return
	}

	stillOpen := make(map[string]bool, len(open))
	for i := range open {
		if open[i].StillOpen() {
			stillOpen[open[i].OrderID] = true
		}
	}

	var toCancel []string
	for _, id := range m.rec.LimitOrderIDs {
		if stillOpen[id] {
			toCancel = append(toCancel, id)
		}
	}
	if len(toCancel) == 0 {
		m.n.Sendf("ℹ️ [%s] Лимитные доборы уже неактивны", m.rec.Symbol)
		return
	}

	results, err := m.ex.CancelBatchOrders(ctx, m.rec.Symbol, toCancel)
	if err != nil {
		m.n.Sendf("⚠️ [%s] Батч-отмена доборов не прошла: %v", m.rec.Symbol, err)
		return
	}

	okCnt, failCnt := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failCnt++
			logger.Error("monitor %s [%s]: cancel %s: %v", m.rec.TradeID, m.rec.Symbol, r.OrderID, r.Err)
		} else {
			okCnt++
		}
	}
	m.n.Sendf("🧹 [%s] Доборы сняты: ok=%d fail=%d", m.rec.Symbol, okCnt, failCnt)
}

// moveStopToBreakeven ставит стоп по средней цене входа на остаток позиции.
// Частичный стоп: только на остаток, не на весь изначальный объём.
func (m *Monitor) moveStopToBreakeven(ctx context.Context) {
	size, avgEntry, err := m.ex.GetPositionSize(ctx, m.rec.Symbol, m.rec.PositionIdx)
	if err != nil {
		m.n.Sendf("⚠️ [%s] Безубыток: не удалось прочитать позицию: %v", m.rec.Symbol, err)
		return
	}
	if size <= 0 {
		// позиция уже закрыта целиком — двигать нечего
		return
	}
	if avgEntry <= 0 {
		m.n.Sendf("⚠️ [%s] Безубыток: некорректная средняя цена", m.rec.Symbol)
		return
	}

	stopPx := roundToTick(avgEntry, m.rec.Rules.TickSize, m.rec.Side)
	qty := roundDownToStep(size, m.rec.Rules.QtyStep)
	if qty <= 0 {
		// остаток меньше шага — выставлять нечего
		return
	}

	if err := m.ex.SetTradingStop(ctx, m.rec.Symbol, m.rec.PositionIdx, stopPx, qty); err != nil {
		m.n.Sendf("⚠️ [%s] Безубыток не выставлен: %v", m.rec.Symbol, err)
		return
	}
	m.n.Sendf("🛡 [%s] SL передвинут в безубыток @ %.6f на остаток %.6f", m.rec.Symbol, stopPx, qty)
}
