package monitor

import (
	"context"

	"trade_pilot/pkg/logger"
)

// ResumeAll поднимает мониторы из стора после рестарта процесса.
// Персист — это ожидания, биржа — истина: для каждой записи сверяемся с
// живой позицией и резюмируем только то, за чем ещё есть смысл наблюдать.
//
// Запись, которая по живым данным уже выглядит разрешённой (TP1 сработал,
// пока процесс лежал), просто удаляется — действия по снятию доборов и
// безубытку на возможно устаревшем состоянии НЕ выполняются.
func (m *Manager) ResumeAll(ctx context.Context) {
	recs := m.reg.Snapshot()
	if len(recs) == 0 {
		return
	}

	resumed, dropped := 0, 0
	for _, rec := range recs {
		if !rec.Valid() {
			// битая/неполная запись — резюмировать нечего
			_ = m.reg.Delete(ctx, rec.ChatID, rec.TradeID)
			m.n.Sendf("🗑 Монитор %s: запись повреждена, удалена", rec.TradeID)
			dropped++
			continue
		}

		size, _, err := m.ex.GetPositionSize(ctx, rec.Symbol, rec.PositionIdx)
		if err != nil {
			// без живых данных безопасно не продолжить — лучше удалить и сказать
			_ = m.reg.Delete(ctx, rec.ChatID, rec.TradeID)
			m.n.Sendf("🗑 Монитор %s [%s]: биржа недоступна (%v), наблюдение не восстановлено",
				rec.TradeID, rec.Symbol, err)
			dropped++
			continue
		}

		det := ReductionHeuristic{}
		if det.TP1Hit(rec.InitialQty, size, rec.ExpectedTP1) {
			// позиция плоская либо уже урезана на ожидаемый объём TP1 —
			// монитор своё отработал бы, запись больше не нужна
			_ = m.reg.Delete(ctx, rec.ChatID, rec.TradeID)
			dropped++
			continue
		}

		if err := m.Resume(ctx, rec); err != nil {
			logger.Error("resume %s: %v", rec.TradeID, err)
			continue
		}
		resumed++
	}

	logger.Info("monitor resume: resumed=%d dropped=%d", resumed, dropped)
	if resumed > 0 {
		m.n.Sendf("🔄 Восстановлено мониторов после рестарта: %d", resumed)
	}
}
