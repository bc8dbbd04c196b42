package models

import "time"

// TradeInstance — фактическое состояние сделки после исполнения.
// Принадлежит оркестратору до передачи в реестр мониторов.
type TradeInstance struct {
	TradeID string `json:"trade_id"` // uuid, генерится один раз
	ChatID  int64  `json:"chat_id"`

	Symbol      string `json:"symbol"`
	Side        Side   `json:"side"`
	PositionIdx int    `json:"position_idx"`

	FilledQty float64 `json:"filled_qty"` // фактический объём рыночного входа
	AvgEntry  float64 `json:"avg_entry"`  // фактическая средняя цена

	LimitOrderIDs []string   `json:"limit_order_ids"`
	Rules         Instrument `json:"rules"`
}

// MonitorRecord — то, что переживает рестарт процесса.
// Запись не мутируется; единственная операция после вставки — удаление,
// и удаляет её только сам монитор на выходе из цикла.
type MonitorRecord struct {
	TradeID string `json:"trade_id"`
	ChatID  int64  `json:"chat_id"`

	Symbol      string `json:"symbol"`
	Side        Side   `json:"side"`
	PositionIdx int    `json:"position_idx"`

	InitialQty    float64 `json:"initial_qty"`     // объём на старте наблюдения
	ExpectedTP1   float64 `json:"expected_tp1"`    // ожидаемый объём закрытия по TP1
	BreakevenTP1  bool    `json:"breakeven_tp1"`   // двигать SL в безубыток после TP1
	LimitOrderIDs []string `json:"limit_order_ids"`

	Rules     Instrument `json:"rules"`
	CreatedAt time.Time  `json:"created_at"`
}

// Valid — минимальный набор полей, без которого резюмировать монитор нельзя.
func (r *MonitorRecord) Valid() bool {
	return r.TradeID != "" && r.ChatID != 0 && r.Symbol != "" &&
		r.InitialQty > 0 && r.ExpectedTP1 > 0
}
