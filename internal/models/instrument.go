package models

// Instrument — торговые правила инструмента с биржи.
// Всё, что уходит на биржу, округляется по этим шагам.
type Instrument struct {
	Symbol      string  `json:"symbol"`
	TickSize    float64 `json:"tick_size"`    // шаг цены
	QtyStep     float64 `json:"qty_step"`     // шаг количества
	MinQty      float64 `json:"min_qty"`      // минимальный объём ордера
	MinNotional float64 `json:"min_notional"` // минимальная стоимость ордера (qty*px)
	LastPx      float64 `json:"last_px"`      // последняя цена на момент запроса
}
