package models

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

// Opposite — сторона закрывающего ордера (reduce-only).
func (s Side) Opposite() string {
	if s == SideLong {
		return "Sell"
	}
	return "Buy"
}

// OrderSide — сторона открывающего ордера в терминах биржи.
func (s Side) OrderSide() string {
	if s == SideLong {
		return "Buy"
	}
	return "Sell"
}

type OrderStrategy string

const (
	// MarketOnly — весь объём одним рыночным ордером.
	MarketOnly OrderStrategy = "market_only"
	// MarketPlusLimits — часть рынком, остаток двумя лимитками ниже/выше.
	MarketPlusLimits OrderStrategy = "market_plus_limits"
)

// TradeConfig — конфигурация сделки от пользователя.
// После старта исполнения не меняется.
type TradeConfig struct {
	ChatID int64 `json:"chat_id"`

	Symbol   string        `json:"symbol"`
	Side     Side          `json:"side"`
	Margin   float64       `json:"margin"`   // USDT
	Leverage int           `json:"leverage"` // 1..100
	Strategy OrderStrategy `json:"strategy"`

	// Лимитные доборы (до 2), обязательны для MarketPlusLimits.
	LimitPrices []float64 `json:"limit_prices"`

	// Тейки (до 4). Доли фиксированы таблицей аллокаций из конфига.
	TakeProfits []float64 `json:"take_profits"`
	StopLoss    float64   `json:"stop_loss"`

	// PositionIdx для hedge-mode: 1=long, 2=short, 0=one-way.
	PositionIdx int `json:"position_idx"`
}

// EffectiveValue — полный объём позиции в котируемой валюте.
func (c *TradeConfig) EffectiveValue() float64 {
	return c.Margin * float64(c.Leverage)
}
