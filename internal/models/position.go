package models

import "time"

// OpenPosition — открытая позиция, как мы её читаем с биржи.
type OpenPosition struct {
	Symbol      string
	Side        Side
	PositionIdx int
	Size        float64
	AvgEntry    float64
	MarkPx      float64
	Leverage    int
	UnrealPnl   float64
	UpdatedAt   time.Time
}

func (p *OpenPosition) Notional() float64 {
	px := p.MarkPx
	if px <= 0 {
		px = p.AvgEntry
	}
	return p.Size * px
}

// OpenOrder — активный ордер на бирже.
type OpenOrder struct {
	OrderID     string
	Symbol      string
	Side        string
	Price       float64
	Qty         float64
	Status      string // New / PartiallyFilled / ...
	ReduceOnly  bool
	PositionIdx int
}

// StillOpen — статусы, при которых ордер ещё можно снять.
func (o *OpenOrder) StillOpen() bool {
	switch o.Status {
	case "New", "PartiallyFilled", "Untriggered":
		return true
	}
	return false
}
