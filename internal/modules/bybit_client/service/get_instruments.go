package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"trade_pilot/internal/models"
)

// GetInstrumentRules возвращает торговые правила символа. Правила меняются
// редко — кешируем по символу на клиента. LastPx всегда свежий: он нужен
// для расчёта объёма по ноционалу.
func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (models.Instrument, error) {
	c.rulesMu.RLock()
	cached, ok := c.rules[symbol]
	c.rulesMu.RUnlock()

	if !ok {
		fetched, err := c.fetchInstrument(ctx, symbol)
		if err != nil {
			return models.Instrument{}, err
		}
		c.rulesMu.Lock()
		c.rules[symbol] = fetched
		c.rulesMu.Unlock()
		cached = fetched
	}

	lastPx, err := c.GetLastPrice(ctx, symbol)
	if err != nil {
		return models.Instrument{}, fmt.Errorf("ticker: %w", err)
	}
	if lastPx <= 0 {
		return models.Instrument{}, fmt.Errorf("lastPx <= 0: %.10f", lastPx)
	}
	cached.LastPx = lastPx
	return cached, nil
}

func (c *Client) fetchInstrument(ctx context.Context, symbol string) (models.Instrument, error) {
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/v5/market/instruments-info?"+q.Encode(), nil)
	if err != nil {
		return models.Instrument{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Instrument{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return models.Instrument{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var r instrumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.Instrument{}, fmt.Errorf("decode: %w", err)
	}
	if r.RetCode != 0 {
		return models.Instrument{}, &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}
	if len(r.Result.List) == 0 {
		return models.Instrument{}, fmt.Errorf("instrument %s not found", symbol)
	}

	inst := r.Result.List[0]
	if inst.Status != "" && inst.Status != "Trading" {
		return models.Instrument{}, fmt.Errorf("instrument %s not trading: status=%s", symbol, inst.Status)
	}

	parsePos := func(name, s string) (float64, error) {
		if s == "" {
			return 0, fmt.Errorf("%s empty", name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%s parse: %v (%q)", name, err, s)
		}
		return v, nil
	}

	tick, err := parsePos("tickSize", inst.PriceFilter.TickSize)
	if err != nil {
		return models.Instrument{}, err
	}
	step, err := parsePos("qtyStep", inst.LotSizeFilter.QtyStep)
	if err != nil {
		return models.Instrument{}, err
	}
	minQty, err := parsePos("minOrderQty", inst.LotSizeFilter.MinOrderQty)
	if err != nil {
		return models.Instrument{}, err
	}

	// minNotional у части символов не задан — тогда 0, не ошибка
	var minNotional float64
	if inst.LotSizeFilter.MinNotionalValue != "" {
		minNotional, _ = strconv.ParseFloat(inst.LotSizeFilter.MinNotionalValue, 64)
	}

	return models.Instrument{
		Symbol:      inst.Symbol,
		TickSize:    tick,
		QtyStep:     step,
		MinQty:      minQty,
		MinNotional: minNotional,
	}, nil
}
