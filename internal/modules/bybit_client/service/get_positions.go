package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trade_pilot/internal/models"
)

// GetPositions читает открытые позиции. symbol опционален: пустая строка —
// все позиции по категории (settleCoin=USDT обязателен в этом случае).
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]models.OpenPosition, error) {
	q := url.Values{}
	q.Set("category", "linear")
	if symbol != "" {
		q.Set("symbol", symbol)
	} else {
		q.Set("settleCoin", "USDT")
	}

	req, err := c.signedRequest(ctx, http.MethodGet, "/v5/position/list", q.Encode(), "")
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GetPositions do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GetPositions http %d: %s", resp.StatusCode, string(data))
	}

	var r positionsResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("GetPositions decode: %w", err)
	}
	if r.RetCode != 0 {
		return nil, &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}

	out := make([]models.OpenPosition, 0, len(r.Result.List))
	for _, d := range r.Result.List {
		size, _ := strconv.ParseFloat(d.Size, 64)
		if size == 0 {
			continue
		}
		avg, _ := strconv.ParseFloat(d.AvgPrice, 64)
		mark, _ := strconv.ParseFloat(d.MarkPrice, 64)
		upl, _ := strconv.ParseFloat(d.UnrealisedPnl, 64)
		lev, _ := strconv.Atoi(d.Leverage)

		side := models.SideLong
		if d.Side == "Sell" {
			side = models.SideShort
		}

		var updated time.Time
		if ms, err := strconv.ParseInt(d.UpdatedTime, 10, 64); err == nil {
			updated = time.UnixMilli(ms)
		}

		out = append(out, models.OpenPosition{
			Symbol:      d.Symbol,
			Side:        side,
			PositionIdx: d.PositionIdx,
			Size:        size,
			AvgEntry:    avg,
			MarkPx:      mark,
			Leverage:    lev,
			UnrealPnl:   upl,
			UpdatedAt:   updated,
		})
	}
	return out, nil
}

// GetPositionSize — размер и средняя цена одной позиции (symbol, positionIdx).
// Плоская позиция — это size=0 без ошибки.
func (c *Client) GetPositionSize(ctx context.Context, symbol string, positionIdx int) (size, avgEntry float64, err error) {
	positions, err := c.GetPositions(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.PositionIdx == positionIdx {
			return p.Size, p.AvgEntry, nil
		}
	}
	return 0, 0, nil
}
