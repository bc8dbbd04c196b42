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

// GetOpenOrders читает активные ордера. symbol опционален (пустая строка — все
// по settleCoin=USDT).
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	q := url.Values{}
	q.Set("category", "linear")
	if symbol != "" {
		q.Set("symbol", symbol)
	} else {
		q.Set("settleCoin", "USDT")
	}

	req, err := c.signedRequest(ctx, http.MethodGet, "/v5/order/realtime", q.Encode(), "")
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GetOpenOrders do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GetOpenOrders http %d: %s", resp.StatusCode, string(data))
	}

	var r openOrdersResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("GetOpenOrders decode: %w", err)
	}
	if r.RetCode != 0 {
		return nil, &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}

	out := make([]models.OpenOrder, 0, len(r.Result.List))
	for _, d := range r.Result.List {
		px, _ := strconv.ParseFloat(d.Price, 64)
		qty, _ := strconv.ParseFloat(d.Qty, 64)
		out = append(out, models.OpenOrder{
			OrderID:     d.OrderID,
			Symbol:      d.Symbol,
			Side:        d.Side,
			Price:       px,
			Qty:         qty,
			Status:      d.OrderStatus,
			ReduceOnly:  d.ReduceOnly,
			PositionIdx: d.PositionIdx,
		})
	}
	return out, nil
}
