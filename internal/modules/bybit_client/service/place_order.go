package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
)

// OrderRequest — одна нога (market/limit/tp/sl) в терминах биржи.
type OrderRequest struct {
	Symbol      string
	Side        string // Buy/Sell
	OrderType   string // Market/Limit
	Qty         float64
	Price       float64 // 0 для Market
	TriggerPx   float64 // 0 если нет триггера
	ReduceOnly  bool
	PositionIdx int
}

func (r *OrderRequest) body() map[string]any {
	b := map[string]any{
		"category":    "linear",
		"symbol":      r.Symbol,
		"side":        r.Side,
		"orderType":   r.OrderType,
		"qty":         formatQty(r.Qty),
		"positionIdx": r.PositionIdx,
	}
	if r.Price > 0 {
		b["price"] = formatPrice(r.Price)
	}
	if r.TriggerPx > 0 {
		b["triggerPrice"] = formatPrice(r.TriggerPx)
		b["triggerBy"] = "LastPrice"
		// направление пробоя биржа выводит сама по ордеру/позиции не всегда,
		// поэтому задаём явно: 1 = rise, 2 = fall
		if r.Side == "Sell" {
			b["triggerDirection"] = 2
		} else {
			b["triggerDirection"] = 1
		}
	}
	if r.ReduceOnly {
		b["reduceOnly"] = true
	}
	return b
}

// PlaceOrder отправляет один ордер, возвращает orderId.
func (c *Client) PlaceOrder(ctx context.Context, r OrderRequest) (string, error) {
	payload, err := sonic.Marshal(r.body())
	if err != nil {
		return "", fmt.Errorf("PlaceOrder marshal: %w", err)
	}

	req, err := c.signedRequest(ctx, http.MethodPost, "/v5/order/create", "", string(payload))
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("PlaceOrder do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("PlaceOrder http %d: %s", resp.StatusCode, string(data))
	}

	var r2 orderResponse
	if err := json.Unmarshal(data, &r2); err != nil {
		return "", fmt.Errorf("PlaceOrder decode: %w; body=%s", err, string(data))
	}
	if r2.RetCode != 0 {
		return "", &APIError{Code: r2.RetCode, Msg: r2.RetMsg}
	}
	if r2.Result.OrderID == "" {
		return "", fmt.Errorf("PlaceOrder: empty orderId RAW=%s", string(data))
	}
	return r2.Result.OrderID, nil
}

// BatchResult — исход одной ноги батча.
type BatchResult struct {
	OrderID string
	Err     error
}

// PlaceBatchOrders отправляет до 10 ордеров одним запросом.
// Возвращает результат по каждой ноге в порядке запроса.
func (c *Client) PlaceBatchOrders(ctx context.Context, orders []OrderRequest) ([]BatchResult, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	list := make([]map[string]any, 0, len(orders))
	for i := range orders {
		item := orders[i].body()
		delete(item, "category") // category один на весь батч
		list = append(list, item)
	}
	payload, err := sonic.Marshal(map[string]any{
		"category": "linear",
		"request":  list,
	})
	if err != nil {
		return nil, fmt.Errorf("PlaceBatchOrders marshal: %w", err)
	}

	req, err := c.signedRequest(ctx, http.MethodPost, "/v5/order/create-batch", "", string(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PlaceBatchOrders do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("PlaceBatchOrders http %d: %s", resp.StatusCode, string(data))
	}

	var r batchOrderResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("PlaceBatchOrders decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return nil, &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}

	out := make([]BatchResult, len(orders))
	for i := range out {
		if i < len(r.RetExtInfo.List) && r.RetExtInfo.List[i].Code != 0 {
			out[i].Err = &APIError{Code: r.RetExtInfo.List[i].Code, Msg: r.RetExtInfo.List[i].Msg}
			continue
		}
		if i < len(r.Result.List) {
			out[i].OrderID = r.Result.List[i].OrderID
		}
	}
	return out, nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
