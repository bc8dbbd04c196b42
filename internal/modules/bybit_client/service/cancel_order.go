package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
)

// CancelOrder снимает один ордер. "Ордер уже не существует" — не ошибка
// для вызывающего (см. IsNoOp).
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	payload, _ := sonic.Marshal(map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	})

	req, err := c.signedRequest(ctx, http.MethodPost, "/v5/order/cancel", "", string(payload))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("CancelOrder do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("CancelOrder http %d: %s", resp.StatusCode, string(data))
	}

	var r envelope
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("CancelOrder decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}
	return nil
}

// CancelBatchOrders снимает до 10 ордеров одним запросом, результат по каждой ноге.
func (c *Client) CancelBatchOrders(ctx context.Context, symbol string, orderIDs []string) ([]BatchResult, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	list := make([]map[string]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		list = append(list, map[string]string{"symbol": symbol, "orderId": id})
	}
	payload, err := sonic.Marshal(map[string]any{
		"category": "linear",
		"request":  list,
	})
	if err != nil {
		return nil, fmt.Errorf("CancelBatchOrders marshal: %w", err)
	}

	req, err := c.signedRequest(ctx, http.MethodPost, "/v5/order/cancel-batch", "", string(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CancelBatchOrders do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("CancelBatchOrders http %d: %s", resp.StatusCode, string(data))
	}

	var r batchOrderResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("CancelBatchOrders decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		return nil, &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}

	out := make([]BatchResult, len(orderIDs))
	for i := range out {
		out[i].OrderID = orderIDs[i]
		if i < len(r.RetExtInfo.List) && r.RetExtInfo.List[i].Code != 0 {
			out[i].Err = &APIError{Code: r.RetExtInfo.List[i].Code, Msg: r.RetExtInfo.List[i].Msg}
		}
	}
	return out, nil
}
