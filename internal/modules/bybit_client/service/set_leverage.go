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

// SetLeverage выставляет плечо по символу. "leverage not modified" (110043)
// биржа возвращает как ошибку, для нас это успех — плечо уже такое.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lv := strconv.Itoa(leverage)
	payload, _ := sonic.Marshal(map[string]string{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  lv,
		"sellLeverage": lv,
	})

	req, err := c.signedRequest(ctx, http.MethodPost, "/v5/position/set-leverage", "", string(payload))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("SetLeverage do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("SetLeverage http %d: %s", resp.StatusCode, string(data))
	}

	var r envelope
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("SetLeverage decode: %w; body=%s", err, string(data))
	}
	if r.RetCode != 0 {
		apiErr := &APIError{Code: r.RetCode, Msg: r.RetMsg}
		if IsNoOp(apiErr) {
			return nil
		}
		return apiErr
	}
	return nil
}
