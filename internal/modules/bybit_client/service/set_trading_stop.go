package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
)

// SetTradingStop переставляет стоп-лосс на позиции. tpslMode=Partial позволяет
// стоп на часть позиции (нужно для безубытка после TP1: стоп только на остаток).
func (c *Client) SetTradingStop(ctx context.Context, symbol string, positionIdx int, stopPx, size float64) error {
	if stopPx <= 0 {
		return fmt.Errorf("SetTradingStop: stopPx <= 0")
	}
	if size <= 0 {
		return fmt.Errorf("SetTradingStop: size <= 0")
	}

	payload, _ := sonic.Marshal(map[string]any{
		"category":    "linear",
		"symbol":      symbol,
		"positionIdx": positionIdx,
		"tpslMode":    "Partial",
		"stopLoss":    formatPrice(stopPx),
		"slSize":      formatQty(size),
		"slTriggerBy": "LastPrice",
	})

	req, err := c.signedRequest(ctx, http.MethodPost, "/v5/position/trading-stop", "", string(payload))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("SetTradingStop do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("SetTradingStop http %d: %s", resp.StatusCode, string(data))
	}

	var r envelope
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("SetTradingStop decode: %w; body=%s", err, string(data))
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
