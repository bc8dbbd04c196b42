package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// GetLastPrice — последняя цена по публичному тикеру.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/v5/market/tickers?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("GetLastPrice build: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GetLastPrice do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("GetLastPrice http %d: %s", resp.StatusCode, string(data))
	}

	var r tickersResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, fmt.Errorf("GetLastPrice decode: %w", err)
	}
	if r.RetCode != 0 {
		return 0, &APIError{Code: r.RetCode, Msg: r.RetMsg}
	}
	if len(r.Result.List) == 0 {
		return 0, fmt.Errorf("ticker %s not found", symbol)
	}

	px, err := strconv.ParseFloat(r.Result.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("GetLastPrice parse %q: %w", r.Result.List[0].LastPrice, err)
	}
	return px, nil
}
