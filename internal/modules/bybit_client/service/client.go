package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"trade_pilot/internal/models"
)

const (
	baseURL    = "https://api.bybit.com"
	recvWindow = "5000"
)

// Client — подписанный REST-клиент Bybit v5 под один аккаунт.
type Client struct {
	label     string // "primary"/"secondary" — для логов и сводок
	apiKey    string
	apiSecret string
	base      string
	http      *http.Client

	rulesMu sync.RWMutex
	rules   map[string]models.Instrument
}

func NewClient(label, apiKey, apiSecret string) *Client {
	return &Client{
		label:     label,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		base:      baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		rules:     make(map[string]models.Instrument),
	}
}

func (c *Client) Label() string { return c.label }

// sign: ts + apiKey + recvWindow + (query|body), HMAC-SHA256 hex.
func (c *Client) sign(ts, payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(ts + c.apiKey + recvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) signedRequest(ctx context.Context, method, path, query, body string) (*http.Request, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	url := c.base + path
	payload := body
	if method == http.MethodGet {
		payload = query
		if query != "" {
			url += "?" + query
		}
	}

	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-SIGN", c.sign(ts, payload))
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// APIError — отказ биржи (retCode != 0). Отличаем от сетевых проблем:
// сетевые ретраим, отказ как правило нет.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit error: retCode=%d retMsg=%s", e.Code, e.Msg)
}

// Transient — коды, которые имеет смысл ретраить.
func (e *APIError) Transient() bool {
	switch e.Code {
	case 10002, // request not in recv_window
		10006, // rate limit
		10016: // internal server error
		return true
	}
	return false
}

// IsTransient: таймауты/сеть/5xx-подобные коды биржи.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsNoOp — идемпотентные "ошибки": действие уже выполнено или не требуется.
// Для вызывающего это успех.
func IsNoOp(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 110043, // leverage not modified
		110001, // order does not exist (уже снят/исполнен)
		34040: // not modified
		return true
	}
	return false
}
