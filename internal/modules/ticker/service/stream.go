package service

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsURL = "wss://stream.bybit.com/v5/public/linear"
	// цена старше этого — не используем, пусть вызывающий сходит в REST
	maxStale = 30 * time.Second
)

// Client — публичный тикер-стрим с кешем последней цены по символам.
// Исполнителю нужна свежая цена для расчёта объёма по ноционалу; кеш
// избавляет от лишнего REST-запроса на каждую сделку.
type Client struct {
	wsDialer *websocket.Dialer
	symbols  []string

	mu     sync.RWMutex
	prices map[string]pricePoint
}

type pricePoint struct {
	px float64
	at time.Time
}

func NewClient(symbols []string) *Client {
	return &Client{
		wsDialer: &websocket.Dialer{},
		symbols:  symbols,
		prices:   make(map[string]pricePoint),
	}
}

// Fresh — есть ли в кеше хоть одна непротухшая цена (для health-срезов).
func (c *Client) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.prices {
		if time.Since(p.at) <= maxStale {
			return true
		}
	}
	return false
}

// LastPrice — последняя цена из кеша, ok=false если цены нет или она протухла.
func (c *Client) LastPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	p, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok || time.Since(p.at) > maxStale {
		return 0, false
	}
	return p.px, true
}

// Start держит соединение живым: реконнект с паузой, keepalive ping.
func (c *Client) Start(ctx context.Context) {
	if len(c.symbols) == 0 {
		return
	}

	args := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		args = append(args, "tickers."+s)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		log.Printf("[WS] tickers connect: %d symbols", len(c.symbols))
		conn, _, err := c.wsDialer.Dial(wsURL, nil)
		if err != nil {
			log.Printf("[WS] tickers dial error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		sub := map[string]any{
			"op":   "subscribe",
			"args": args,
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("[WS] tickers subscribe error: %v", err)
			_ = conn.Close()
			continue
		}

		// keepalive каждые 20s — иначе биржа рвёт соединение
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]string{"op": "ping"})
				}
			}
		}()

		c.readLoop(ctx, conn)
		close(stopPing)
		_ = conn.Close()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] tickers read error: %v", err)
			return
		}

		var frame struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		// в дельтах lastPrice может отсутствовать — пропускаем кадр
		if frame.Data.Symbol == "" || frame.Data.LastPrice == "" {
			continue
		}

		px, err := strconv.ParseFloat(frame.Data.LastPrice, 64)
		if err != nil || px <= 0 {
			continue
		}

		c.mu.Lock()
		c.prices[frame.Data.Symbol] = pricePoint{px: px, at: time.Now()}
		c.mu.Unlock()
	}
}
