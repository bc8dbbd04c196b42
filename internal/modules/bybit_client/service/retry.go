package service

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

const maxAttempts = 3

// Retry повторяет fn при транзиентных ошибках (сеть/таймаут/рейт-лимит) с
// экспоненциальной паузой. Отказ биржи не ретраим — он и со второй попытки
// будет тем же.
func Retry(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return err
}
