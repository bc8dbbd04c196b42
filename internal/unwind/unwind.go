package unwind

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/time/rate"

	"trade_pilot/internal/models"
	"trade_pilot/internal/monitor"
	bybit "trade_pilot/internal/modules/bybit_client/service"
	"trade_pilot/pkg/logger"
)

const (
	cancelBatchSize = 10
	closeDelay      = 300 * time.Millisecond
)

// Exchange — что координатору нужно от одного аккаунта.
type Exchange interface {
	Label() string
	GetOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
	CancelBatchOrders(ctx context.Context, symbol string, orderIDs []string) ([]bybit.BatchResult, error)
	GetPositions(ctx context.Context, symbol string) ([]models.OpenPosition, error)
	PlaceOrder(ctx context.Context, r bybit.OrderRequest) (string, error)
}

// Coordinator — аварийный выход: снять все ордера, закрыть все позиции,
// по одному или двум аккаунтам. Кулдаун между вызовами и окно подтверждения —
// ответственность вызывающего; сам координатор безопасен к повторному вызову:
// уже снятое/закрытое превращается в no-op, не в ошибку.
type Coordinator struct {
	primary   Exchange
	secondary Exchange // nil, если второй аккаунт не сконфигурен
	reg       *monitor.Registry

	// пейсинг батч-отмен, чтобы не упереться в рейт-лимит биржи
	limiter *rate.Limiter
}

func New(primary, secondary Exchange, reg *monitor.Registry) *Coordinator {
	return &Coordinator{
		primary:   primary,
		secondary: secondary,
		reg:       reg,
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Unwind — две фазы, каждая конкурентно по аккаунтам, фазы никогда не
// перемешиваются: сначала ВСЕ отмены, потом ВСЕ закрытия. Иначе лимитка или
// стоп могут исполниться поверх летящего закрытия.
func (c *Coordinator) Unwind(ctx context.Context, includeSecondary bool) *models.UnwindSummary {
	span, ctx := opentracing.StartSpanFromContext(ctx, "unwind.Unwind")
	defer span.Finish()

	started := time.Now()

	accounts := []Exchange{c.primary}
	if includeSecondary && c.secondary != nil {
		accounts = append(accounts, c.secondary)
	}

	summary := &models.UnwindSummary{
		Accounts: make([]models.AccountUnwind, len(accounts)),
	}
	for i, acc := range accounts {
		summary.Accounts[i].Account = acc.Label()
	}

	// фаза 1: отмены
	var wg sync.WaitGroup
	for i, acc := range accounts {
		wg.Add(1)
		go func(i int, acc Exchange) {
			defer wg.Done()
			c.cancelAll(ctx, acc, &summary.Accounts[i])
		}(i, acc)
	}
	wg.Wait()

	// фаза 2: закрытия
	for i, acc := range accounts {
		wg.Add(1)
		go func(i int, acc Exchange) {
			defer wg.Done()
			c.closeAll(ctx, acc, &summary.Accounts[i])
		}(i, acc)
	}
	wg.Wait()

	// сверка остатка: успех — это ноль остатка, а не пустой список ошибок
	for i, acc := range accounts {
		c.checkResidue(ctx, acc, &summary.Accounts[i])
	}

	// реестр мониторов больше не актуален: позиции закрыты
	if c.reg != nil {
		for _, rec := range c.reg.Snapshot() {
			c.reg.Clear(ctx, rec.ChatID)
		}
	}

	summary.Elapsed = time.Since(started)
	return summary
}

// cancelAll снимает все активные ордера аккаунта: группируем по символу,
// режем на батчи ограниченного размера, между батчами пауза. Ошибка одной
// ноги не останавливает остальные.
func (c *Coordinator) cancelAll(ctx context.Context, acc Exchange, out *models.AccountUnwind) {
	var orders []models.OpenOrder
	err := bybit.Retry(ctx, func() error {
		var err error
		orders, err = acc.GetOpenOrders(ctx, "")
		return err
	})
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("list orders: %v", err))
		return
	}

	bySymbol := make(map[string][]string)
	for i := range orders {
		if orders[i].StillOpen() {
			bySymbol[orders[i].Symbol] = append(bySymbol[orders[i].Symbol], orders[i].OrderID)
		}
	}

	for symbol, ids := range bySymbol {
		for start := 0; start < len(ids); start += cancelBatchSize {
			end := start + cancelBatchSize
			if end > len(ids) {
				end = len(ids)
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}

			results, err := acc.CancelBatchOrders(ctx, symbol, ids[start:end])
			if err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("%s cancel batch: %v", symbol, err))
				continue
			}
			for _, r := range results {
				switch {
				case r.Err == nil:
					out.CancelledOrders = append(out.CancelledOrders, r.OrderID)
				case bybit.IsNoOp(r.Err):
					// ордер уже снят/исполнен — не ошибка и не отмена
				default:
					out.Errors = append(out.Errors, fmt.Sprintf("%s cancel %s: %v", symbol, r.OrderID, r.Err))
				}
			}
		}
	}
}

// closeAll закрывает все открытые позиции reduce-only рыночными ордерами
// на полный размер, по одной, с паузой между закрытиями. Здесь важна
// корректность каждого закрытия, а не пропускная способность — без батчей.
func (c *Coordinator) closeAll(ctx context.Context, acc Exchange, out *models.AccountUnwind) {
	var positions []models.OpenPosition
	err := bybit.Retry(ctx, func() error {
		var err error
		positions, err = acc.GetPositions(ctx, "")
		return err
	})
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("list positions: %v", err))
		return
	}

	for _, p := range positions {
		if p.Size <= 0 {
			continue
		}

		var orderID string
		err := bybit.Retry(ctx, func() error {
			var err error
			orderID, err = acc.PlaceOrder(ctx, bybit.OrderRequest{
				Symbol:      p.Symbol,
				Side:        p.Side.Opposite(),
				OrderType:   "Market",
				Qty:         p.Size,
				ReduceOnly:  true,
				PositionIdx: p.PositionIdx,
			})
			return err
		})
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s close: %v", p.Symbol, err))
			continue
		}

		out.Closed = append(out.Closed, models.ClosedPosition{
			Symbol:   p.Symbol,
			Side:     p.Side,
			Qty:      p.Size,
			Notional: p.Notional(),
			OrderID:  orderID,
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(closeDelay):
		}
	}
}

// checkResidue перечитывает аккаунт после обеих фаз: что выжило — то и
// определяет исход.
func (c *Coordinator) checkResidue(ctx context.Context, acc Exchange, out *models.AccountUnwind) {
	if orders, err := acc.GetOpenOrders(ctx, ""); err == nil {
		for i := range orders {
			if orders[i].StillOpen() {
				out.ResidualOrders++
			}
		}
	} else {
		out.Errors = append(out.Errors, fmt.Sprintf("residue orders: %v", err))
	}

	if positions, err := acc.GetPositions(ctx, ""); err == nil {
		for i := range positions {
			if positions[i].Size > 0 {
				out.ResidualPositions++
			}
		}
	} else {
		out.Errors = append(out.Errors, fmt.Sprintf("residue positions: %v", err))
	}

	if !out.Clean() {
		logger.Error("unwind %s: residue orders=%d positions=%d",
			out.Account, out.ResidualOrders, out.ResidualPositions)
	}
}
