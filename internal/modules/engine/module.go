package engine

import (
	"context"

	"go.uber.org/fx"

	"trade_pilot/internal/executor"
	"trade_pilot/internal/models"
	bybit "trade_pilot/internal/modules/bybit_client/service"
	"trade_pilot/internal/modules/config"
	ticker "trade_pilot/internal/modules/ticker/service"
	"trade_pilot/internal/monitor"
	"trade_pilot/internal/notify"
	"trade_pilot/internal/unwind"
	"trade_pilot/pkg/db"
	"trade_pilot/pkg/logger"
	"trade_pilot/pkg/tracing"
)

// Clients — именованные клиенты биржи. Secondary nil, если второй аккаунт
// не сконфигурен.
type Clients struct {
	Primary   *bybit.Client
	Secondary *bybit.Client
}

// positionsAdapter приводит клиента к срезу для /positions.
type positionsAdapter struct {
	c *bybit.Client
}

func (a positionsAdapter) OpenPositions(ctx context.Context) ([]models.OpenPosition, error) {
	return a.c.GetPositions(ctx, "")
}

// Module собирает весь граф движка: клиенты биржи, реестр мониторов с
// pg-стором, менеджер, исполнитель, координатор аварийного выхода и
// телеграм-нотифайер.
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(cfg *config.Config) Clients {
				cl := Clients{
					Primary: bybit.NewClient("primary", cfg.Primary.APIKey, cfg.Primary.APISecret),
				}
				if cfg.Secondary.APIKey != "" {
					cl.Secondary = bybit.NewClient("secondary", cfg.Secondary.APIKey, cfg.Secondary.APISecret)
				}
				return cl
			},

			func(tx *db.PgTxManager) *monitor.Registry {
				return monitor.NewRegistry(monitor.NewPgStore(tx))
			},

			func(cfg *config.Config) (*notify.Telegram, error) {
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID,
					cfg.PanicCooldown, cfg.ConfirmTimeout)
			},

			func(reg *monitor.Registry, cl Clients, t *notify.Telegram, cfg *config.Config) *monitor.Manager {
				return monitor.NewManager(reg, cl.Primary, t, cfg.PollInterval)
			},

			func(cl Clients, mgr *monitor.Manager, t *notify.Telegram, ws *ticker.Client, cfg *config.Config) *executor.Executor {
				return executor.New(cl.Primary, mgr, t, ws, executor.Config{
					EntryAllocPct: cfg.EntryAllocPct,
					TPAllocPct:    cfg.TPAllocPct,
					SettleDelay:   cfg.SettleDelay,
					BreakevenTP1:  cfg.BreakevenTP1,
				})
			},

			func(cl Clients, reg *monitor.Registry) *unwind.Coordinator {
				var secondary unwind.Exchange
				if cl.Secondary != nil {
					secondary = cl.Secondary
				}
				return unwind.New(cl.Primary, secondary, reg)
			},
		),

		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context,
			cfg *config.Config, cl Clients, reg *monitor.Registry, mgr *monitor.Manager,
			exec *executor.Executor, uw *unwind.Coordinator, t *notify.Telegram) {

			logger.SetServiceName("trade_pilot")
			tracing.SetServiceName("trade_pilot")
			var closeTracer func()
			if cfg.Jaeger.Host != "" {
				if _, closer, err := tracing.InitTracer(tracing.Config{
					Host: cfg.Jaeger.Host,
					Port: cfg.Jaeger.Port,
				}); err == nil {
					closeTracer = closer
				}
			}

			t.SetCollaborators(positionsAdapter{c: cl.Primary}, uw, exec)

			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := reg.Load(startCtx); err != nil {
						return err
					}
					if err := t.Start(ctx); err != nil {
						return err
					}
					go mgr.ResumeAll(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					mgr.StopAll()
					t.Stop()
					if closeTracer != nil {
						closeTracer()
					}
					return nil
				},
			})
		}),
	)
}
