package ticker

import (
	"context"

	"go.uber.org/fx"

	"trade_pilot/internal/modules/config"
	"trade_pilot/internal/modules/ticker/service"
)

// Module поднимает тикер-стрим по watch-листу из конфига.
func Module() fx.Option {
	return fx.Module("ticker",
		fx.Provide(
			func(cfg *config.Config) *service.Client {
				return service.NewClient(cfg.WatchSymbols)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Client, cfg *config.Config, ctx context.Context) {
			if len(cfg.WatchSymbols) == 0 {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go s.Start(ctx)
					return nil
				},
			})
		}),
	)
}
