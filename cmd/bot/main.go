package main

import (
	"context"
	"log"
	"trade_pilot/internal/modules/config"
	"trade_pilot/internal/modules/engine"
	"trade_pilot/internal/modules/health"
	"trade_pilot/internal/modules/postgres"
	"trade_pilot/internal/modules/ticker"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		ticker.Module(),
		engine.Module(),
		health.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	_ = app.Stop(context.Background())
}
