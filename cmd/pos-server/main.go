package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/quitanda/pdv/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadServerConfig()
		if err != nil {
			return err
		}
		return appkg.RunServer(ctx, lg, m, cfg)
	})
}
