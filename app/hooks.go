package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"xray-profile/internal/config"
	"xray-profile/internal/dataset"
)

type hookParams struct {
	fx.In

	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Datasets  *dataset.Manager
	Env       string `name:"env"`
}

func registerHooks(p hookParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Debug("starting application",
				zap.String("env", p.Env),
				zap.String("document", p.Config.DocumentPath),
				zap.String("datasets", p.Config.DatasetsDir))
			if missing := p.Datasets.MissingRequired(); len(missing) > 0 {
				p.Logger.Warn("required datasets are missing, run 'datasets update'",
					zap.Strings("datasets", missing))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Debug("stopping application")
			_ = p.Logger.Sync()
			return nil
		},
	})
}
