package app

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xray-profile/internal/config"
	"xray-profile/internal/dataset"
	"xray-profile/internal/fetch"
	"xray-profile/internal/metrics"
	"xray-profile/internal/profile"
	"xray-profile/internal/store"
	"xray-profile/internal/subscription"
	"xray-profile/internal/worker"
)

// Modules registers every service of the application.
var Modules = fx.Options(
	config.Module,
	metrics.Module,
	fetch.Module,
	store.Module,
	dataset.Module,
	subscription.Module,
	profile.Module,
	worker.Module,

	// Both downloaders share the retrying HTTP client
	fx.Provide(
		func(c *fetch.Client) dataset.Fetcher { return c },
		func(c *fetch.Client) subscription.Fetcher { return c },
	),

	fx.Decorate(withConfiguredLevel),
)

// withConfiguredLevel raises the logger to the settings' log_level. It never lowers it.
func withConfiguredLevel(logger *zap.Logger, cfg *config.Config) *zap.Logger {
	if cfg.LogLevel == "" {
		return logger
	}
	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(lvl))
}
