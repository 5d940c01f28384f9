package worker

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xray-profile/internal/config"
	"xray-profile/internal/dataset"
	"xray-profile/internal/profile"
)

var Module = fx.Options(
	fx.Provide(NewRefreshScheduler),
	fx.Invoke(registerHooks),
)

type Params struct {
	fx.In

	Config   *config.Config
	Profile  *profile.Service
	Datasets *dataset.Manager
	Logger   *zap.Logger
}

// NewRefreshScheduler refreshes datasets and, when any are configured, subscriptions.
func NewRefreshScheduler(p Params) (*Scheduler, error) {
	jobs := []Job{{Name: "datasets", Run: refreshDatasets(p.Datasets)}}
	if len(p.Config.Subscriptions) > 0 {
		jobs = append(jobs, Job{Name: "subscriptions", Run: refreshSubscriptions(p.Profile)})
	}
	return NewScheduler(p.Config.Refresh.Schedule, jobs, p.Logger)
}

func refreshDatasets(m *dataset.Manager) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs error
		for _, r := range m.FetchAll(ctx) {
			errs = multierr.Append(errs, r.Error)
		}
		return errs
	}
}

func refreshSubscriptions(s *profile.Service) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.Subscribe(ctx)
		return err
	}
}

func registerHooks(lc fx.Lifecycle, scheduler *Scheduler) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop()
		},
	})
}
