package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"xray-profile/internal/common"
	"xray-profile/internal/dataset"
	"xray-profile/internal/profile"
	"xray-profile/internal/worker"
)

type Application struct {
	app       *fx.App
	logger    *zap.Logger
	profile   *profile.Service
	datasets  *dataset.Manager
	scheduler *worker.Scheduler
}

func NewApplication(opts ...common.Option) *Application {
	options := common.Apply(opts...)

	app := &Application{
		logger: options.Logger,
	}

	fxOptions := []fx.Option{
		Modules,

		// Provide base dependencies
		fx.Supply(options.Logger),
		fx.Supply(fx.Annotated{Name: "env", Target: options.Env}),

		// Configure fx
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),

		// Set timeouts
		fx.StopTimeout(30 * time.Second),
		fx.StartTimeout(30 * time.Second),

		// Register lifecycle hooks
		fx.Invoke(registerHooks),

		fx.Populate(&app.profile, &app.datasets, &app.scheduler),
	}
	fxOptions = append(fxOptions, options.FxOptions...)

	app.app = fx.New(fxOptions...)
	return app
}

// Err reports a failure to build the dependency graph.
func (a *Application) Err() error {
	return a.app.Err()
}

func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

func (a *Application) Profile() *profile.Service {
	return a.profile
}

func (a *Application) Datasets() *dataset.Manager {
	return a.datasets
}

func (a *Application) Scheduler() *worker.Scheduler {
	return a.scheduler
}

// Run starts the application, runs fn and stops it again. The error of fn
// wins over a stop error.
func (a *Application) Run(ctx context.Context, fn func(context.Context, *Application) error) error {
	if err := a.Err(); err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	runErr := fn(ctx, a)

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		a.logger.Error("failed to stop application gracefully", zap.Error(err))
		if runErr == nil {
			return err
		}
	}
	return runErr
}
