package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"

	"xray-profile/internal/common"
	"xray-profile/internal/dataset"
	"xray-profile/internal/profile"
	"xray-profile/internal/subscription"
	"xray-profile/internal/worker"
)

// TestApplication runs the application graph under fxtest with the network replaced.
type TestApplication struct {
	tb      testing.TB
	options *common.ServiceOptions
	testApp *fxtest.App

	Profile   *profile.Service
	Datasets  *dataset.Manager
	Scheduler *worker.Scheduler
}

func NewTestApplication(tb testing.TB, opts ...common.Option) *TestApplication {
	defaults := []common.Option{
		common.WithLogger(zaptest.NewLogger(tb)),
		common.WithEnv("test"),
	}
	return &TestApplication{
		tb:      tb,
		options: common.Apply(append(defaults, opts...)...),
	}
}

// WithFetcher serves every download from f instead of the HTTP client.
func (ta *TestApplication) WithFetcher(f dataset.Fetcher) *TestApplication {
	return ta.WithOption(fx.Decorate(
		func(dataset.Fetcher) dataset.Fetcher { return f },
		func(subscription.Fetcher) subscription.Fetcher { return f },
	))
}

func (ta *TestApplication) WithOption(opt fx.Option) *TestApplication {
	ta.options.FxOptions = append(ta.options.FxOptions, opt)
	return ta
}

func (ta *TestApplication) Start(ctx context.Context) error {
	testOptions := []fx.Option{
		Modules,
		fx.Supply(ta.options.Logger),
		fx.Supply(fx.Annotated{Name: "env", Target: ta.options.Env}),
		fx.Invoke(registerHooks),
		fx.Populate(&ta.Profile, &ta.Datasets, &ta.Scheduler),
	}
	testOptions = append(testOptions, ta.options.FxOptions...)
	testOptions = append(testOptions,
		fx.StartTimeout(10*time.Second),
		fx.StopTimeout(10*time.Second),
	)

	ta.testApp = fxtest.New(ta.tb, testOptions...)
	return ta.testApp.Start(ctx)
}

func (ta *TestApplication) Stop(ctx context.Context) error {
	if ta.testApp != nil {
		return ta.testApp.Stop(ctx)
	}
	return nil
}
