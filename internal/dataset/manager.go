package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xray-profile/internal/config"
	"xray-profile/internal/domain"
)

var Module = fx.Provide(NewManager)

// Fetcher downloads a URL. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Manager keeps the engine's geo datasets in a single directory as <name>.dat.
type Manager struct {
	dir      string
	datasets []domain.Dataset
	workers  int
	fetcher  Fetcher
	metrics  domain.MetricsCollector
	logger   *zap.Logger
}

type Params struct {
	fx.In

	Config  *config.Config
	Fetcher Fetcher
	Metrics domain.MetricsCollector
	Logger  *zap.Logger
}

func NewManager(p Params) *Manager {
	return New(p.Config.DatasetsDir, p.Config.Datasets, p.Config.Fetch.Workers, p.Fetcher, p.Metrics, p.Logger)
}

func New(dir string, datasets []domain.Dataset, workers int, fetcher Fetcher, metrics domain.MetricsCollector, logger *zap.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		dir:      dir,
		datasets: datasets,
		workers:  workers,
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "datasets")),
	}
}

func (m *Manager) Datasets() []domain.Dataset {
	return m.datasets
}

func (m *Manager) Path(d domain.Dataset) string {
	return filepath.Join(m.dir, d.FileName())
}

// IsPresent reports whether the named dataset is on disk.
func (m *Manager) IsPresent(name string) bool {
	info, err := os.Stat(filepath.Join(m.dir, name+".dat"))
	return err == nil && info.Mode().IsRegular()
}

// MissingRequired returns the required datasets that are not on disk.
func (m *Manager) MissingRequired() []string {
	var missing []string
	for _, name := range domain.RequiredDatasets {
		if !m.IsPresent(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidateRequired reports whether every required dataset is on disk.
func (m *Manager) ValidateRequired() bool {
	return len(m.MissingRequired()) == 0
}

// Delete removes the file of every configured dataset. Missing files are ignored.
func (m *Manager) Delete() error {
	var errs error
	for _, d := range m.datasets {
		if err := os.Remove(m.Path(d)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("failed to delete %s: %w", d.Name, err))
		}
	}
	return errs
}

// FetchAll downloads every configured dataset concurrently. Each dataset
// succeeds or fails on its own; the result slice follows the configured order.
func (m *Manager) FetchAll(ctx context.Context) []domain.FetchResult {
	results := make([]domain.FetchResult, len(m.datasets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, d := range m.datasets {
		i, d := i, d
		g.Go(func() error {
			results[i] = m.Fetch(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Fetch downloads one dataset and replaces its file.
func (m *Manager) Fetch(ctx context.Context, d domain.Dataset) domain.FetchResult {
	start := time.Now()
	result := domain.FetchResult{
		Dataset: d,
		Path:    m.Path(d),
	}

	m.logger.Debug("fetching dataset",
		zap.String("dataset", d.Name),
		zap.String("url", d.URL))

	data, err := m.fetcher.Get(ctx, d.URL)
	if err == nil {
		err = m.write(result.Path, data)
	}

	result.Bytes = int64(len(data))
	result.Error = err
	result.Duration = time.Since(start)
	result.Completed = time.Now()
	m.metrics.RecordDatasetFetch(result)

	if err != nil {
		m.logger.Error("dataset fetch failed",
			zap.String("dataset", d.Name),
			zap.Error(err))
	} else {
		m.logger.Info("dataset updated",
			zap.String("dataset", d.Name),
			zap.Int64("bytes", result.Bytes),
			zap.Duration("duration", result.Duration))
	}
	return result
}

func (m *Manager) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create datasets directory: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace dataset: %w", err)
	}
	return nil
}
