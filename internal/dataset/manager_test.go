package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xray-profile/internal/domain"
	"xray-profile/internal/metrics"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	failures  map[string]error
	calls     []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	return f.responses[url], nil
}

func newTestManager(t *testing.T, datasets []domain.Dataset, fetcher Fetcher) *Manager {
	t.Helper()
	collector := metrics.NewCollector(zap.NewNop(), prometheus.NewRegistry())
	return New(t.TempDir(), datasets, 2, fetcher, collector, zap.NewNop())
}

func TestManager_FetchAll(t *testing.T) {
	geoip := domain.NewDataset(domain.DatasetIP, "geoip", "https://example.com/geoip.dat")
	geosite := domain.NewDataset(domain.DatasetDomain, "geosite", "https://example.com/geosite.dat")
	extra := domain.NewDataset(domain.DatasetDomain, "extra", "https://example.com/extra.dat")

	fetcher := &fakeFetcher{
		responses: map[string][]byte{
			geoip.URL:   []byte("ip-data"),
			geosite.URL: []byte("site-data"),
		},
		failures: map[string]error{
			extra.URL: errors.New("connection refused"),
		},
	}
	m := newTestManager(t, []domain.Dataset{geoip, extra, geosite}, fetcher)

	results := m.FetchAll(context.Background())

	require.Len(t, results, 3)
	assert.Equal(t, "geoip", results[0].Dataset.Name)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, int64(len("ip-data")), results[0].Bytes)
	assert.Error(t, results[1].Error, "a failed dataset is reported on its own")
	assert.Equal(t, "Failed", results[1].Status())
	assert.NoError(t, results[2].Error, "a failed sibling does not abort the others")

	assert.True(t, m.IsPresent("geoip"))
	assert.True(t, m.IsPresent("geosite"))
	assert.False(t, m.IsPresent("extra"))
	assert.True(t, m.ValidateRequired())
	assert.Len(t, fetcher.calls, 3)

	data, err := os.ReadFile(m.Path(geosite))
	require.NoError(t, err)
	assert.Equal(t, "site-data", string(data))
}

func TestManager_RequiredDatasets(t *testing.T) {
	geoip := domain.NewDataset(domain.DatasetIP, "geoip", "https://example.com/geoip.dat")
	m := newTestManager(t, []domain.Dataset{geoip}, &fakeFetcher{})

	assert.False(t, m.ValidateRequired())
	assert.Equal(t, []string{"geoip", "geosite"}, m.MissingRequired())

	require.NoError(t, os.WriteFile(m.Path(geoip), []byte("x"), 0644))
	assert.Equal(t, []string{"geosite"}, m.MissingRequired())
}

func TestManager_Delete(t *testing.T) {
	geoip := domain.NewDataset(domain.DatasetIP, "geoip", "https://example.com/geoip.dat")
	geosite := domain.NewDataset(domain.DatasetDomain, "geosite", "https://example.com/geosite.dat")
	m := newTestManager(t, []domain.Dataset{geoip, geosite}, &fakeFetcher{})

	require.NoError(t, os.WriteFile(m.Path(geoip), []byte("x"), 0644))
	require.NoError(t, m.Delete())
	assert.False(t, m.IsPresent("geoip"))

	assert.NoError(t, m.Delete(), "deleting absent files is not an error")
}

func TestManager_DeleteCombinesErrors(t *testing.T) {
	geoip := domain.NewDataset(domain.DatasetIP, "geoip", "https://example.com/geoip.dat")
	geosite := domain.NewDataset(domain.DatasetDomain, "geosite", "https://example.com/geosite.dat")
	m := newTestManager(t, []domain.Dataset{geoip, geosite}, &fakeFetcher{})

	for _, d := range []domain.Dataset{geoip, geosite} {
		require.NoError(t, os.Mkdir(m.Path(d), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(m.Path(d), "keep"), []byte("x"), 0644))
	}

	errs := multierr.Errors(m.Delete())
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "failed to delete geoip")
	assert.Contains(t, errs[1].Error(), "failed to delete geosite")
}

func TestManager_IsPresentIgnoresDirectories(t *testing.T) {
	m := newTestManager(t, nil, &fakeFetcher{})
	require.NoError(t, os.Mkdir(filepath.Join(m.dir, "geoip.dat"), 0755))
	assert.False(t, m.IsPresent("geoip"))
}
