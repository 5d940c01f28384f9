package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xray-profile/internal/config"
	"xray-profile/internal/dataset"
	"xray-profile/internal/domain"
	"xray-profile/internal/metrics"
	"xray-profile/internal/store"
	"xray-profile/internal/subscription"
	"xray-profile/internal/xray"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	return []byte(f.responses[url]), nil
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = body
}

type testEnv struct {
	service *Service
	store   *store.Store
	fetcher *fakeFetcher
	cfg     *config.Config
}

func newTestEnv(t *testing.T, modify func(*config.Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.DatasetsDir = dir
	cfg.DocumentPath = filepath.Join(dir, "config.json")
	cfg.Fetch.CacheTTLSeconds = 0
	if modify != nil {
		modify(cfg)
	}

	logger := zap.NewNop()
	collector := metrics.NewCollector(logger, prometheus.NewRegistry())
	fetcher := &fakeFetcher{responses: map[string]string{}, failures: map[string]error{}}
	converter := subscription.NewLinkConverter()
	st := store.New(cfg.DocumentPath, logger)

	service := NewService(Params{
		Config:        cfg,
		Store:         st,
		Converter:     converter,
		Subscriptions: subscription.New(fetcher, converter, cfg.Fetch.CacheTTL(), cfg.Fetch.Workers, collector, logger),
		Datasets:      dataset.New(cfg.DatasetsDir, cfg.Datasets, 1, fetcher, collector, logger),
		Collector:     collector,
		Logger:        logger,
	})

	return &testEnv{service: service, store: st, fetcher: fetcher, cfg: cfg}
}

func TestService_Init(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.service.Init(false))
	assert.True(t, env.store.Exists())

	require.NoError(t, env.service.EnableMetrics())
	assert.ErrorIs(t, env.service.Init(false), ErrAlreadyInitialized)

	require.NoError(t, env.service.Init(true))
	cfg, err := env.service.Load()
	require.NoError(t, err)
	assert.Equal(t, xray.New(), cfg)
}

func TestService_Show(t *testing.T) {
	env := newTestEnv(t, nil)

	shown, err := env.service.Show()
	require.NoError(t, err)

	expected, err := xray.Encode(xray.New())
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(shown))
	assert.False(t, env.store.Exists(), "showing never writes")
}

func TestService_Metrics(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.service

	_, err := s.MetricsPort()
	assert.ErrorIs(t, err, ErrMetricsDisabled)
	assert.ErrorIs(t, s.SetMetricsPort(9000), ErrMetricsDisabled)

	require.NoError(t, s.EnableMetrics())
	port, err := s.MetricsPort()
	require.NoError(t, err)
	assert.Equal(t, xray.DefaultDokodemoPort, port)

	require.NoError(t, s.SetMetricsPort(9000))
	port, err = s.MetricsPort()
	require.NoError(t, err)
	assert.Equal(t, 9000, port)

	assert.ErrorIs(t, s.SetMetricsPort(0), ErrInvalidPort)
	assert.ErrorIs(t, s.SetMetricsPort(70000), ErrInvalidPort)

	require.NoError(t, s.DisableMetrics())
	_, err = s.MetricsPort()
	assert.ErrorIs(t, err, ErrMetricsDisabled)

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, xray.New(), cfg)
}

func TestService_Socks(t *testing.T) {
	env := newTestEnv(t, nil)

	in, ok, err := env.service.Socks()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, xray.DefaultListen, in.Listen)
	assert.Equal(t, xray.DefaultSocksPort, in.Port)
}

func TestService_Import(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError error
		validate    func(*testing.T, ImportResult, *xray.Config)
	}{
		{
			name: "Links are appended",
			body: "trojan://pw@a.example.com:443#a\nbogus://x\n",
			validate: func(t *testing.T, r ImportResult, cfg *xray.Config) {
				assert.Equal(t, []string{"a"}, r.Tags)
				assert.Equal(t, 1, r.Failed)
				assert.Error(t, r.LinkErrors)
				_, ok := cfg.FindOutbound("a")
				assert.True(t, ok)
				assert.Len(t, cfg.Outbounds, 3)
			},
		},
		{
			name: "Nothing usable leaves the document alone",
			body: "bogus://x",
			validate: func(t *testing.T, r ImportResult, cfg *xray.Config) {
				assert.Empty(t, r.Tags)
				assert.Equal(t, 1, r.Failed)
				assert.Equal(t, xray.New(), cfg)
			},
		},
		{
			name:        "Unreadable body",
			body:        "<html>",
			expectError: subscription.ErrUnreadableBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			result, err := env.service.Import([]byte(tt.body))
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.False(t, env.store.Exists())
				return
			}
			require.NoError(t, err)

			cfg, err := env.service.Load()
			require.NoError(t, err)
			tt.validate(t, result, cfg)
		})
	}
}

func TestService_ImportReplacesSameTag(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.service.Import([]byte("trojan://old@a.example.com:443#a"))
	require.NoError(t, err)
	_, err = env.service.Import([]byte("trojan://new@a.example.com:443#a"))
	require.NoError(t, err)

	cfg, err := env.service.Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Outbounds, 3)
	out, ok := cfg.FindOutbound("a")
	require.True(t, ok)
	assert.Equal(t, "new", out.Settings.(xray.TrojanOutboundSettings).Servers[0].Password)
}

func TestService_ImportKeepsBuiltinOutbounds(t *testing.T) {
	env := newTestEnv(t, nil)

	body := "trojan://pw@a.example.com:443#direct\ntrojan://pw@b.example.com:443#block\ntrojan://pw@c.example.com:443#direct-2"
	result, err := env.service.Import([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"direct-3", "block-2", "direct-2"}, result.Tags)

	// a second import of the same links replaces instead of piling up
	_, err = env.service.Import([]byte(body))
	require.NoError(t, err)

	cfg, err := env.service.Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Outbounds, 5)
	assert.Empty(t, cfg.DuplicateTags())

	direct, ok := cfg.FindOutbound(xray.DirectTag)
	require.True(t, ok)
	assert.Equal(t, xray.ProtocolFreedom, direct.Protocol)
	block, ok := cfg.FindOutbound(xray.BlockTag)
	require.True(t, ok)
	assert.Equal(t, xray.ProtocolBlackhole, block.Protocol)
}

func TestService_Subscribe(t *testing.T) {
	subs := []domain.Subscription{
		{Name: "one", URL: "https://example.com/one"},
		{Name: "two", URL: "https://example.com/two"},
	}
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Subscriptions = subs
	})
	env.fetcher.set(subs[0].URL, "trojan://pw@a.example.com:443#a\ntrojan://pw@b.example.com:443#b")
	env.fetcher.set(subs[1].URL, "trojan://pw@c.example.com:443#c")

	results, err := env.service.Subscribe(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	cfg, err := env.service.Load()
	require.NoError(t, err)
	for _, tag := range []string{"one/a", "one/b", "two/c"} {
		_, ok := cfg.FindOutbound(tag)
		assert.True(t, ok, tag)
	}

	// second refresh: "one" shrinks, "two" fails and keeps its outbounds
	env.fetcher.set(subs[0].URL, "trojan://pw@a.example.com:443#a")
	env.fetcher.failures[subs[1].URL] = errors.New("timeout")

	results, err = env.service.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Error(t, results[1].Err)

	cfg, err = env.service.Load()
	require.NoError(t, err)
	_, ok := cfg.FindOutbound("one/b")
	assert.False(t, ok)
	_, ok = cfg.FindOutbound("one/a")
	assert.True(t, ok)
	_, ok = cfg.FindOutbound("two/c")
	assert.True(t, ok)
	_, ok = cfg.FindOutbound(xray.DirectTag)
	assert.True(t, ok)
}

func TestService_SubscribeKeepsOutboundsOfEmptyRefresh(t *testing.T) {
	subs := []domain.Subscription{
		{Name: "one", URL: "https://example.com/one"},
		{Name: "two", URL: "https://example.com/two"},
	}
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Subscriptions = subs
	})
	env.fetcher.set(subs[0].URL, "trojan://pw@a.example.com:443#a")
	env.fetcher.set(subs[1].URL, "trojan://pw@c.example.com:443#c")

	_, err := env.service.Subscribe(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
	}{
		{name: "Empty body", body: ""},
		{name: "Page without share links", body: "<a href=\"https://example.com/login\">"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.fetcher.set(subs[0].URL, tt.body)
			env.fetcher.set(subs[1].URL, "trojan://pw@d.example.com:443#d")

			results, err := env.service.Subscribe(context.Background())
			require.NoError(t, err)
			assert.ErrorIs(t, results[0].Err, subscription.ErrEmptySubscription)

			cfg, err := env.service.Load()
			require.NoError(t, err)
			_, ok := cfg.FindOutbound("one/a")
			assert.True(t, ok)
			_, ok = cfg.FindOutbound("two/d")
			assert.True(t, ok)
		})
	}

	t.Run("Every subscription empty", func(t *testing.T) {
		env.fetcher.set(subs[0].URL, "")
		env.fetcher.set(subs[1].URL, "")
		before, err := os.ReadFile(env.cfg.DocumentPath)
		require.NoError(t, err)

		_, err = env.service.Subscribe(context.Background())
		assert.Error(t, err)

		after, err := os.ReadFile(env.cfg.DocumentPath)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestService_SubscribeErrors(t *testing.T) {
	t.Run("No subscriptions", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.service.Subscribe(context.Background())
		assert.ErrorIs(t, err, ErrNoSubscriptions)
	})

	t.Run("All subscriptions failed", func(t *testing.T) {
		sub := domain.Subscription{Name: "one", URL: "https://example.com/one"}
		env := newTestEnv(t, func(cfg *config.Config) {
			cfg.Subscriptions = []domain.Subscription{sub}
		})
		env.fetcher.failures[sub.URL] = errors.New("timeout")

		results, err := env.service.Subscribe(context.Background())
		assert.Error(t, err)
		assert.Len(t, results, 1)
		assert.False(t, env.store.Exists())
	})
}

func TestService_Check(t *testing.T) {
	env := newTestEnv(t, nil)

	report, err := env.service.Check()
	require.NoError(t, err)
	assert.Empty(t, report.DuplicateTags)
	assert.Empty(t, report.Dangling)
	assert.Equal(t, []string{"geoip", "geosite"}, report.MissingDatasets)
	assert.False(t, report.OK())

	_, err = env.service.Import([]byte("trojan://pw@a.example.com:443#direct"))
	require.NoError(t, err)
	for _, name := range domain.RequiredDatasets {
		require.NoError(t, os.WriteFile(filepath.Join(env.cfg.DatasetsDir, name+".dat"), []byte("x"), 0644))
	}

	report, err = env.service.Check()
	require.NoError(t, err)
	assert.Empty(t, report.MissingDatasets)
	assert.True(t, report.OK(), "an import with an existing tag replaces it")
}

func TestService_DecodePolicy(t *testing.T) {
	encoded, err := xray.Encode(xray.New())
	require.NoError(t, err)
	document := strings.Replace(string(encoded), `"protocol": "blackhole"`, `"protocol": "wireguard"`, 1)
	require.NotEqual(t, string(encoded), document)

	tests := []struct {
		name        string
		policy      string
		expectError error
	}{
		{name: "Default policy keeps the entry", policy: "default"},
		{name: "Reject policy fails", policy: "reject", expectError: xray.ErrUnknownDiscriminator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *config.Config) {
				cfg.Decode.UnknownProtocol = tt.policy
			})
			require.NoError(t, os.WriteFile(env.cfg.DocumentPath, []byte(document), 0644))

			cfg, err := env.service.Load()
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			out, ok := cfg.FindOutbound(xray.BlockTag)
			require.True(t, ok)
			assert.Equal(t, xray.Protocol("wireguard"), out.Protocol)
		})
	}
}

func TestService_MetricsReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/debug/vars" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"stats":{"inbound":{"entry":{"uplink":10,"downlink":20}},"outbound":{}}}`))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	textfile := filepath.Join(t.TempDir(), "xray.prom")
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Metrics.TextfilePath = textfile
	})

	_, err = env.service.MetricsReport(context.Background())
	assert.ErrorIs(t, err, ErrMetricsDisabled)

	require.NoError(t, env.service.EnableMetrics())
	require.NoError(t, env.service.SetMetricsPort(port))

	report, err := env.service.MetricsReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.Traffic{Uplink: 10, Downlink: 20}, report.Stats.Inbound["entry"])

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "xray_profile_traffic_bytes")
}
