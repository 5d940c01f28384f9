package xray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnableMetrics(t *testing.T) {
	cfg := New()
	cfg.EnableMetrics()

	require.NotNil(t, cfg.Stats)
	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, DefaultMetricsTag, cfg.Metrics.Tag)
	require.NotNil(t, cfg.Policy)
	assert.Equal(t, AllStatsEnabled(), cfg.Policy.System)

	in, ok := cfg.FindInbound(MetricsInboundTag)
	require.True(t, ok)
	assert.Equal(t, ProtocolDokodemo, in.Protocol)
	assert.Equal(t, DefaultDokodemoPort, in.Port)

	require.NotEmpty(t, cfg.Routing.Rules)
	head := cfg.Routing.Rules[0]
	assert.Equal(t, MetricsRuleTag, head.RuleTag)
	assert.Equal(t, []string{MetricsInboundTag}, head.InboundTag)
	assert.Equal(t, DefaultMetricsTag, head.OutboundTag)

	port, ok := cfg.FindMetricsPort()
	require.True(t, ok)
	assert.Equal(t, DefaultDokodemoPort, port)
	assert.True(t, cfg.MetricsEnabled())
	assert.Empty(t, cfg.DanglingReferences())
}

func TestEnableMetrics_Idempotent(t *testing.T) {
	once := New()
	once.EnableMetrics()

	twice := New()
	twice.EnableMetrics()
	twice.EnableMetrics()

	assert.Equal(t, once, twice)
	assert.Len(t, twice.Inbounds, 2)
}

func TestEnableMetrics_RepointsStaleRule(t *testing.T) {
	cfg := New()
	stale := NewRule(MetricsRuleTag)
	stale.InboundTag = []string{"old-api"}
	stale.RouteToOutbound("old-metrics")
	cfg.Routing.Rules = append(cfg.Routing.Rules, stale)

	cfg.EnableMetrics()
	cfg.EnableMetrics()

	count := 0
	for _, rule := range cfg.Routing.Rules {
		if rule.RuleTag == MetricsRuleTag {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, cfg.Routing.Rules, len(New().Routing.Rules)+1)

	head := cfg.Routing.Rules[0]
	assert.Equal(t, MetricsRuleTag, head.RuleTag)
	assert.Equal(t, DefaultMetricsTag, head.OutboundTag)
	assert.Equal(t, []string{MetricsInboundTag}, head.InboundTag)

	rule, ok := cfg.FindRule(MetricsRuleTag)
	require.True(t, ok)
	assert.Equal(t, DefaultMetricsTag, rule.OutboundTag)
	assert.True(t, cfg.MetricsEnabled())
}

func TestEnableMetrics_KeepsCustomTag(t *testing.T) {
	cfg := New()
	cfg.Metrics = &Metrics{Tag: "stats-out"}
	cfg.EnableMetrics()

	assert.Equal(t, "stats-out", cfg.Metrics.Tag)
	assert.Equal(t, "stats-out", cfg.Routing.Rules[0].OutboundTag)

	port, ok := cfg.FindMetricsPort()
	require.True(t, ok)
	assert.Equal(t, DefaultDokodemoPort, port)
}

func TestDisableMetrics(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() *Config
		validate func(*testing.T, *Config)
	}{
		{
			name: "Inverse of enable",
			setup: func() *Config {
				cfg := New()
				cfg.EnableMetrics()
				return cfg
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, New(), cfg)
			},
		},
		{
			name:  "No-op when never enabled",
			setup: New,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, New(), cfg)
			},
		},
		{
			name: "Empty policy is dropped",
			setup: func() *Config {
				cfg := New()
				cfg.Policy = &Policy{}
				cfg.EnableMetrics()
				return cfg
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Nil(t, cfg.Policy)
			},
		},
		{
			name: "Policy levels survive",
			setup: func() *Config {
				cfg := New()
				cfg.EnableMetrics()
				cfg.Policy.Levels = map[string]PolicyLevel{"0": {ConnIdle: 300}}
				return cfg
			},
			validate: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Policy)
				assert.Nil(t, cfg.Policy.System)
				assert.Equal(t, 300, cfg.Policy.Levels["0"].ConnIdle)
			},
		},
		{
			name: "Removes every rule and inbound wired to the metrics tag",
			setup: func() *Config {
				cfg := New()
				cfg.EnableMetrics()

				extra := NewDokodemoInbound()
				extra.Tag = "metrics-api-2"
				extra.Port = 4434
				cfg.Inbounds = append(cfg.Inbounds, extra)

				rule := NewRule("metrics-rule-2")
				rule.InboundTag = []string{"metrics-api-2"}
				rule.RouteToOutbound(DefaultMetricsTag)
				cfg.Routing.Rules = append(cfg.Routing.Rules, rule)
				return cfg
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.Inbounds, 1)
				assert.Len(t, cfg.Routing.Rules, 3)
				_, ok := cfg.FindInbound("metrics-api-2")
				assert.False(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.setup()

			cfg.DisableMetrics()
			assert.Nil(t, cfg.Stats)
			assert.Nil(t, cfg.Metrics)
			assert.False(t, cfg.MetricsEnabled())
			_, ok := cfg.FindMetricsPort()
			assert.False(t, ok)
			tt.validate(t, cfg)

			snapshot, err := Encode(cfg)
			require.NoError(t, err)
			cfg.DisableMetrics()
			again, err := Encode(cfg)
			require.NoError(t, err)
			assert.Equal(t, string(snapshot), string(again))
		})
	}
}

func TestMetrics_SurviveRoundTrip(t *testing.T) {
	cfg := New()
	cfg.EnableMetrics()

	data, err := Encode(cfg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, decoded.MetricsEnabled())

	port, ok := decoded.FindMetricsPort()
	require.True(t, ok)
	assert.Equal(t, DefaultDokodemoPort, port)
}

func TestSetMetricsPort(t *testing.T) {
	cfg := New()
	assert.False(t, cfg.SetMetricsPort(9000))

	cfg.EnableMetrics()
	require.True(t, cfg.SetMetricsPort(9000))

	port, ok := cfg.FindMetricsPort()
	require.True(t, ok)
	assert.Equal(t, 9000, port)
}
