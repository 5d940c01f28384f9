package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray-profile/internal/domain"
	"xray-profile/internal/xray"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name        string
		configJSON  string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name: "Valid config",
			configJSON: `{
				"data_dir": "{{dir}}/data",
				"fetch": {"workers": 2, "timeout_seconds": 10},
				"decode": {"unknown_protocol": "reject"},
				"subscriptions": [{"name": "home", "url": "https://sub.example.com/link"}],
				"datasets": [{"type": "ip", "name": "geoip", "url": "https://example.com/geoip.dat"}]
			}`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2, cfg.Fetch.Workers)
				assert.Equal(t, 3, cfg.Fetch.Retries)
				assert.Equal(t, xray.PolicyReject, cfg.Decode.Policy())
				assert.Equal(t, filepath.Join(cfg.DataDir, "config.json"), cfg.DocumentPath)
				assert.Equal(t, cfg.DataDir, cfg.DatasetsDir)
				require.Len(t, cfg.Datasets, 1)
				assert.Equal(t, domain.DatasetID("geoip"), cfg.Datasets[0].ID)
				assert.DirExists(t, cfg.DataDir)
			},
		},
		{
			name:       "Empty file keeps defaults",
			configJSON: `{"data_dir": "{{dir}}/data"}`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.Datasets, 2)
				assert.Equal(t, xray.PolicyUseDefault, cfg.Decode.Policy())
				assert.Equal(t, 4, cfg.Fetch.Workers)
				assert.Equal(t, "@every 6h", cfg.Refresh.Schedule)
			},
		},
		{
			name:        "Invalid refresh schedule",
			configJSON:  `{"data_dir": "{{dir}}/data", "refresh": {"schedule": "every day"}}`,
			expectError: true,
		},
		{
			name:        "Unknown policy",
			configJSON:  `{"data_dir": "{{dir}}/data", "decode": {"unknown_protocol": "ignore"}}`,
			expectError: true,
		},
		{
			name:        "Invalid worker count",
			configJSON:  `{"data_dir": "{{dir}}/data", "fetch": {"workers": 0}}`,
			expectError: true,
		},
		{
			name:        "Dataset name with a path separator",
			configJSON:  `{"data_dir": "{{dir}}/data", "datasets": [{"type": "ip", "name": "../geoip", "url": "https://example.com/a.dat"}]}`,
			expectError: true,
		},
		{
			name:        "Subscription without URL",
			configJSON:  `{"data_dir": "{{dir}}/data", "subscriptions": [{"name": "home"}]}`,
			expectError: true,
		},
		{
			name:        "Malformed JSON",
			configJSON:  `{"data_dir": `,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "settings.json")
			content := []byte(strings.ReplaceAll(tt.configJSON, "{{dir}}", filepath.ToSlash(tmpDir)))
			require.NoError(t, os.WriteFile(configPath, content, 0644))

			t.Setenv("CONFIG_PATH", configPath)

			cfg, err := NewConfig()
			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestNewConfig_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.json"))

	_, err := NewConfig()
	assert.Error(t, err)
}

func TestNewConfig_MissingDefaultFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "config.json"), cfg.DocumentPath)
	assert.Len(t, cfg.Datasets, 2)
}
