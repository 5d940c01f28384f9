package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"

	"xray-profile/internal/domain"
	"xray-profile/internal/xray"
)

const defaultConfigPath = "settings.json"

var Module = fx.Provide(NewConfig)

var validate *validator.Validate

type Config struct {
	DataDir       string                `json:"data_dir" validate:"required,dir"`
	DocumentPath  string                `json:"document_path" validate:"required"`
	DatasetsDir   string                `json:"datasets_dir" validate:"required,dir"`
	Datasets      []domain.Dataset      `json:"datasets" validate:"dive"`
	Subscriptions []domain.Subscription `json:"subscriptions" validate:"dive"`
	Fetch         Fetch                 `json:"fetch"`
	Decode        Decode                `json:"decode"`
	Metrics       Metrics               `json:"metrics"`
	Refresh       Refresh               `json:"refresh"`
	LogLevel      string                `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type Fetch struct {
	Workers         int    `json:"workers" validate:"min=1,max=32"`
	TimeoutSeconds  int    `json:"timeout_seconds" validate:"min=1,max=600"`
	Retries         int    `json:"retries" validate:"min=0,max=10"`
	MaxBytes        int64  `json:"max_bytes" validate:"min=1"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds" validate:"min=0"`
	UserAgent       string `json:"user_agent"`
}

func (f Fetch) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f Fetch) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLSeconds) * time.Second
}

type Decode struct {
	UnknownProtocol string `json:"unknown_protocol" validate:"policy"`
}

// Policy returns the parsed policy; validation guarantees the spelling is known.
func (d Decode) Policy() xray.UnknownProtocolPolicy {
	p, _ := xray.ParsePolicy(d.UnknownProtocol)
	return p
}

// Refresh controls the watch command. Schedule is a cron expression with
// optional seconds, or a descriptor such as "@every 6h".
type Refresh struct {
	Schedule string `json:"schedule" validate:"required,cronspec"`
}

type Metrics struct {
	// TextfilePath receives the collector in node-exporter textfile format. Empty disables the export.
	TextfilePath string `json:"textfile_path"`
}

// Default returns the settings used when no settings file exists.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		Datasets: domain.DefaultDatasets(),
		Fetch: Fetch{
			Workers:         4,
			TimeoutSeconds:  30,
			Retries:         3,
			MaxBytes:        32 << 20,
			CacheTTLSeconds: 300,
			UserAgent:       "xray-profile",
		},
		Decode:  Decode{UnknownProtocol: "default"},
		Refresh: Refresh{Schedule: "@every 6h"},
	}
}

// NewConfig loads settings from CONFIG_PATH (settings.json by default).
// A missing default file yields Default(); a missing explicit file is an error.
func NewConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	cfg := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	applyDefaults(cfg)

	// Create required directories if they don't exist
	if err := ensureDirectories(cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// applyDefaults fills paths derived from DataDir and dataset IDs derived from names.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.DocumentPath == "" {
		cfg.DocumentPath = filepath.Join(cfg.DataDir, "config.json")
	}
	if cfg.DatasetsDir == "" {
		cfg.DatasetsDir = cfg.DataDir
	}
	for i := range cfg.Datasets {
		cfg.Datasets[i].ID = domain.DatasetID(cfg.Datasets[i].Name)
	}
}

// ensureDirectories creates required directories if they don't exist
func ensureDirectories(cfg *Config) error {
	dirs := []struct {
		path string
		name string
	}{
		{cfg.DataDir, "data"},
		{cfg.DatasetsDir, "datasets"},
		{filepath.Dir(cfg.DocumentPath), "document"},
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s directory at %s: %w",
				dir.name, dir.path, err)
		}
	}

	return nil
}

// formatValidationErrors formats validation errors into a user-friendly error message
func formatValidationErrors(errors validator.ValidationErrors) error {
	var errMsgs []string
	for _, err := range errors {
		errMsgs = append(errMsgs, fmt.Sprintf(
			"field '%s' failed validation: %s",
			err.Namespace(),
			err.Tag(),
		))
	}
	return fmt.Errorf("validation errors: %v", errMsgs)
}
