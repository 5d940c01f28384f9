package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"xray-profile/internal/config"
	"xray-profile/internal/xray"
)

var Module = fx.Provide(NewStore)

// Store persists the engine document at a fixed path. Writes replace the
// file in one rename, so readers see either the old or the new bytes.
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(cfg *config.Config, logger *zap.Logger) *Store {
	return New(cfg.DocumentPath, logger)
}

func New(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With(zap.String("component", "store")),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a document has been saved.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load decodes the saved document. When nothing has been saved yet it
// returns xray.New() and no error.
func (s *Store) Load(opts ...xray.DecodeOption) (*xray.Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no saved document, using defaults", zap.String("path", s.path))
		return xray.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	cfg, err := xray.Decode(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save encodes cfg and atomically replaces the document. On failure the
// previous file is left untouched.
func (s *Store) Save(cfg *xray.Config) error {
	data, err := xray.Encode(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	s.logger.Debug("document saved",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)))
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
