package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
)

// JSONFile persists the registry as a pretty-printed JSON document.
// Writes go through a temp file followed by a rename.
type JSONFile struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

func NewJSONFile(path string, logger *zap.Logger) *JSONFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFile{
		path:   path,
		logger: logger.Named("registry_file"),
	}
}

func (f *JSONFile) Load(ctx context.Context) (domain.RegistryData, error) {
	if err := ctx.Err(); err != nil {
		return domain.RegistryData{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.logger.Info("registry file not found, starting empty", zap.String("path", f.path))
			return domain.RegistryData{Version: domain.RegistryDataVersion}, nil
		}
		return domain.RegistryData{}, fmt.Errorf("read registry file: %w", err)
	}

	var data domain.RegistryData
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.RegistryData{}, fmt.Errorf("decode registry file: %w", err)
	}
	if data.Version == "" {
		data.Version = domain.RegistryDataVersion
	}
	return data, nil
}

func (f *JSONFile) Save(ctx context.Context, data domain.RegistryData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data.Version == "" {
		data.Version = domain.RegistryDataVersion
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure registry dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace registry file: %w", err)
	}

	f.logger.Debug("registry saved", zap.String("path", f.path), zap.Int("servers", len(data.Servers)))
	return nil
}

// Path returns the backing file path, used by the change watcher.
func (f *JSONFile) Path() string {
	return f.path
}
