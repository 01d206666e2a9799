package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"mcpagg/internal/domain"
)

var (
	registryBucket = []byte("registry")
	registryKey    = []byte("servers")
)

// BoltStore persists the registry in a bbolt database. Bolt transactions
// give the same never-torn guarantee the JSON file gets from rename.
type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

func OpenBoltStore(path string, logger *zap.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure registry dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(registryBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure registry bucket: %w", err)
	}
	return &BoltStore{db: db, logger: logger.Named("registry_db")}, nil
}

func (s *BoltStore) Load(ctx context.Context) (domain.RegistryData, error) {
	if err := ctx.Err(); err != nil {
		return domain.RegistryData{}, err
	}

	data := domain.RegistryData{Version: domain.RegistryDataVersion}
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(registryBucket).Get(registryKey)
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, &data)
	})
	if err != nil {
		return domain.RegistryData{}, fmt.Errorf("load registry: %w", err)
	}
	if data.Version == "" {
		data.Version = domain.RegistryDataVersion
	}
	return data, nil
}

func (s *BoltStore) Save(ctx context.Context, data domain.RegistryData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data.Version == "" {
		data.Version = domain.RegistryDataVersion
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(registryBucket).Put(registryKey, raw)
	}); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}

	s.logger.Debug("registry saved", zap.Int("servers", len(data.Servers)))
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
