// Package skills stores per-server markdown usage documents on disk.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"mcpagg/internal/domain"
)

// MaxDocumentSize caps a single skill document at 256 KiB.
const MaxDocumentSize = 256 * 1024

// Store keeps one markdown file per server under a flat directory. File
// names derive from the canonical server name so lookups stay
// case-insensitive.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger.Named("skills")}
}

// Get returns the skill document for a server. A missing document is a
// CodeNotFound error.
func (s *Store) Get(name string) (string, error) {
	path, err := s.pathFor("skills.get", name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.E(domain.CodeNotFound, "skills.get",
				fmt.Sprintf("no skill document for server %q", name), nil)
		}
		return "", fmt.Errorf("read skill document: %w", err)
	}
	return string(data), nil
}

// Set writes the skill document for a server, replacing any previous
// content. Documents over the size cap are rejected.
func (s *Store) Set(name, content string) error {
	const op = "skills.set"

	path, err := s.pathFor(op, name)
	if err != nil {
		return err
	}
	if len(content) > MaxDocumentSize {
		return domain.InvalidConfigError(op,
			fmt.Sprintf("skill document exceeds %d bytes", MaxDocumentSize))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create skills directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write skill document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace skill document: %w", err)
	}
	s.logger.Info("skill document written", zap.String("server", name), zap.Int("bytes", len(content)))
	return nil
}

// Delete removes the skill document for a server. Deleting a missing
// document is a no-op.
func (s *Store) Delete(name string) error {
	path, err := s.pathFor("skills.delete", name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete skill document: %w", err)
	}
	return nil
}

// Exists reports whether a skill document is present.
func (s *Store) Exists(name string) bool {
	path, err := s.pathFor("skills.exists", name)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

func (s *Store) pathFor(op, name string) (string, error) {
	key := domain.CanonicalName(name)
	if key == "" {
		return "", domain.InvalidConfigError(op, "server name is required")
	}
	// Canonical names never contain separators for registered servers,
	// but guard the filesystem anyway.
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", domain.InvalidConfigError(op, fmt.Sprintf("invalid server name %q", name))
	}
	return filepath.Join(s.dir, key+".md"), nil
}
