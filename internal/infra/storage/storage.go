// Package storage provides durable persistence for the server registry.
// Two backends are available: a human-readable JSON file and a bbolt
// database. Both guarantee that a reader never observes a torn write.
package storage

import (
	"context"

	"mcpagg/internal/domain"
)

// Persistence is the registry's durability collaborator. Load returns the
// empty set when no prior state exists. Save persists the complete set
// atomically; concurrent saves are serialized, never interleaved.
type Persistence interface {
	Load(ctx context.Context) (domain.RegistryData, error)
	Save(ctx context.Context, data domain.RegistryData) error
}
