package domain

import (
	"strings"
	"time"
)

// TransportType identifies how the gateway reaches a downstream server.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

// TransportConfig describes one transport variant. Command/Args/Env apply
// to stdio servers, URL to streamable HTTP servers.
type TransportConfig struct {
	Type    TransportType     `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// RegisteredServer is the durable descriptor for one downstream server.
// The registry owns these exclusively; other components receive snapshots.
type RegisteredServer struct {
	Name         string          `json:"name"`
	DisplayName  string          `json:"displayName,omitempty"`
	Description  string          `json:"description,omitempty"`
	Transport    TransportConfig `json:"transport"`
	Enabled      bool            `json:"enabled"`
	RegisteredAt time.Time       `json:"registeredAt"`
	HasSkillDoc  bool            `json:"hasSkillDocument"`
	AISummary    string          `json:"aiSummary,omitempty"`
}

// RegistryData is the full persisted descriptor set.
type RegistryData struct {
	Version string             `json:"version"`
	Servers []RegisteredServer `json:"servers"`
}

const RegistryDataVersion = "1.0"

// CanonicalName is the case-folding rule for all tables keyed by server
// name. Every map in the registry, connection manager, and tool index
// stores keys folded through this function.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
