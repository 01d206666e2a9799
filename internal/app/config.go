package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mcpagg/internal/infra/summary"
)

// Persistence backends for the server registry.
const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// Defaults applied when the config file omits a field or no config file
// is given at all.
const (
	DefaultDataDir              = "data"
	DefaultIndexCacheTTLSeconds = 300
	DefaultIdleTimeoutSeconds   = 1800
	DefaultToolTimeoutSeconds   = 30
	DefaultHTTPListenAddress    = "127.0.0.1:8390"
)

// Config is the normalized runtime configuration.
type Config struct {
	DataDir         string
	RegistryBackend string
	RegistryPath    string
	SkillsDir       string

	IndexCacheTTL time.Duration
	IdleTimeout   time.Duration
	ToolTimeout   time.Duration

	WatchRegistry bool

	HTTPListenAddress    string
	MetricsListenAddress string

	AI summary.Config
}

type rawConfig struct {
	DataDir         string `mapstructure:"dataDir"`
	RegistryBackend string `mapstructure:"registryBackend"`
	RegistryPath    string `mapstructure:"registryPath"`
	SkillsDir       string `mapstructure:"skillsDir"`

	IndexCacheTTLSeconds int `mapstructure:"indexCacheTTLSeconds"`
	IdleTimeoutSeconds   int `mapstructure:"idleTimeoutSeconds"`
	ToolTimeoutSeconds   int `mapstructure:"toolTimeoutSeconds"`

	WatchRegistry bool `mapstructure:"watchRegistry"`

	HTTP          rawHTTPConfig          `mapstructure:"http"`
	Observability rawObservabilityConfig `mapstructure:"observability"`
	AI            rawAIConfig            `mapstructure:"ai"`
}

type rawHTTPConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type rawAIConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"apiKey"`
	APIKeyEnvVar   string `mapstructure:"apiKeyEnvVar"`
	BaseURL        string `mapstructure:"baseURL"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("dataDir", DefaultDataDir)
	v.SetDefault("registryBackend", BackendJSON)
	v.SetDefault("indexCacheTTLSeconds", DefaultIndexCacheTTLSeconds)
	v.SetDefault("idleTimeoutSeconds", DefaultIdleTimeoutSeconds)
	v.SetDefault("toolTimeoutSeconds", DefaultToolTimeoutSeconds)
	v.SetDefault("http.listenAddress", DefaultHTTPListenAddress)
	return v
}

// LoadConfig reads and normalizes the YAML config at path. An empty path
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	v := newConfigViper()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return normalizeConfig(raw)
}

func normalizeConfig(raw rawConfig) (Config, error) {
	var errs []string

	dataDir := strings.TrimSpace(raw.DataDir)
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	backend := strings.ToLower(strings.TrimSpace(raw.RegistryBackend))
	if backend == "" {
		backend = BackendJSON
	}
	if backend != BackendJSON && backend != BackendBolt {
		errs = append(errs, fmt.Sprintf("registryBackend must be %s or %s", BackendJSON, BackendBolt))
	}

	registryPath := strings.TrimSpace(raw.RegistryPath)
	if registryPath == "" {
		switch backend {
		case BackendBolt:
			registryPath = filepath.Join(dataDir, "registry.db")
		default:
			registryPath = filepath.Join(dataDir, "registry.json")
		}
	}

	skillsDir := strings.TrimSpace(raw.SkillsDir)
	if skillsDir == "" {
		skillsDir = filepath.Join(dataDir, "skills")
	}

	if raw.IndexCacheTTLSeconds <= 0 {
		errs = append(errs, "indexCacheTTLSeconds must be > 0")
	}
	if raw.IdleTimeoutSeconds <= 0 {
		errs = append(errs, "idleTimeoutSeconds must be > 0")
	}
	if raw.ToolTimeoutSeconds <= 0 {
		errs = append(errs, "toolTimeoutSeconds must be > 0")
	}

	if raw.AI.Enabled && strings.TrimSpace(raw.AI.Model) == "" {
		errs = append(errs, "ai.model is required when ai.enabled is true")
	}
	if raw.WatchRegistry && backend != BackendJSON {
		errs = append(errs, "watchRegistry requires the json registry backend")
	}

	if len(errs) > 0 {
		return Config{}, errors.New(strings.Join(errs, "; "))
	}

	httpAddr := strings.TrimSpace(raw.HTTP.ListenAddress)
	if httpAddr == "" {
		httpAddr = DefaultHTTPListenAddress
	}

	return Config{
		DataDir:              dataDir,
		RegistryBackend:      backend,
		RegistryPath:         registryPath,
		SkillsDir:            skillsDir,
		IndexCacheTTL:        time.Duration(raw.IndexCacheTTLSeconds) * time.Second,
		IdleTimeout:          time.Duration(raw.IdleTimeoutSeconds) * time.Second,
		ToolTimeout:          time.Duration(raw.ToolTimeoutSeconds) * time.Second,
		WatchRegistry:        raw.WatchRegistry,
		HTTPListenAddress:    httpAddr,
		MetricsListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
		AI: summary.Config{
			Enabled:      raw.AI.Enabled,
			Provider:     raw.AI.Provider,
			Model:        raw.AI.Model,
			APIKey:       raw.AI.APIKey,
			APIKeyEnvVar: raw.AI.APIKeyEnvVar,
			BaseURL:      raw.AI.BaseURL,
			Timeout:      time.Duration(raw.AI.TimeoutSeconds) * time.Second,
		},
	}, nil
}
