// Package summary generates short AI descriptions of downstream servers
// from their metadata and tool catalogs. Generation is best-effort; the
// gateway works fine without it.
package summary

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"mcpagg/internal/domain"
)

const defaultGenerateTimeout = 30 * time.Second

// Config selects and authenticates the chat model used for summaries.
type Config struct {
	Enabled      bool
	Provider     string
	Model        string
	APIKey       string
	APIKeyEnvVar string
	BaseURL      string
	Timeout      time.Duration
}

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Generator produces one-paragraph service summaries.
type Generator struct {
	model   chatModel
	timeout time.Duration
	logger  *zap.Logger
}

// NewGenerator builds a generator from config, or returns nil when
// summaries are disabled. Callers treat a nil generator as "feature off".
func NewGenerator(ctx context.Context, config Config, logger *zap.Logger) (*Generator, error) {
	if !config.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	chat, err := initializeModel(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("initialize summary model: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	return &Generator{
		model:   chat,
		timeout: timeout,
		logger:  logger.Named("summary"),
	}, nil
}

func initializeModel(ctx context.Context, config Config) (model.ToolCallingChatModel, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		envVar := strings.TrimSpace(config.APIKeyEnvVar)
		if envVar == "" {
			return nil, fmt.Errorf("API key is required: set ai.apiKey or ai.apiKeyEnvVar")
		}
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in env var %s", envVar)
		}
	}

	switch config.Provider {
	case "openai", "":
		cfg := &openai.ChatModelConfig{
			Model:  config.Model,
			APIKey: apiKey,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		return openai.NewChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// Generate returns a short summary of the server based on its metadata
// and tool catalog. The call is bounded by the generator's own timeout
// regardless of the caller's context.
func (g *Generator) Generate(ctx context.Context, srv domain.RegisteredServer, tools []domain.ToolSummary) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(buildPrompt(srv, tools)),
	}

	started := time.Now()
	response, err := g.model.Generate(genCtx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM generate: %w", err)
	}
	g.logger.Info("summary generated",
		zap.String("server", srv.Name),
		zap.Duration("duration", time.Since(started)))

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return text, nil
}

// buildPrompt renders the server metadata and catalog into the user
// message.
func buildPrompt(srv domain.RegisteredServer, tools []domain.ToolSummary) string {
	var sb strings.Builder
	sb.WriteString("Service name: ")
	sb.WriteString(srv.Name)
	sb.WriteString("\n")
	if srv.DisplayName != "" {
		sb.WriteString("Display name: ")
		sb.WriteString(srv.DisplayName)
		sb.WriteString("\n")
	}
	if srv.Description != "" {
		sb.WriteString("Description: ")
		sb.WriteString(srv.Description)
		sb.WriteString("\n")
	}

	if len(tools) == 0 {
		sb.WriteString("\nThe service currently exposes no tools.\n")
	} else {
		sb.WriteString("\nTools:\n")
		for _, t := range tools {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		}
	}

	sb.WriteString("\nWrite the summary now.")
	return sb.String()
}

const summarySystemPrompt = `You are a technical writer producing catalog entries for an internal service directory. Given a service's metadata and its tool list, write a summary of two to three sentences describing what the service does and when a caller should reach for it.

Output only the summary text. Do not use headings, lists, or markdown formatting.`
