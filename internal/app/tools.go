package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpagg/internal/domain"
)

const (
	gatewayName    = "mcpagg"
	gatewayVersion = "0.1.0"
)

// NewGatewayServer builds the MCP server exposing the aggregation
// surface. Consumer tools are always present; admin tools are included
// unless adminTools is false.
func NewGatewayServer(service *Service, adminTools bool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    gatewayName,
		Version: gatewayVersion,
	}, &mcp.ServerOptions{HasTools: true})

	registerConsumerTools(server, service)
	if adminTools {
		registerAdminTools(server, service)
	}
	return server
}

func registerConsumerTools(server *mcp.Server, service *Service) {
	server.AddTool(&mcp.Tool{
		Name:        "list_services",
		Description: "List all registered services with their tool catalogs. Services that cannot be reached appear with available=false.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rows, err := service.ListServices(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(rows)
	})

	server.AddTool(&mcp.Tool{
		Name:        "get_service_details",
		Description: "Get one service's full tool catalog including input schemas.",
		InputSchema: nameOnlySchema("Name of the registered service."),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeNameParams(req)
		if err != nil {
			return errorResult(err), nil
		}
		details, err := service.GetServiceDetails(ctx, params.Name)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(details)
	})

	server.AddTool(&mcp.Tool{
		Name:        "get_service_skill",
		Description: "Get the markdown skill document describing how to use a service effectively.",
		InputSchema: nameOnlySchema("Name of the registered service."),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeNameParams(req)
		if err != nil {
			return errorResult(err), nil
		}
		doc, err := service.GetServiceSkill(params.Name)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(doc), nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "invoke_tool",
		Description: "Invoke a tool on a registered downstream service and return its text output.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"service": map[string]any{
					"type":        "string",
					"description": "Name of the registered service.",
				},
				"tool": map[string]any{
					"type":        "string",
					"description": "Name of the tool to invoke, as listed by get_service_details.",
				},
				"arguments": map[string]any{
					"type":        "object",
					"description": "Arguments for the tool, matching its input schema.",
				},
			},
			"required": []string{"service", "tool"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params struct {
			Service   string          `json:"service"`
			Tool      string          `json:"tool"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := decodeParams(req, &params); err != nil {
			return errorResult(err), nil
		}
		text, err := service.InvokeTool(ctx, params.Service, params.Tool, string(params.Arguments))
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(text), nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "enable_service",
		Description: "Enable a previously disabled service.",
		InputSchema: nameOnlySchema("Name of the registered service."),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeNameParams(req)
		if err != nil {
			return errorResult(err), nil
		}
		if err := service.EnableService(ctx, params.Name); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("Service %q enabled.", params.Name)), nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "disable_service",
		Description: "Disable a service without removing it. Its live connection is closed.",
		InputSchema: nameOnlySchema("Name of the registered service."),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeNameParams(req)
		if err != nil {
			return errorResult(err), nil
		}
		if err := service.DisableService(ctx, params.Name); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("Service %q disabled.", params.Name)), nil
	})
}

func registerAdminTools(server *mcp.Server, service *Service) {
	server.AddTool(&mcp.Tool{
		Name:        "register_server",
		Description: "Register a new downstream MCP server with the gateway.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Unique service name. Lookups are case-insensitive.",
				},
				"displayName": map[string]any{
					"type": "string",
				},
				"description": map[string]any{
					"type": "string",
				},
				"transport": map[string]any{
					"type":        "string",
					"description": "Transport type: stdio or http.",
				},
				"command": map[string]any{
					"type":        "string",
					"description": "Executable to launch for stdio transport.",
				},
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Arguments for the stdio command.",
				},
				"env": map[string]any{
					"type":        "object",
					"description": "Extra environment variables for the stdio command.",
				},
				"url": map[string]any{
					"type":        "string",
					"description": "Endpoint URL for http transport.",
				},
			},
			"required": []string{"name", "transport"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params struct {
			Name        string            `json:"name"`
			DisplayName string            `json:"displayName"`
			Description string            `json:"description"`
			Transport   string            `json:"transport"`
			Command     string            `json:"command"`
			Args        []string          `json:"args"`
			Env         map[string]string `json:"env"`
			URL         string            `json:"url"`
		}
		if err := decodeParams(req, &params); err != nil {
			return errorResult(err), nil
		}
		err := service.RegisterServer(ctx, domain.RegisteredServer{
			Name:        params.Name,
			DisplayName: params.DisplayName,
			Description: params.Description,
			Enabled:     true,
			Transport: domain.TransportConfig{
				Type:    domain.TransportType(params.Transport),
				Command: params.Command,
				Args:    params.Args,
				Env:     params.Env,
				URL:     params.URL,
			},
		})
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("Service %q registered.", params.Name)), nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "unregister_server",
		Description: "Remove a service from the gateway, closing its connection and deleting its skill document.",
		InputSchema: nameOnlySchema("Name of the service to remove."),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeNameParams(req)
		if err != nil {
			return errorResult(err), nil
		}
		if err := service.UnregisterServer(ctx, params.Name); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("Service %q unregistered.", params.Name)), nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "update_skill",
		Description: "Create or replace the markdown skill document for a service.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name of the registered service.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Markdown document content, at most 256 KiB.",
				},
			},
			"required": []string{"name", "content"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := decodeParams(req, &params); err != nil {
			return errorResult(err), nil
		}
		if err := service.UpdateSkill(ctx, params.Name, params.Content); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("Skill document for %q updated.", params.Name)), nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "regenerate_summary",
		Description: "Regenerate the AI summary for a service from its current metadata and tool catalog.",
		InputSchema: nameOnlySchema("Name of the registered service."),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := decodeNameParams(req)
		if err != nil {
			return errorResult(err), nil
		}
		if err := service.RegenerateSummary(ctx, params.Name); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("Summary for %q regenerated.", params.Name)), nil
	})
}

type nameParams struct {
	Name string `json:"name"`
}

func nameOnlySchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"name"},
	}
}

func decodeNameParams(req *mcp.CallToolRequest) (nameParams, error) {
	var params nameParams
	if err := decodeParams(req, &params); err != nil {
		return nameParams{}, err
	}
	if params.Name == "" {
		return nameParams{}, fmt.Errorf("name is required")
	}
	return params, nil
}

func decodeParams(req *mcp.CallToolRequest, out any) error {
	args := req.Params.Arguments
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(string(data)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
