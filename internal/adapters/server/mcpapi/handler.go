// Package mcpapi provides a stateless MCP streamable-HTTP adapter exposing
// the activity, reference, and todo operations as agent tools.
package mcpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/workz/internal/adapters/server/common"
	"github.com/hylla/workz/internal/app"
	"github.com/hylla/workz/internal/auth"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds the MCP adapter. Tool calls execute as the configured
// agent principal; the MCP transport carries no browser session.
func NewHandler(cfg Config, agent auth.Principal, activity common.ActivityService, references common.ReferenceService, todos common.TodoService) (*Handler, error) {
	if activity == nil || references == nil || todos == nil {
		return nil, fmt.Errorf("activity, reference, and todo services are required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerActivityTools(mcpSrv, agent, activity)
	registerReferenceTools(mcpSrv, agent, references)
	registerTodoTools(mcpSrv, agent, todos)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "workz"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerActivityTools registers the `workz.list_history` and
// `workz.add_comment` tools.
func registerActivityTools(srv *mcpserver.MCPServer, agent auth.Principal, activity common.ActivityService) {
	srv.AddTool(
		mcp.NewTool(
			"workz.list_history",
			mcp.WithDescription("Return the activity feed for one todo: change-log entries merged with comments, newest first."),
			mcp.WithString("todo_id", mcp.Required(), mcp.Description("Todo record identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			todoID, err := req.RequireString("todo_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			items, err := activity.ListHistory(ctx, agent, todoID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"items": items})
			if err != nil {
				return nil, fmt.Errorf("encode list_history result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"workz.add_comment",
			mcp.WithDescription("Add a comment to one todo and return it as an activity item."),
			mcp.WithString("todo_id", mcp.Required(), mcp.Description("Todo record identifier")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Comment text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			todoID, err := req.RequireString("todo_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			content, err := req.RequireString("content")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := activity.AddComment(ctx, agent, todoID, content)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(item)
			if err != nil {
				return nil, fmt.Errorf("encode add_comment result: %w", err)
			}
			return result, nil
		},
	)
}

// registerReferenceTools registers the `workz.resolve_references` tool.
func registerReferenceTools(srv *mcpserver.MCPServer, agent auth.Principal, references common.ReferenceService) {
	srv.AddTool(
		mcp.NewTool(
			"workz.resolve_references",
			mcp.WithDescription("Resolve (doctype, name) pairs to display titles keyed by \"doctype:name\"."),
			mcp.WithString("references", mcp.Required(), mcp.Description("JSON array of {doctype, name} objects")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			raw, err := req.RequireString("references")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			refs, err := app.ParseReferences(json.RawMessage(raw))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			resolved, err := references.ResolveReferences(ctx, agent, refs)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(resolved)
			if err != nil {
				return nil, fmt.Errorf("encode resolve_references result: %w", err)
			}
			return result, nil
		},
	)
}

// registerTodoTools registers the `workz.get_user_todos` tool.
func registerTodoTools(srv *mcpserver.MCPServer, agent auth.Principal, todos common.TodoService) {
	srv.AddTool(
		mcp.NewTool(
			"workz.get_user_todos",
			mcp.WithDescription("List the agent user's owned and assigned todos, newest-modified first."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list, err := todos.ListUserTodos(ctx, agent)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"todos": common.NewTodoViews(list)})
			if err != nil {
				return nil, fmt.Errorf("encode get_user_todos result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors to MCP tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, app.ErrValidation):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, auth.ErrNotPermitted), errors.Is(err, auth.ErrLoginRequired):
		return mcp.NewToolResultError("not_permitted: " + err.Error())
	case errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
