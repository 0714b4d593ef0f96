// Package mcp exposes court rotation automation as Model Context
// Protocol tools, so agents can inspect courts and drive sessions over
// a stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nerrad567/court-rotation/internal/courtapi"
	"github.com/nerrad567/court-rotation/internal/rotation"
)

// CourtLister is the slice of the reservation client the tools need.
type CourtLister interface {
	ListCourts(ctx context.Context) ([]courtapi.Court, error)
}

// TickTrigger forces a rotation tick.
type TickTrigger interface {
	Trigger(ctx context.Context) rotation.TickReport
}

// Logger is the minimal logging interface the server needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the dependencies required by the MCP server.
type Deps struct {
	Manager *rotation.Manager
	Courts  CourtLister
	Ticker  TickTrigger
	Logger  Logger
	Version string
}

// Server wraps an MCP server with the court rotation toolset.
type Server struct {
	manager *rotation.Manager
	courts  CourtLister
	ticker  TickTrigger
	logger  Logger
	mcp     *mcp.Server
}

// New creates the MCP server and registers all tools.
func New(deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, fmt.Errorf("rotation manager is required")
	}
	if deps.Ticker == nil {
		return nil, fmt.Errorf("tick trigger is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Server{
		manager: deps.Manager,
		courts:  deps.Courts,
		ticker:  deps.Ticker,
		logger:  logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "court-rotation",
			Version: deps.Version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server starting on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer exposes the underlying server, for tests that connect over
// an in-memory transport.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// ─── Tool Registration ──────────────────────────────────────────────────────

type emptyInput struct{}

type startSingleInput struct {
	CourtID       string  `json:"court_id" jsonschema:"the court to automate"`
	DurationHours float64 `json:"duration_hours" jsonschema:"session length in hours, 1 to 24"`
}

type startMultiInput struct {
	CourtIDs      []string `json:"court_ids" jsonschema:"the courts to automate, one pool each"`
	DurationHours float64  `json:"duration_hours" jsonschema:"session length in hours, 1 to 24"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "list_available_courts",
		Description: "List all courts known to the reservation service, including " +
			"their identifiers, numbers, and availability. Use the returned court " +
			"ids when starting automation.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		return s.handleListCourts(ctx)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "start_single_court_automation",
		Description: "Start rotation automation on one court. Twelve users are " +
			"provisioned into three groups of four and rotated every half hour " +
			"for the given duration. Fails if single-court automation is already running.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in startSingleInput) (*mcp.CallToolResult, any, error) {
		sess, err := s.manager.Start(ctx, in.CourtID, in.DurationHours)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(map[string]any{
			"sessionId": sess.SessionID,
			"courtId":   sess.CourtID,
			"startTime": sess.StartTime,
			"endTime":   sess.EndTime,
		})
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "start_multi_court_automation",
		Description: "Start rotation automation across several courts at once. " +
			"Each court gets its own pool of twelve users; no user is shared " +
			"between courts. Fails if multi-court automation is already running.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in startMultiInput) (*mcp.CallToolResult, any, error) {
		sess, err := s.manager.StartMulti(ctx, in.CourtIDs, in.DurationHours)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(map[string]any{
			"sessionId": sess.SessionID,
			"courts":    len(sess.Courts),
			"startTime": sess.StartTime,
			"endTime":   sess.EndTime,
		})
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "stop_automation",
		Description: "Stop all running automation in both scopes and release the " +
			"session state. Safe to call when nothing is running.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		result, err := s.manager.Stop(ctx)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(result)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_automation_status",
		Description: "Report current automation state: which sessions are active, " +
			"which group is on each court, the waiting groups, and time until the " +
			"next rotation.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		report, err := s.manager.Status(ctx)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(report)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "trigger_rotation_tick",
		Description: "Force an immediate rotation evaluation instead of waiting " +
			"for the schedule. The tick is idempotent; courts whose window has " +
			"not elapsed simply report how long is left.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
		report := s.ticker.Trigger(ctx)
		return toolJSON(map[string]any{
			"action": report.Overall(),
			"single": report.Single,
			"multi":  report.Multi,
		})
	})
}

func (s *Server) handleListCourts(ctx context.Context) (*mcp.CallToolResult, any, error) {
	if s.courts == nil {
		return toolError(fmt.Errorf("court listing is not configured")), nil, nil
	}
	courts, err := s.courts.ListCourts(ctx)
	if err != nil {
		s.logger.Error("court listing failed", "error", err)
		return toolError(err), nil, nil
	}
	open := make([]courtapi.Court, 0, len(courts))
	for _, c := range courts {
		if c.IsVisible && c.IsAvailable {
			open = append(open, c)
		}
	}
	return toolJSON(map[string]any{"courts": open, "count": len(open)})
}

// toolJSON renders a payload as an indented JSON text result.
func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolError returns a tool-level error result. MCP protocol: tool errors
// ride in CallToolResult.IsError, not as Go errors.
func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}
