package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/internal/ingest"
	"github.com/kestrelworks/engram/internal/memory"
	"github.com/kestrelworks/engram/pkg/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the thin tool-registration surface exposing the memory and
// aggregator operations to an MCP client over stdio. It also hosts the
// elicitation-backed confirmation channel.
type Server struct {
	mcp *server.MCPServer
	svc *memory.Service
	agg *ingest.Aggregator

	elicitor *Elicitor
}

func New(svc *memory.Service, agg *ingest.Aggregator) *Server {
	m := server.NewMCPServer(core.EngramName, core.EngramVersion,
		server.WithToolCapabilities(false),
	)
	s := &Server{
		mcp:      m,
		svc:      svc,
		agg:      agg,
		elicitor: NewElicitor(m),
	}
	s.registerTools()
	return s
}

// Elicitor returns the interactive confirmation channel bound to this server.
func (s *Server) Elicitor() *Elicitor {
	return s.elicitor
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting mcp server on stdio")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("remember",
		mcp.WithDescription("Store a long-term memory; related existing memories are checked for conflicts first"),
		mcp.WithString("content", mcp.Required(), mcp.Description("the fact to remember")),
		mcp.WithString("type", mcp.Description("decision, preference, insight, fact or context")),
		mcp.WithString("tags", mcp.Description("comma-separated tags")),
		mcp.WithString("project", mcp.Description("project scope")),
		mcp.WithString("source", mcp.Description("where the fact came from")),
	), s.handleRemember)

	s.mcp.AddTool(mcp.NewTool("recall",
		mcp.WithDescription("Retrieve stored memories for a project"),
		mcp.WithString("query", mcp.Description("substring filter over content and tags")),
		mcp.WithString("project", mcp.Description("project scope")),
		mcp.WithBoolean("include_invalidated", mcp.Description("also return superseded memories, flagged")),
	), s.handleRecall)

	s.mcp.AddTool(mcp.NewTool("context",
		mcp.WithDescription("Assemble active memories and recent turns for a session"),
		mcp.WithString("session_id", mcp.Description("session to include recent turns for")),
		mcp.WithString("project", mcp.Description("project scope")),
	), s.handleContext)

	s.mcp.AddTool(mcp.NewTool("detect_conflicts",
		mcp.WithDescription("Scan stored memories for semantic conflicts and record them for review"),
		mcp.WithString("project", mcp.Description("project scope")),
	), s.handleDetectConflicts)

	s.mcp.AddTool(mcp.NewTool("resolve_conflict",
		mcp.WithDescription("Apply a review decision to a recorded conflict"),
		mcp.WithString("id", mcp.Required(), mcp.Description("conflict id")),
		mcp.WithString("action", mcp.Required(), mcp.Description("invalidate_old or keep_both")),
	), s.handleResolveConflict)

	s.mcp.AddTool(mcp.NewTool("dismiss_conflict",
		mcp.WithDescription("Mark a recorded conflict as reviewed with no action"),
		mcp.WithString("id", mcp.Required(), mcp.Description("conflict id")),
	), s.handleDismissConflict)

	s.mcp.AddTool(mcp.NewTool("clear_session",
		mcp.WithDescription("Finalize any in-flight turn and drop aggregator state for a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("session to clear")),
	), s.handleClearSession)
}

func (s *Server) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.Remember(ctx, memory.RememberRequest{
		Content: content,
		Type:    core.MemoryType(req.GetString("type", "")),
		Tags:    splitTags(req.GetString("tags", "")),
		Project: req.GetString("project", ""),
		Source:  req.GetString("source", "mcp"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.Recall(ctx,
		req.GetString("query", ""),
		req.GetString("project", ""),
		req.GetBool("include_invalidated", false),
		50,
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) handleContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pc, err := s.svc.Context(ctx, req.GetString("session_id", ""), req.GetString("project", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(pc)
}

func (s *Server) handleDetectConflicts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conflicts, err := s.svc.DetectConflicts(ctx, req.GetString("project", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(conflicts)
}

func (s *Server) handleResolveConflict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Resolve(ctx, id, action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("resolved"), nil
}

func (s *Server) handleDismissConflict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Dismiss(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("dismissed"), nil
}

func (s *Server) handleClearSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.agg.ClearSession(ctx, id)
	return mcp.NewToolResultText("cleared"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
