package mcpserver

import (
	"context"
	"sync"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/pkg/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// elicitationSender is the slice of the MCP server used here; a test double
// can stand in for the client round trip.
type elicitationSender interface {
	RequestElicitation(ctx context.Context, request mcp.ElicitationRequest) (*mcp.ElicitationResult, error)
}

// Elicitor asks the connected MCP client to confirm an invalidation via the
// elicitation capability. Sessions whose client rejects the capability are
// cached so we only probe once per session.
type Elicitor struct {
	srv elicitationSender

	mu          sync.Mutex
	unavailable map[string]struct{}
}

func NewElicitor(srv *server.MCPServer) *Elicitor {
	return &Elicitor{
		srv:         srv,
		unavailable: make(map[string]struct{}),
	}
}

// Available reports whether the request's session can receive elicitations.
func (e *Elicitor) Available(ctx context.Context) bool {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, blocked := e.unavailable[session.SessionID()]
	return !blocked
}

// Confirm sends an elicitation with the given schema and maps the client's
// answer. A capability error marks the session unavailable so the caller's
// fallback policy applies from then on.
func (e *Elicitor) Confirm(ctx context.Context, message string, schema map[string]any) (core.ConfirmResult, error) {
	session := server.ClientSessionFromContext(ctx)

	if schema == nil {
		schema = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confirm": map[string]any{
					"type":        "boolean",
					"description": "true to invalidate the old memory, false to keep both",
				},
			},
		}
	}

	result, err := e.srv.RequestElicitation(ctx, mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message:         message,
			RequestedSchema: schema,
		},
	})
	if err != nil {
		if session != nil {
			e.mu.Lock()
			e.unavailable[session.SessionID()] = struct{}{}
			e.mu.Unlock()
		}
		log.FromCtx(ctx).Debug().Err(err).Msg("elicitation unavailable for session")
		return core.ConfirmResult{}, err
	}

	// Content is declared as any on the wire type; anything that is not an
	// object comes through as a nil map.
	content, _ := result.Content.(map[string]any)

	accepted := result.Action == mcp.ElicitationResponseActionAccept
	if accepted {
		if v, ok := content["confirm"].(bool); ok && !v {
			accepted = false
		}
	}
	return core.ConfirmResult{Accepted: accepted, Content: content}, nil
}
