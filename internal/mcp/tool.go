package mcp

import (
	"context"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
)

// Definition is a handler's internal description of itself.
type Definition struct {
	Name        string
	Description string
	Parameters  protocol.JSONSchema
}

// Tool is one invokable operation. Implementations are immutable once built
// and are shared by every session.
type Tool interface {
	Definition() Definition
	Call(ctx context.Context, args map[string]any) (any, error)
}
