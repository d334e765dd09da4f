package mcp

import (
	"strings"

	"github.com/dmarma/okta-mcp-server/internal/protocol"
)

// Describe maps a handler definition onto the advertised tool shape. The
// input schema is the declared parameter schema, unchanged. Tools without
// a name are not advertised.
func Describe(t Tool) (protocol.ToolDescriptor, bool) {
	def := t.Definition()
	if strings.TrimSpace(def.Name) == "" {
		return protocol.ToolDescriptor{}, false
	}
	schema := def.Parameters
	return protocol.ToolDescriptor{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: &schema,
	}, true
}
