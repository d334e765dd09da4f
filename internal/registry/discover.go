package registry

import (
	"fmt"
	"strings"

	"github.com/dmarma/okta-mcp-server/internal/mcp"
	"github.com/sirupsen/logrus"
)

// Factory builds one tool. Errors and panics are both load failures.
type Factory func() (mcp.Tool, error)

// Catalog maps operation identifiers to factories.
type Catalog map[string]Factory

// Discover loads every identifier in order. Identifiers that cannot be
// resolved, fail to build, or produce an unusable tool are logged and
// skipped; discovery itself never fails.
func Discover(ids []string, catalog Catalog, log *logrus.Entry) []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(ids))
	seen := make(map[string]string, len(ids))

	for _, id := range ids {
		entry := log.WithField("operation", id)

		tool, err := load(id, catalog)
		if err != nil {
			entry.WithError(err).Warn("failed to load tool")
			continue
		}

		def := tool.Definition()
		if strings.TrimSpace(def.Name) == "" {
			entry.Warn("tool has no name, skipped")
			continue
		}
		if def.Parameters.Type != "object" {
			entry.WithField("schema_type", def.Parameters.Type).Warn("tool parameters are not an object schema, skipped")
			continue
		}
		if prev, dup := seen[def.Name]; dup {
			entry.WithField("tool", def.Name).WithField("first", prev).Warn("duplicate tool name, skipped")
			continue
		}
		seen[def.Name] = id
		tools = append(tools, tool)
	}

	log.WithField("loaded", len(tools)).WithField("requested", len(ids)).Info("tool discovery complete")
	return tools
}

func load(id string, catalog Catalog) (tool mcp.Tool, err error) {
	factory, ok := catalog[id]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", id)
	}
	defer func() {
		if r := recover(); r != nil {
			tool, err = nil, fmt.Errorf("factory panic: %v", r)
		}
	}()
	tool, err = factory()
	if err == nil && tool == nil {
		err = fmt.Errorf("factory returned no tool")
	}
	return tool, err
}
