// Package tools implements the Okta administration operations exposed over
// MCP. Each operation declares a typed argument struct; its parameter
// schema is reflected from that struct and incoming argument maps are
// decoded into it.
package tools

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/dmarma/okta-mcp-server/internal/mcp"
	"github.com/dmarma/okta-mcp-server/internal/okta"
	"github.com/dmarma/okta-mcp-server/internal/protocol"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
)

// API is the slice of the Okta client the operations use.
type API interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) (*okta.Page, error)
}

var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
	Anonymous:                 true,
}

// operation adapts a typed handler to mcp.Tool.
type operation[A any] struct {
	def mcp.Definition
	run func(ctx context.Context, args A) (any, error)
}

func newOperation[A any](name, description string, run func(context.Context, A) (any, error)) (mcp.Tool, error) {
	params, err := schemaFor[A]()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &operation[A]{
		def: mcp.Definition{Name: name, Description: description, Parameters: params},
		run: run,
	}, nil
}

func (o *operation[A]) Definition() mcp.Definition { return o.def }

func (o *operation[A]) Call(ctx context.Context, args map[string]any) (any, error) {
	var a A
	if err := decodeArgs(o.def.Parameters, args, &a); err != nil {
		return nil, err
	}
	return o.run(ctx, a)
}

func schemaFor[A any]() (protocol.JSONSchema, error) {
	t := reflect.TypeOf((*A)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return protocol.JSONSchema{}, fmt.Errorf("argument type %s is not a struct", t)
	}
	s := reflector.ReflectFromType(t)
	out := convertSchema(s)
	out.Type = "object"
	if out.Properties == nil {
		out.Properties = map[string]protocol.JSONSchema{}
	}
	return out, nil
}

func convertSchema(s *jsonschema.Schema) protocol.JSONSchema {
	out := protocol.JSONSchema{
		Type:        s.Type,
		Description: s.Description,
		Enum:        s.Enum,
		Default:     s.Default,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]protocol.JSONSchema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = convertSchema(pair.Value)
		}
	}
	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		items := convertSchema(s.Items)
		out.Items = &items
	}
	return out
}

// decodeArgs fills absent arguments from schema defaults and decodes the
// result into out. The caller's map is not modified.
func decodeArgs(schema protocol.JSONSchema, args map[string]any, out any) error {
	merged := make(map[string]any, len(args)+len(schema.Properties))
	for name, prop := range schema.Properties {
		if prop.Default != nil {
			merged[name] = prop.Default
		}
	}
	for k, v := range args {
		merged[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(merged); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func nonEmpty(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	return nil
}

func pathf(format string, ids ...string) string {
	escaped := make([]any, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, escaped...)
}

// pageQuery builds the cursor parameters shared by list operations.
func pageQuery(limit int, after string) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if after != "" {
		q.Set("after", after)
	}
	return q
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// listResult wraps a list response under key with its cursor.
func listResult(key string, items []map[string]any, page *okta.Page) map[string]any {
	if items == nil {
		items = []map[string]any{}
	}
	out := map[string]any{key: items, "count": len(items)}
	if page != nil && page.NextCursor != "" {
		out["nextCursor"] = page.NextCursor
	}
	return out
}
