package app

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecuteNormalizesTransportFlag(t *testing.T) {
	t.Setenv("OKTA_MCP_TRANSPORT", "bogus")
	t.Setenv("OKTA_MCP_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials.yaml"))
	t.Setenv("OKTA_MCP_REGISTRY_FILE", "")

	var out bytes.Buffer
	cmd := Command{
		Name:   "okta-mcp-server",
		Stdin:  strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n"),
		Stdout: &out,
		Stderr: io.Discard,
	}
	if err := cmd.Execute([]string{"--transport", " STDIO ", "--log-level", "error"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil || resp.ID != 7 {
		t.Fatalf("expected ping reply on stdout, got %q (%v)", out.String(), err)
	}
}

func TestExecuteRejectsUnknownTransportAfterFlags(t *testing.T) {
	t.Setenv("OKTA_MCP_TRANSPORT", "stdio")
	t.Setenv("OKTA_MCP_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials.yaml"))

	var out bytes.Buffer
	cmd := Command{Name: "okta-mcp-server", Stdin: strings.NewReader(""), Stdout: &out, Stderr: io.Discard}
	err := cmd.Execute([]string{"--transport", "websocket"})
	if err == nil || !strings.Contains(err.Error(), "unknown transport") {
		t.Fatalf("expected unknown transport error, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected nothing served, got %q", out.String())
	}
}
