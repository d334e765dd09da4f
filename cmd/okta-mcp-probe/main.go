// okta-mcp-probe opens a session against a running sse server, lists its
// tools and optionally calls one.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmarma/okta-mcp-server/internal/sseclient"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var baseURL, tool, rawArgs string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("okta-mcp-probe", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "url", "http://localhost:3000", "server base URL")
	flagSet.StringVar(&tool, "call", "", "tool to call after listing")
	flagSet.StringVar(&rawArgs, "args", "{}", "JSON arguments for --call")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
		return fmt.Errorf("parse --args: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := sseclient.Dial(ctx, baseURL, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	fmt.Fprintf(stdout, "session %s: %s %s (protocol %s)\n", client.SessionID(), info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)

	list, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	for _, t := range list {
		fmt.Fprintf(stdout, "  %-30s %s\n", t.Name, t.Description)
	}

	if tool == "" {
		return nil
	}
	res, err := client.CallTool(ctx, tool, toolArgs)
	if err != nil {
		return fmt.Errorf("call %s: %w", tool, err)
	}
	for _, part := range res.Content {
		fmt.Fprintln(stdout, part.Text)
	}
	return nil
}
