// okta-mcp-credentials maintains the credential file the server falls back
// to when OKTA_DOMAIN and OKTA_API_TOKEN are not set.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmarma/okta-mcp-server/internal/config"
	"github.com/dmarma/okta-mcp-server/internal/credentials"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var file, domain, token string
	var tokenStdin bool

	flagSet := pflag.NewFlagSet("okta-mcp-credentials", pflag.ContinueOnError)
	flagSet.StringVar(&file, "file", envOr("OKTA_MCP_CREDENTIALS_FILE", config.DefaultCredentialsFile()), "credential file")
	flagSet.StringVar(&domain, "domain", "", "Okta domain, e.g. dev-123456.okta.com (set)")
	flagSet.StringVar(&token, "token", "", "Okta API token (set)")
	flagSet.BoolVar(&tokenStdin, "token-stdin", false, "read the API token from stdin (set)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  okta-mcp-credentials set|show|clear [flags]\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	store := credentials.NewFileStore(file)
	switch flagSet.Arg(0) {
	case "set":
		if tokenStdin {
			line, err := bufio.NewReader(stdin).ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("read token: %w", err)
			}
			token = line
		}
		c := credentials.Credentials{Domain: strings.TrimSpace(domain), APIToken: strings.TrimSpace(token)}
		if !c.Complete() {
			return fmt.Errorf("both --domain and a token are required")
		}
		if err := store.Put(c); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "credentials saved to %s\n", store.Path())
	case "show":
		c, err := store.Load()
		if err != nil {
			return err
		}
		if !c.Complete() {
			return credentials.ErrNotConfigured
		}
		fmt.Fprintf(stdout, "file:   %s\ndomain: %s\ntoken:  %s\n", store.Path(), c.Domain, mask(c.APIToken))
	case "clear":
		if err := store.Delete(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "credentials removed from %s\n", store.Path())
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", flagSet.Arg(0))
	}
	return nil
}

func mask(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
