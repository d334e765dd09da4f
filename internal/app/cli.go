package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmarma/okta-mcp-server/internal/config"
	"github.com/dmarma/okta-mcp-server/internal/logging"
	"github.com/dmarma/okta-mcp-server/internal/version"
	"github.com/spf13/pflag"
)

// Command describes one server binary.
type Command struct {
	Name string
	// Transport, when set, is forced and the transport flags are hidden.
	Transport string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

// Execute parses args over the environment configuration and runs the
// server until SIGINT or SIGTERM.
func (c Command) Execute(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet(c.Name, pflag.ContinueOnError)
	flagSet.SetOutput(c.Stderr)
	var sse, showVersion bool
	if c.Transport == "" {
		flagSet.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport to serve: stdio or sse")
		flagSet.BoolVar(&sse, "sse", false, "shorthand for --transport sse")
	}
	flagSet.IntVarP(&cfg.Port, "port", "p", cfg.Port, "listen port for the sse transport")
	flagSet.StringVar(&cfg.RegistryFile, "registry", cfg.RegistryFile, "YAML file listing the operations to load")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flagSet.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write logs to this file instead of stderr")
	flagSet.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "bound on a single tool call (0 disables)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if showVersion {
		info := version.Get()
		fmt.Fprintf(c.Stdout, "%s %s (commit %s, built %s)\n", version.Name, info.Version, info.Commit, info.BuildDate)
		return nil
	}
	if sse {
		cfg.Transport = config.TransportSSE
	}
	if c.Transport != "" {
		cfg.Transport = c.Transport
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, cleanup, err := logging.New(c.Name, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Run(ctx, cfg, log, c.Stdin, c.Stdout)
}

// Main runs c with the process arguments and exits non-zero on failure.
func Main(c Command) {
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if err := c.Execute(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(c.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
