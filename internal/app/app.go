// Package app wires configuration, credentials, tool discovery and the
// transports into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmarma/okta-mcp-server/internal/config"
	"github.com/dmarma/okta-mcp-server/internal/credentials"
	"github.com/dmarma/okta-mcp-server/internal/mcp"
	"github.com/dmarma/okta-mcp-server/internal/okta"
	"github.com/dmarma/okta-mcp-server/internal/registry"
	"github.com/dmarma/okta-mcp-server/internal/tools"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Credentials returns the accessor chain used by the Okta client: values
// from the environment first, then the credential file. The file store is
// returned separately so callers can watch it.
func Credentials(cfg config.Config) (credentials.Accessor, *credentials.FileStore) {
	store := credentials.NewFileStore(cfg.CredentialsFile)
	chain := credentials.Chain{
		credentials.Static{Domain: cfg.OktaDomain, APIToken: cfg.OktaAPIToken},
		store,
	}
	return chain, store
}

// NewToolbox discovers the configured operations and builds the shared
// dispatch table.
func NewToolbox(cfg config.Config, creds credentials.Accessor, log *logrus.Entry) (*mcp.Toolbox, error) {
	ids, err := registry.Resolve(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	client := okta.NewClient(creds, cfg.HTTPTimeout)
	discovered := registry.Discover(ids, tools.Catalog(client), log.WithField("component", "registry"))
	return mcp.NewToolbox(log.WithField("component", "toolbox"), discovered, mcp.WithCallTimeout(cfg.CallTimeout)), nil
}

// Run starts the transport selected by cfg and blocks until ctx is done or
// the transport fails.
func Run(ctx context.Context, cfg config.Config, log *logrus.Entry, stdin io.Reader, stdout io.Writer) error {
	creds, store := Credentials(cfg)
	tb, err := NewToolbox(cfg, creds, log)
	if err != nil {
		return err
	}
	log.WithField("tools", tb.Len()).WithField("transport", cfg.Transport).Info("starting okta mcp server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchCredentials(ctx, store, log)

	if cfg.Transport == config.TransportSSE {
		return RunSSE(ctx, cfg.Addr(), tb, log)
	}
	return RunStdio(ctx, tb, stdin, stdout, log)
}

// RunStdio serves a single conversation over the given streams.
func RunStdio(ctx context.Context, tb *mcp.Toolbox, stdin io.Reader, stdout io.Writer, log *logrus.Entry) error {
	srv := mcp.NewServer(tb, log.WithField("transport", "stdio"))
	return mcp.ServeStdio(ctx, srv, stdin, stdout, log.WithField("transport", "stdio"))
}

// RunSSE serves the multi-session HTTP surface on addr until ctx is done.
// Open sessions are closed before the listener stops.
func RunSSE(ctx context.Context, addr string, tb *mcp.Toolbox, log *logrus.Entry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return ServeSSE(ctx, ln, tb, log)
}

// ServeSSE is RunSSE on an existing listener.
func ServeSSE(ctx context.Context, ln net.Listener, tb *mcp.Toolbox, log *logrus.Entry) error {
	log = log.WithField("transport", "sse")
	sessions := mcp.NewSessionManager(tb, log)
	srv := &http.Server{
		Handler:           sessions.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", ln.Addr().String()).Info("sse transport listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.WithField("sessions", sessions.SessionCount()).Info("shutting down")
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("sessions did not drain")
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func watchCredentials(ctx context.Context, store *credentials.FileStore, log *logrus.Entry) {
	log = log.WithField("component", "credentials").WithField("path", store.Path())
	if err := store.Watch(ctx, log); err != nil {
		log.WithError(err).Warn("credential file watch disabled")
	}
}
