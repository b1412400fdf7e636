package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rostersync/internal/devserver"
	"github.com/roach88/rostersync/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Seed     string
	Key      string
	Secret   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development roster server",
		Long: `Run a single-process roster server backed by SQLite.

The server speaks the replication protocol on /ws: it verifies HS256 bearer
tokens, sends the full roster on Authenticate, assigns ids to new entries,
and broadcasts every change to all authenticated sessions. /healthz reports
the number of open sessions.

With --seed the database is replaced by the students in a YAML seed file,
sealed with --key before they are stored.

Examples:
  rostersync serve --db ./roster.db --secret dev-secret
  rostersync serve --db ./roster.db --seed students.yaml --key $KEY --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML seed file replacing the roster")
	cmd.Flags().StringVar(&opts.Key, "key", "", "hex field key used to seal seed data")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "HS256 token secret (or "+EnvSecret+")")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadCommandConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Key != "" {
		cfg.KeyHex = opts.Key
	}
	secret := fallback(opts.Secret, EnvSecret)
	if secret == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("no token secret: set --secret or %s", EnvSecret))
	}

	logger := cfg.Logger(cmd.ErrOrStderr(), opts.Verbose)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.Seed != "" {
		seed, err := devserver.LoadSeed(opts.Seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load seed", err)
		}
		key, err := cfg.Cipher()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid field key", err)
		}
		n, err := devserver.Seed(ctx, st, key, seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to seed database", err)
		}
		logger.Info("database seeded", "students", n)
	}

	srv, err := devserver.New(st, []byte(secret), devserver.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpServer := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	served := make(chan error, 1)
	go func() {
		served <- httpServer.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("server listening", "addr", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Replication endpoint: ws://%s/ws\n", addr)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-served:
	}

	// Hijacked websocket connections are not tracked by Shutdown; the
	// dev server closes them itself.
	if err := srv.Close(); err != nil {
		logger.Warn("error closing sessions", "error", err)
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down http server", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", serveErr)
	}
	logger.Info("server stopped gracefully")
	return nil
}
