package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rostersync/internal/engine"
	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	URL     string
	Token   string
	Key     string
	Journal string
	Once    bool
	Timeout time.Duration
	Roster  bool
}

// StudentSummary is one student line of a watch summary.
type StudentSummary struct {
	Hashed  string `json:"hashed"`
	ID      string `json:"id"`
	First   string `json:"first"`
	Last    string `json:"last"`
	Entries int    `json:"entries"`
}

// WatchSummary describes the roster when watch stops.
type WatchSummary struct {
	Ready    session.Ready    `json:"ready"`
	Revision int64            `json:"revision"`
	Students int              `json:"students"`
	Dates    int              `json:"dates"`
	Digest   string           `json:"digest"`
	Roster   []StudentSummary `json:"roster,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a roster and keep it replicated",
		Long: `Connect to a roster server, authenticate, and apply every operation the
server sends until interrupted.

The URL, token and field key come from flags, the --config file, or the
ROSTERSYNC_URL, ROSTERSYNC_TOKEN and ROSTERSYNC_KEY environment variables,
in that order.

With --journal every inbound operation is appended to a JSON-lines file
that "rostersync replay" can feed through a fresh engine.

Exit codes:
  0 - Stopped by signal, or --once after the first snapshot
  1 - Credentials rejected, or the server stayed unreachable
  2 - Command error (missing url, token or key)

Examples:
  rostersync watch --url ws://localhost:8080/ws --token $TOKEN --key $KEY
  rostersync watch --config rostersync.yaml --journal roster.jsonl
  rostersync watch --once --roster --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "websocket url of the roster server")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token")
	cmd.Flags().StringVar(&opts.Key, "key", "", "hex field key")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "write inbound operations to this file")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit after the first snapshot is applied")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "with --once, how long to wait for the snapshot")
	cmd.Flags().BoolVar(&opts.Roster, "roster", false, "include every student in the summary")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := loadCommandConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.URL != "" {
		cfg.URL = opts.URL
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}
	if opts.Key != "" {
		cfg.KeyHex = opts.Key
	}
	if cfg.URL == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("no server url: set --url, url or %s", EnvURL))
	}
	if cfg.Token == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("no token: set --token, token or %s", EnvToken))
	}
	key, err := cfg.Cipher()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid field key", err)
	}

	logger := cfg.Logger(cmd.ErrOrStderr(), opts.Verbose)

	engOpts := []engine.EngineOption{}
	if opts.Journal != "" {
		f, err := os.Create(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create journal", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		engOpts = append(engOpts, engine.WithJournal(engine.NewJournalWriter(f)))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parentCtx)
	defer cancel(nil)

	// sess is assigned before Run, so the listener never sees nil.
	var sess *session.Session
	ready := make(chan struct{})
	var readyOnce sync.Once
	engOpts = append(engOpts, engine.WithListener(func(engine.Snapshot) {
		if sess.Ready().OK {
			readyOnce.Do(func() { close(ready) })
		}
	}))

	notifier := &watchNotifier{
		Notifier: session.LogNotifier{Logger: logger},
		giveUp:   func() { cancel(errGaveUp) },
	}

	sess, err = session.New(cfg.URL,
		session.WithCredentials(session.Credentials{Token: cfg.Token, Key: key}),
		session.WithLogger(logger),
		session.WithNotifier(notifier),
		session.WithEngineOptions(engOpts...),
		session.WithTransportOptions(cfg.TransportOptions()...),
		session.WithExpiredHandler(func() { cancel(errExpired) }),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create session", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel(nil)
		case <-ctx.Done():
		}
	}()

	if opts.Once {
		go func() {
			select {
			case <-ready:
				cancel(nil)
			case <-time.After(opts.Timeout):
				cancel(errNoSnapshot)
			case <-ctx.Done():
			}
		}()
	}

	logger.Info("session starting", "url", cfg.URL)
	runErr := sess.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "session error", runErr)
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		if err := newFormatter(cmd, opts.RootOptions).Error(stopCode(cause), cause.Error(), nil); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "session stopped", cause)
	}
	logger.Info("session stopped")

	summary, err := summarize(sess, opts.Roster)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to summarize roster", err)
	}
	return newFormatter(cmd, opts.RootOptions).Success(summary, func(w io.Writer) {
		writeWatchSummary(w, summary)
	})
}

var (
	errExpired    = errors.New("credentials rejected by server")
	errGaveUp     = errors.New("server unreachable, reconnect attempts exhausted")
	errNoSnapshot = errors.New("timed out waiting for the roster snapshot")
)

// stopCode maps a session stop cause to a CLI error code.
func stopCode(cause error) string {
	switch {
	case errors.Is(cause, errExpired):
		return "E_EXPIRED"
	case errors.Is(cause, errGaveUp):
		return "E_UNREACHABLE"
	case errors.Is(cause, errNoSnapshot):
		return "E_TIMEOUT"
	default:
		return "E_SESSION"
	}
}

// watchNotifier logs notices and stops the command once the socket gives up.
type watchNotifier struct {
	session.Notifier
	giveUp func()
}

func (n *watchNotifier) Error(msg string) {
	n.Notifier.Error(msg)
	if msg == session.MsgTimedOut {
		n.giveUp()
	}
}

func summarize(sess *session.Session, withRoster bool) (WatchSummary, error) {
	snap := sess.Snapshot()
	digest, err := ir.RosterDigest(snap.Roster)
	if err != nil {
		return WatchSummary{}, err
	}
	summary := WatchSummary{
		Ready:    sess.Ready(),
		Revision: snap.Revision,
		Students: len(snap.Roster),
		Dates:    len(snap.Roster.Dates()),
		Digest:   digest,
	}
	if withRoster {
		summary.Roster = make([]StudentSummary, 0, len(snap.Roster))
		for _, s := range snap.Roster {
			n := 0
			for _, c := range s.Cells {
				n += len(c.Entries)
			}
			summary.Roster = append(summary.Roster, StudentSummary{
				Hashed: s.Hashed, ID: s.ID, First: s.First, Last: s.Last, Entries: n,
			})
		}
	}
	return summary, nil
}

func writeWatchSummary(w io.Writer, s WatchSummary) {
	fmt.Fprintf(w, "Revision %d: %d student(s), %d date(s)\n", s.Revision, s.Students, s.Dates)
	fmt.Fprintf(w, "Digest: %s\n", s.Digest)
	for _, st := range s.Roster {
		fmt.Fprintf(w, "  %s  %s %s (%s), %d entries\n", st.Hashed, st.First, st.Last, st.ID, st.Entries)
	}
}

// discardLogger is used where a command's engine must stay quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
