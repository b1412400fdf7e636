package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/engine"
	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string // replay the server operations log instead of a journal
	Key      string
}

// ReplayReport holds the replay result.
type ReplayReport struct {
	Source        string `json:"source"`
	Operations    int    `json:"operations"`
	Applied       int    `json:"applied"`
	Failed        int    `json:"failed"`
	Revision      int64  `json:"revision"`
	Digest        string `json:"digest"`
	Deterministic bool   `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [journal]",
		Short: "Replay an operation journal and verify determinism",
		Long: `Feed a recorded operation journal through a fresh engine and report the
resulting roster digest.

The operations are replayed twice, each time through a new engine; both runs
must reach the same revision and digest. With --db the dev server's
operations log is replayed instead of a journal file.

Exit codes:
  0 - Replay is deterministic
  1 - Determinism verification failed (digests differ)
  2 - Command error (journal not found, bad key, etc.)

Examples:
  rostersync replay --key $KEY roster.jsonl
  rostersync replay --key $KEY --db ./roster.db
  rostersync replay --key $KEY roster.jsonl --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to a dev server SQLite database")
	cmd.Flags().StringVar(&opts.Key, "key", "", "hex field key")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if (len(args) == 1) == (opts.Database != "") {
		return NewExitError(ExitCommandError, "exactly one of a journal path or --db is required")
	}

	cfg, err := loadCommandConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Key != "" {
		cfg.KeyHex = opts.Key
	}
	key, err := cfg.Cipher()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid field key", err)
	}

	var (
		source string
		ops    []ir.Operation
	)
	if opts.Database != "" {
		source = opts.Database
		ops, err = loadOperationsLog(ctx, opts.Database)
	} else {
		source = args[0]
		ops, err = loadJournal(args[0])
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load operations", err)
	}

	f := newFormatter(cmd, opts.RootOptions)
	f.VerboseLog("Loaded %d operation(s) from %s", len(ops), source)

	report, err := replayAndVerify(ctx, key, ops)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	report.Source = source

	text := func(w io.Writer) { writeReplayText(w, report, opts.Verbose) }
	if !report.Deterministic {
		return f.Failure("E_DETERMINISM", "determinism verification failed", report, text)
	}
	return f.Success(report, text)
}

func loadJournal(path string) ([]ir.Operation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return engine.ReadJournal(file)
}

func loadOperationsLog(ctx context.Context, path string) ([]ir.Operation, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	logged, err := st.Operations(ctx, 0)
	if err != nil {
		return nil, err
	}
	ops := make([]ir.Operation, len(logged))
	for i, l := range logged {
		ops[i] = l.Op
	}
	return ops, nil
}

// replayAndVerify replays ops twice through fresh engines and compares the
// outcomes.
func replayAndVerify(ctx context.Context, key cipher.FieldCipher, ops []ir.Operation) (ReplayReport, error) {
	replayOnce := func() (engine.ReplayResult, error) {
		e := engine.New(
			engine.WithCipher(key),
			engine.WithLogger(discardLogger()),
		)
		return engine.Replay(ctx, e, ops)
	}

	first, err := replayOnce()
	if err != nil {
		return ReplayReport{}, fmt.Errorf("first replay failed: %w", err)
	}
	second, err := replayOnce()
	if err != nil {
		return ReplayReport{}, fmt.Errorf("second replay failed: %w", err)
	}

	return ReplayReport{
		Operations:    len(ops),
		Applied:       first.Applied,
		Failed:        first.Failed,
		Revision:      first.Revision,
		Digest:        first.Digest,
		Deterministic: first == second,
	}, nil
}

func writeReplayText(w io.Writer, r ReplayReport, verbose bool) {
	status := "✓"
	if !r.Deterministic {
		status = "✗"
	}
	fmt.Fprintf(w, "%s Replayed %d operation(s) from %s\n", status, r.Operations, r.Source)
	if verbose || r.Failed > 0 {
		fmt.Fprintf(w, "  Applied: %d\n", r.Applied)
		fmt.Fprintf(w, "  Failed: %d\n", r.Failed)
	}
	fmt.Fprintf(w, "  Revision: %d\n", r.Revision)
	fmt.Fprintf(w, "  Digest: %s\n", r.Digest)

	if r.Deterministic {
		fmt.Fprintln(w, "✓ Replay verified deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
