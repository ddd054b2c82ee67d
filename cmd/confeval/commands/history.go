package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/stores"
)

// history records runs in the evaluation history database. A nil history
// records nothing. Recording failures are logged and never fail a run.
type history struct {
	store *stores.SQLiteStore
}

func openHistory(ctx context.Context, path string) (*history, error) {
	if path == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("history %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("history %s: %w", path, err)
	}
	return &history{store: store}, nil
}

func (h *history) Close() {
	if h == nil {
		return
	}
	if err := h.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing history failed")
	}
}

// start records a running run and returns its ID.
func (h *history) start(ctx context.Context, command, path string, mode diag.Mode) string {
	if h == nil {
		return ""
	}

	run := &stores.Run{
		ID:        uuid.NewString(),
		Command:   command,
		Path:      path,
		Digest:    digest(path),
		Mode:      mode.String(),
		Status:    stores.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := h.store.CreateRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Recording run failed")
		return ""
	}
	return run.ID
}

// finish records the outcome of a run started with start.
func (h *history) finish(ctx context.Context, id string, instances int, runErr error) {
	if h == nil || id == "" {
		return
	}

	result := stores.Result{Status: stores.RunStatusSucceeded, Instances: instances}
	if runErr != nil {
		msg := runErr.Error()
		result.Status = stores.RunStatusFailed
		result.Error = &msg
	}
	for _, e := range diagnostics(runErr) {
		d := stores.Diagnostic{
			Kind:    string(e.Kind),
			Schema:  e.Schema,
			Attr:    e.Attr,
			Message: e.Message,
		}
		if !e.Meta.IsZero() {
			d.Location = e.Meta.String()
		}
		result.Diagnostics = append(result.Diagnostics, d)
	}

	if err := h.store.CompleteRun(ctx, id, result); err != nil {
		log.Warn().Err(err).Str("run", id).Msg("Recording run outcome failed")
	}
}

// digest returns the sha256 of a file, or "" when it cannot be read.
func digest(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newHistoryCommand() *cobra.Command {
	var (
		path  string
		runID string
		limit int
		prune time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded evaluation runs",
		Long: `Show runs recorded by eval and validate with --history.

Without --run, lists the most recent runs. With --run, prints the
diagnostics that run reported.`,
		Example: `  # List the last 20 runs
  confeval history --history .confeval/history.db

  # Show the diagnostics of one run
  confeval history --history .confeval/history.db --run 6f1c...

  # Drop runs older than 30 days
  confeval history --history .confeval/history.db --prune 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.History == "" {
				return fmt.Errorf("no history database configured (use --history)")
			}

			h, err := openHistory(cmd.Context(), cfg.History)
			if err != nil {
				return err
			}
			defer h.Close()

			out := cmd.OutOrStdout()
			switch {
			case prune > 0:
				n, err := h.store.DeleteRunsBefore(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pruned %d run(s)\n", n)
				return nil
			case runID != "":
				return showRun(cmd.Context(), out, h.store, runID)
			default:
				var filter *string
				if path != "" {
					filter = &path
				}
				return listRuns(cmd.Context(), out, h.store, filter, limit)
			}
		},
	}

	cmd.Flags().String("history", "", "evaluation history database")
	cmd.Flags().StringVar(&path, "path", "", "only list runs of this declaration file")
	cmd.Flags().StringVar(&runID, "run", "", "show the diagnostics of one run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this")

	return cmd
}

func listRuns(ctx context.Context, w io.Writer, store stores.Store, path *string, limit int) error {
	runs, err := store.ListRuns(ctx, path, limit, 0)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMMAND\tPATH\tSTATUS\tINSTANCES\tERRORS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Command, r.Path, r.Status, r.Instances, r.ErrorCount,
			r.StartedAt.Local().Format(time.DateTime), r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}

func showRun(ctx context.Context, w io.Writer, store stores.Store, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	diags, err := store.ListDiagnostics(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run %s: %s %s (%s, %s)\n", run.ID, run.Command, run.Path, run.Mode, run.Status)
	fmt.Fprintf(w, "digest: %s\n", run.Digest)
	for _, d := range diags {
		location := d.Location
		if location == "" {
			location = "<unknown>"
		}
		fmt.Fprintf(w, "  %s: error[%s]: %s\n", location, d.Kind, d.Message)
	}
	fmt.Fprintf(w, "%d error(s)\n", len(diags))
	return nil
}
