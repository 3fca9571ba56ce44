package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/hidden-states/internal/common"
	"github.com/joseph-ayodele/hidden-states/internal/dispatch"
	"github.com/joseph-ayodele/hidden-states/internal/entity"
	"github.com/joseph-ayodele/hidden-states/internal/repository"
)

const ledgerTimeout = 10 * time.Second

func openLedger(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.DB, repository.RunRepository, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open run ledger: %w: %w", common.ErrDatabase, err)
	}
	runs := repository.NewRunRepository(db, logger)
	if err := runs.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return db, runs, nil
}

// recordRun stores the outcome of one extraction. The ledger is best effort:
// failures are logged and never change the exit status.
func (a *app) recordRun(ctx context.Context, id uuid.UUID, inv dispatch.Invocation, res *dispatch.Result, started time.Time, runErr error, logger *slog.Logger) {
	cfg := a.deps.Config.Ledger
	if cfg.DSN == "" {
		return
	}
	// Record even when the run was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	db, runs, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Warn("cli.ledger_unavailable", "error", err)
		return
	}
	defer db.Close(logger)

	run := &entity.Run{
		ID:         id,
		Mode:       string(inv.Mode),
		RivletsDir: inv.RivletsDir,
		Status:     entity.RunStatusSucceeded,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if res != nil {
		run.OutputPath = res.OutputPath
		run.ModelPath = res.ModelPath
		if res.Table != nil {
			run.Rows = res.Table.Len()
		}
	}
	if runErr != nil {
		run.Status = entity.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
	if err := runs.Create(ctx, run); err != nil {
		logger.Warn("cli.ledger_write_failed", "error", err)
	}
}

func newRunsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent extraction runs from the ledger (RUNS_DB_URL)",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return common.InvalidArgument("runs takes no arguments, got %q", args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.deps.Config.Ledger
			if err := common.NewValidator().
				Field("RUNS_DB_URL", cfg.DSN, common.Required).
				Field("--limit", limit, common.PositiveInt).
				Err(); err != nil {
				return err
			}

			db, runs, err := openLedger(cmd.Context(), cfg, a.logger)
			if err != nil {
				return err
			}
			defer db.Close(a.logger)

			list, err := runs.ListRecent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("%w: %w", common.ErrDatabase, err)
			}
			renderRuns(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func renderRuns(w io.Writer, runs []*entity.Run) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"run", "started", "mode", "status", "rows", "elapsed", "output"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range runs {
		out := r.OutputPath
		if r.Status == entity.RunStatusFailed {
			out = r.ErrorMessage
		}
		tw.Append([]string{
			r.ID.String()[:8],
			r.StartedAt.Local().Format(time.DateTime),
			r.Mode,
			r.Status,
			strconv.Itoa(r.Rows),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			out,
		})
	}
	tw.Render()
}
