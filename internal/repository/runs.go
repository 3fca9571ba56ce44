package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/hidden-states/internal/entity"
)

const (
	runsTable = "runs"

	// Fixed-width UTC timestamps sort correctly as text on both dialects.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

var runColumns = []string{
	"id", "mode", "rivlets_dir", "output_path", "model_path",
	"rows_written", "status", "error_message", "started_at", "duration_ms",
}

type RunRepository interface {
	Migrate(ctx context.Context) error
	Create(ctx context.Context, run *entity.Run) error
	ListRecent(ctx context.Context, limit int) ([]*entity.Run, error)
}

type runRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRunRepository(db *DB, logger *slog.Logger) RunRepository {
	return &runRepository{
		db:     db,
		logger: logger,
	}
}

// runsDDL is valid for both SQLite and Postgres.
const runsDDL = `CREATE TABLE IF NOT EXISTS runs (
	id            VARCHAR(36) NOT NULL PRIMARY KEY,
	mode          VARCHAR(64) NOT NULL,
	rivlets_dir   TEXT        NOT NULL,
	output_path   TEXT        NOT NULL,
	model_path    TEXT        NOT NULL,
	rows_written  INTEGER     NOT NULL,
	status        VARCHAR(16) NOT NULL,
	error_message TEXT        NOT NULL,
	started_at    VARCHAR(32) NOT NULL,
	duration_ms   BIGINT      NOT NULL
)`

// Migrate creates the runs table if it does not exist.
func (r *runRepository) Migrate(ctx context.Context) error {
	if err := r.db.drv.Exec(ctx, runsDDL, []any{}, nil); err != nil {
		r.logger.Error("failed to migrate runs table", "error", err)
		return fmt.Errorf("migrate %s: %w", runsTable, err)
	}
	return nil
}

func (r *runRepository) Create(ctx context.Context, run *entity.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	query, args := entsql.Dialect(r.db.Dialect()).
		Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.ID.String(), run.Mode, run.RivletsDir, run.OutputPath, run.ModelPath,
			run.Rows, run.Status, run.ErrorMessage, run.StartedAt.UTC().Format(timeLayout), run.DurationMS,
		).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to record run", "run_id", run.ID, "error", err)
		return fmt.Errorf("insert run: %w", err)
	}
	r.logger.Debug("run recorded", "run_id", run.ID, "status", run.Status)
	return nil
}

// ListRecent returns up to limit runs, newest first.
func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]*entity.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args := entsql.Dialect(r.db.Dialect()).
		Select(runColumns...).
		From(entsql.Table(runsTable)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, query, args, rows); err != nil {
		r.logger.Error("failed to list runs", "error", err)
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Run
	for rows.Next() {
		var (
			run       entity.Run
			id        string
			startedAt string
			err       error
		)
		if err = rows.Scan(&id, &run.Mode, &run.RivletsDir, &run.OutputPath, &run.ModelPath,
			&run.Rows, &run.Status, &run.ErrorMessage, &startedAt, &run.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", id, err)
		}
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
