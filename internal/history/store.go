package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"brickkit/internal/pipeline"
)

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultListLimit = 20

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const runColumns = "run_id, prompt, status, state, failed_stage, error_message, summary, analysis_mode, request_json, strategy_label, strategy_query, model_id, model_name, model_category, model_score, choice_kind, choice_reason, variant_label, variant_url, model_path, model_sha256, step_count, bom_path, document_path, run_dir, started_at, finished_at"

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	// Pragmas are per connection; a single connection keeps foreign keys on.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record stores a finished pipeline result, replacing an earlier row for the
// same run id.
func (s *Store) Record(ctx context.Context, res *pipeline.Result) error {
	if res == nil {
		return errors.New("result is nil")
	}
	return s.Put(ctx, FromResult(res))
}

// Put writes run and its step list in one transaction.
func (s *Store) Put(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.RunID); err != nil {
			return fmt.Errorf("replace run: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (`+runColumns+`) VALUES (`+makePlaceholders(27)+`)`,
			run.RunID,
			run.Prompt,
			run.Status,
			run.State,
			nullableString(run.FailedStage),
			nullableString(run.ErrorMessage),
			nullableString(run.Summary),
			nullableString(run.AnalysisMode),
			nullableString(run.RequestJSON),
			nullableString(run.StrategyLabel),
			nullableString(run.StrategyQuery),
			nullableString(run.ModelID),
			nullableString(run.ModelName),
			nullableString(run.ModelCategory),
			run.ModelScore,
			nullableString(run.ChoiceKind),
			nullableString(run.ChoiceReason),
			nullableString(run.VariantLabel),
			nullableString(run.VariantURL),
			nullableString(run.ModelPath),
			nullableString(run.ModelSHA256),
			run.StepCount,
			nullableString(run.BOMPath),
			nullableString(run.DocumentPath),
			nullableString(run.RunDir),
			run.StartedAt.UTC().Format(timeLayout),
			nullableTime(run.FinishedAt),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for i, step := range run.Steps {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_steps (run_id, position, path) VALUES (?, ?, ?)`,
				run.RunID, i, step,
			); err != nil {
				return fmt.Errorf("insert step %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// List returns the most recent runs, newest first. limit <= 0 uses a default.
// Step paths are not loaded; use Get for the full record.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Get fetches one run with its step paths. It returns (nil, nil) when the
// run is unknown.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM run_steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		run.Steps = append(run.Steps, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return &run, nil
}

// Delete removes a run and its steps. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, runID string) (bool, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	return affected > 0, nil
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE run_id NOT IN (
                SELECT run_id FROM runs ORDER BY started_at DESC, run_id LIMIT ?
            )`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}
