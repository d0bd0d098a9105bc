package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/solver"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run or solution does not exist. A
// missing solution is an expected cache miss, not a failure.
var ErrNotFound = errors.New("stores: not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// A pooled :memory: DSN opens a distinct database per connection.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun creates a new solve run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *SolveRun) error {
	query := `
		INSERT INTO solve_runs (id, model, method, regimes, status, started_at, completed_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Model,
		run.Method,
		run.Regimes,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a solve run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*SolveRun, error) {
	query := `
		SELECT id, model, method, regimes, status, started_at, completed_at, error, created_at, updated_at
		FROM solve_runs
		WHERE id = ?
	`

	run := &SolveRun{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Model,
		&run.Method,
		&run.Regimes,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// UpdateRunStatus updates the status of a solve run. Terminal statuses
// stamp completed_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE solve_runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	var completedAt *time.Time
	if status == RunStatusCompleted || status == RunStatusFailed {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListRuns lists solve runs with pagination, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*SolveRun, error) {
	query := `
		SELECT id, model, method, regimes, status, started_at, completed_at, error, created_at, updated_at
		FROM solve_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*SolveRun{}
	for rows.Next() {
		run := &SolveRun{}
		err := rows.Scan(
			&run.ID,
			&run.Model,
			&run.Method,
			&run.Regimes,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a solve run by ID. Linked run_solutions rows go
// with it through the foreign key cascade; stored solutions stay.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	query := `DELETE FROM solve_runs WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// PutSolution inserts or refreshes a stored solution under its
// conditions hash
func (s *SQLiteStore) PutSolution(ctx context.Context, sol *StoredSolution) error {
	if sol.ConditionsHash == "" {
		return fmt.Errorf("conditions hash is required")
	}
	if sol.Solution == nil {
		return fmt.Errorf("solution is required")
	}

	ttt, rrr, ccc, err := encodeSolution(sol.Solution)
	if err != nil {
		return fmt.Errorf("failed to encode solution: %w", err)
	}

	query := `
		INSERT INTO solutions (conditions_hash, existence, uniqueness, ttt, rrr, ccc, hits, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(conditions_hash) DO UPDATE SET
			existence = excluded.existence,
			uniqueness = excluded.uniqueness,
			ttt = excluded.ttt,
			rrr = excluded.rrr,
			ccc = excluded.ccc,
			last_used_at = excluded.last_used_at
	`

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		sol.ConditionsHash,
		sol.Eigen.Existence,
		sol.Eigen.Uniqueness,
		ttt,
		rrr,
		ccc,
		now,
		now,
	)

	if err != nil {
		return fmt.Errorf("failed to put solution: %w", err)
	}

	return nil
}

// GetSolution retrieves a stored solution by conditions hash and bumps
// its hit counter. A miss is reported as ErrNotFound.
func (s *SQLiteStore) GetSolution(ctx context.Context, conditionsHash string) (*StoredSolution, error) {
	query := `
		SELECT conditions_hash, existence, uniqueness, ttt, rrr, ccc, hits, created_at, last_used_at
		FROM solutions
		WHERE conditions_hash = ?
	`

	sol := &StoredSolution{}
	var ttt, rrr, ccc []byte
	err := s.db.QueryRowContext(ctx, query, conditionsHash).Scan(
		&sol.ConditionsHash,
		&sol.Eigen.Existence,
		&sol.Eigen.Uniqueness,
		&ttt,
		&rrr,
		&ccc,
		&sol.Hits,
		&sol.CreatedAt,
		&sol.LastUsedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("solution %s: %w", conditionsHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get solution: %w", err)
	}

	sol.Solution, err = decodeSolution(ttt, rrr, ccc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode solution: %w", err)
	}

	touch := `UPDATE solutions SET hits = hits + 1, last_used_at = ? WHERE conditions_hash = ?`
	if _, err := s.db.ExecContext(ctx, touch, time.Now().UTC(), conditionsHash); err != nil {
		return nil, fmt.Errorf("failed to record solution hit: %w", err)
	}
	sol.Hits++

	return sol, nil
}

// LinkRunSolution records that a run resolved a regime through the
// given stored solution
func (s *SQLiteStore) LinkRunSolution(ctx context.Context, runID string, regime int, conditionsHash string) error {
	query := `
		INSERT INTO run_solutions (run_id, regime, conditions_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, regime) DO UPDATE SET
			conditions_hash = excluded.conditions_hash
	`

	_, err := s.db.ExecContext(ctx, query, runID, regime, conditionsHash)
	if err != nil {
		return fmt.Errorf("failed to link run solution: %w", err)
	}

	return nil
}

// SolutionsForRun returns the stored solutions a run resolved, in
// ascending regime order
func (s *SQLiteStore) SolutionsForRun(ctx context.Context, runID string) ([]*RunSolution, error) {
	query := `
		SELECT rs.run_id, rs.regime, s.conditions_hash, s.existence, s.uniqueness, s.ttt, s.rrr, s.ccc, s.hits, s.created_at, s.last_used_at
		FROM run_solutions rs
		JOIN solutions s ON s.conditions_hash = rs.conditions_hash
		WHERE rs.run_id = ?
		ORDER BY rs.regime ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run solutions: %w", err)
	}
	defer rows.Close()

	sols := []*RunSolution{}
	for rows.Next() {
		rsol := &RunSolution{}
		var ttt, rrr, ccc []byte
		err := rows.Scan(
			&rsol.RunID,
			&rsol.Regime,
			&rsol.ConditionsHash,
			&rsol.Eigen.Existence,
			&rsol.Eigen.Uniqueness,
			&ttt,
			&rrr,
			&ccc,
			&rsol.Hits,
			&rsol.CreatedAt,
			&rsol.LastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run solution: %w", err)
		}
		rsol.Solution, err = decodeSolution(ttt, rrr, ccc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode solution for regime %d: %w", rsol.Regime, err)
		}
		sols = append(sols, rsol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run solutions: %w", err)
	}

	return sols, nil
}

// PruneSolutions deletes stored solutions not used since the cutoff
// and not referenced by any remaining run
func (s *SQLiteStore) PruneSolutions(ctx context.Context, unusedSince time.Time) (int64, error) {
	query := `
		DELETE FROM solutions
		WHERE datetime(last_used_at) <= datetime(?)
		  AND conditions_hash NOT IN (SELECT conditions_hash FROM run_solutions)
	`

	result, err := s.db.ExecContext(ctx, query, unusedSince.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune solutions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func encodeSolution(sol *solver.TransitionSolution) (ttt, rrr, ccc []byte, err error) {
	if ttt, err = sol.TTT.MarshalBinary(); err != nil {
		return nil, nil, nil, err
	}
	if rrr, err = sol.RRR.MarshalBinary(); err != nil {
		return nil, nil, nil, err
	}
	if ccc, err = sol.CCC.MarshalBinary(); err != nil {
		return nil, nil, nil, err
	}
	return ttt, rrr, ccc, nil
}

func decodeSolution(ttt, rrr, ccc []byte) (*solver.TransitionSolution, error) {
	sol := &solver.TransitionSolution{
		TTT: &mat.Dense{},
		RRR: &mat.Dense{},
		CCC: &mat.VecDense{},
	}
	if err := sol.TTT.UnmarshalBinary(ttt); err != nil {
		return nil, err
	}
	if err := sol.RRR.UnmarshalBinary(rrr); err != nil {
		return nil, err
	}
	if err := sol.CCC.UnmarshalBinary(ccc); err != nil {
		return nil, err
	}
	return sol, nil
}
