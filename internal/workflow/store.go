package workflow

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// RunStore persists workflow runs. Create must enforce the one-running-per-
// target invariant and return core.ErrConcurrencyConflict on violation.
type RunStore interface {
	Create(ctx context.Context, run *core.FailoverWorkflowRun) error
	Update(ctx context.Context, run *core.FailoverWorkflowRun) error
	Get(ctx context.Context, runID string) (*core.FailoverWorkflowRun, error)
	List(ctx context.Context, limit int) ([]*core.FailoverWorkflowRun, error)
	ListRunning(ctx context.Context) ([]*core.FailoverWorkflowRun, error)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewConnection(databaseURL string, maxConns, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, run *core.FailoverWorkflowRun) error {
	query := `
		INSERT INTO failover_runs (
			run_id, target, trigger_reason, metadata, start_time,
			current_state, status, step_history, failure_reason,
			run_context, updated_at, ended_at
		) VALUES (
			:run_id, :target, :trigger_reason, :metadata, :start_time,
			:current_state, :status, :step_history, :failure_reason,
			:run_context, :updated_at, :ended_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		var pqErr *pq.Error
		// 23505: the partial unique index on running targets fired
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return core.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, run *core.FailoverWorkflowRun) error {
	query := `
		UPDATE failover_runs SET
			current_state = :current_state,
			status = :status,
			step_history = :step_history,
			failure_reason = :failure_reason,
			run_context = :run_context,
			updated_at = :updated_at,
			ended_at = :ended_at
		WHERE run_id = :run_id`

	res, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrRunNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, runID string) (*core.FailoverWorkflowRun, error) {
	var run core.FailoverWorkflowRun
	query := `SELECT * FROM failover_runs WHERE run_id = $1`
	err := s.db.GetContext(ctx, &run, query, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*core.FailoverWorkflowRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []*core.FailoverWorkflowRun{}
	query := `SELECT * FROM failover_runs ORDER BY start_time DESC LIMIT $1`
	err := s.db.SelectContext(ctx, &runs, query, limit)
	return runs, err
}

func (s *PostgresStore) ListRunning(ctx context.Context) ([]*core.FailoverWorkflowRun, error) {
	runs := []*core.FailoverWorkflowRun{}
	query := `SELECT * FROM failover_runs WHERE status = $1 ORDER BY start_time`
	err := s.db.SelectContext(ctx, &runs, query, core.RunRunning)
	return runs, err
}
