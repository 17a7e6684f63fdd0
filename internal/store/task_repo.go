package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskStatus enumerates background task lifecycle states.
const (
	TaskStatusPending = "Pending"
	TaskStatusRunning = "Running"
	TaskStatusSuccess = "Success"
	TaskStatusFailure = "Failure"
)

// Task represents a background task row.
type Task struct {
	ID             string
	Name           string
	Status         string
	Parameters     []byte
	ParametersHash string
	Result         []byte
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskRepo defines background task storage operations.
type TaskRepo interface {
	InsertTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, name, status string, limit, offset int) ([]*Task, error)

	// ClaimTask moves a Pending task to Running. It reports false when the
	// task was already claimed, so a task runs at most once.
	ClaimTask(ctx context.Context, id string) (bool, error)

	// FinishTask records the terminal status of a Running task.
	FinishTask(ctx context.Context, id, status string, result []byte, errMsg string) error
}

// PostgresTaskRepo implements TaskRepo using PostgreSQL.
type PostgresTaskRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepo creates a PostgresTaskRepo.
func NewPostgresTaskRepo(pool *pgxpool.Pool) *PostgresTaskRepo {
	return &PostgresTaskRepo{pool: pool}
}

const taskColumns = `id, name, status, parameters, parameters_hash,
       COALESCE(result, 'null'::jsonb), COALESCE(error,''), created_at, updated_at`

func (r *PostgresTaskRepo) InsertTask(ctx context.Context, t *Task) error {
	const q = `
INSERT INTO background_tasks (id, name, status, parameters, parameters_hash, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,now(),now())
RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, t.ID, t.Name, t.Status, t.Parameters, t.ParametersHash).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepo) GetTask(ctx context.Context, id string) (*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM background_tasks WHERE id = $1`
	t := &Task{}
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.Name, &t.Status, &t.Parameters, &t.ParametersHash,
		&t.Result, &t.Error, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		// invalid_text_representation: id is not a UUID, so no row can match.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (r *PostgresTaskRepo) ListTasks(ctx context.Context, name, status string, limit, offset int) ([]*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM background_tasks WHERE 1=1`
	args := []any{}
	idx := 1
	if name != "" {
		q += fmt.Sprintf(" AND name = $%d", idx)
		args = append(args, name)
		idx++
	}
	if status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Status, &t.Parameters, &t.ParametersHash,
			&t.Result, &t.Error, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PostgresTaskRepo) ClaimTask(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE background_tasks SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`
	tag, err := r.pool.Exec(ctx, q, TaskStatusRunning, id, TaskStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresTaskRepo) FinishTask(ctx context.Context, id, status string, result []byte, errMsg string) error {
	const q = `UPDATE background_tasks SET status=$1, result=$2, error=NULLIF($3,''), updated_at=now() WHERE id=$4`
	tag, err := r.pool.Exec(ctx, q, status, result, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
