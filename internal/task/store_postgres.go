package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const selectTaskColumns = `SELECT id::text, learner_id, type, subject, title, description, due_date,
	task_number, completed, completed_at, start_date_of_week, frequency, created_at,
	attributes, attempts
	FROM tasks`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a PostgreSQL-backed task store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.BatchCreateTasks(ctx, []Task{t}); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *PostgresStore) BatchCreateTasks(ctx context.Context, tasks []Task) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.insertTasks(ctx, tx, tasks)
	})
}

func (s *PostgresStore) insertTasks(ctx context.Context, tx pgx.Tx, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		if t.Frequency == "" {
			t.Frequency = FrequencyWeekly
		}
		if err := t.Validate(); err != nil {
			return err
		}
		attrs, err := MarshalAttributes(t.Attributes)
		if err != nil {
			return err
		}
		attempts, err := json.Marshal(t.Attempts)
		if err != nil {
			return fmt.Errorf("marshal attempts: %w", err)
		}
		batch.Queue(
			`INSERT INTO tasks (id, learner_id, type, subject, title, description, due_date,
			   task_number, completed, completed_at, start_date_of_week, frequency, created_at,
			   attributes, attempts)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15::jsonb)`,
			t.ID,
			t.LearnerID,
			string(t.Type()),
			string(t.Subject),
			t.Title,
			t.Description,
			t.DueDate,
			t.TaskNumber,
			t.Completed,
			t.CompletedAt,
			t.StartDateOfWeek,
			t.Frequency,
			t.CreatedAt,
			string(attrs),
			string(attempts),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range tasks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return classify("insert task", err)
		}
	}
	if err := results.Close(); err != nil {
		return classify("insert tasks", err)
	}
	return nil
}

func (s *PostgresStore) GetTasksForLearner(ctx context.Context, learnerID string, weekStart time.Time) ([]Task, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := selectTaskColumns + ` WHERE learner_id = $1`
	args := []any{learnerID}
	if !weekStart.IsZero() {
		query += ` AND start_date_of_week = $2`
		args = append(args, weekStart)
	}
	query += ` ORDER BY start_date_of_week ASC, task_number ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("query tasks", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate tasks", err)
	}
	return tasks, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, learnerID, taskID string) (Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTask(s.pool.QueryRow(ctx,
		selectTaskColumns+` WHERE learner_id = $1 AND id = $2::uuid`,
		learnerID,
		taskID,
	))
	if err != nil {
		return Task{}, notFoundOr(err, "task", taskID)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTaskCompletion(ctx context.Context, learnerID, taskID string, mutate TaskMutation) (Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Task{}, classify("begin completion", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := scanTask(tx.QueryRow(ctx,
		selectTaskColumns+` WHERE learner_id = $1 AND id = $2::uuid FOR UPDATE`,
		learnerID,
		taskID,
	))
	if err != nil {
		return Task{}, notFoundOr(err, "task", taskID)
	}

	t := stored.Clone()
	delta, err := mutate(&t)
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return stored, ErrNoChange
		}
		return Task{}, err
	}

	attempts, err := json.Marshal(t.Attempts)
	if err != nil {
		return Task{}, fmt.Errorf("marshal attempts: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tasks
		 SET completed = $3, completed_at = $4, attempts = $5::jsonb
		 WHERE learner_id = $1 AND id = $2::uuid`,
		learnerID,
		taskID,
		t.Completed,
		t.CompletedAt,
		string(attempts),
	); err != nil {
		return Task{}, classify("update task", err)
	}

	if delta.CompletedUnit != "" {
		// Set union: concurrent completions serialize on the learner row.
		if _, err := tx.Exec(ctx,
			`UPDATE learners
			 SET completed_units = array_append(completed_units, $2),
			     version = version + 1,
			     updated_at = NOW()
			 WHERE id = $1 AND NOT ($2 = ANY(completed_units))`,
			learnerID,
			delta.CompletedUnit,
		); err != nil {
			return Task{}, classify("append completed unit", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Task{}, classify("commit completion", err)
	}
	return t, nil
}

func (s *PostgresStore) GetProgress(ctx context.Context, learnerID string) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanProgress(s.pool.QueryRow(ctx,
		`SELECT id, completed_units, current_week_start, version, updated_at
		 FROM learners WHERE id = $1`,
		learnerID,
	))
	if err != nil {
		return Progress{}, notFoundOr(err, "learner", learnerID)
	}
	return p, nil
}

func (s *PostgresStore) EnsureProgress(ctx context.Context, learnerID string) (Progress, error) {
	if learnerID == "" {
		return Progress{}, fmt.Errorf("%w: learner_id is required", ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO learners (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		learnerID,
	); err != nil {
		return Progress{}, classify("create learner", err)
	}
	return s.GetProgress(ctx, learnerID)
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, learnerID string, expectedVersion int64, mutate ProgressMutation) (Progress, error) {
	current, err := s.GetProgress(ctx, learnerID)
	if err != nil {
		return Progress{}, err
	}
	if current.Version != expectedVersion {
		return Progress{}, fmt.Errorf("%w: learner %s at version %d, expected %d", ErrConflict, learnerID, current.Version, expectedVersion)
	}

	p := current.Clone()
	if err := mutate(&p); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current, nil
		}
		return Progress{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	updated, err := scanProgress(s.pool.QueryRow(ctx,
		`UPDATE learners
		 SET completed_units = $3, current_week_start = $4, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2
		 RETURNING id, completed_units, current_week_start, version, updated_at`,
		learnerID,
		expectedVersion,
		p.CompletedUnits,
		p.CurrentWeekStart,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Progress{}, fmt.Errorf("%w: learner %s changed concurrently", ErrConflict, learnerID)
		}
		return Progress{}, classify("update learner", err)
	}
	return updated, nil
}

func (s *PostgresStore) CommitAssignment(ctx context.Context, learnerID string, expectedVersion int64, weekStart time.Time, tasks []Task) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE learners
			 SET current_week_start = $3, version = version + 1, updated_at = NOW()
			 WHERE id = $1 AND version = $2
			   AND (current_week_start IS NULL OR current_week_start <= $3)`,
			learnerID,
			expectedVersion,
			weekStart,
		)
		if err != nil {
			return classify("advance week anchor", err)
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: week anchor for learner %s changed concurrently", ErrConflict, learnerID)
		}
		return s.insertTasks(ctx, tx, tasks)
	})
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		t           Task
		typ         string
		subject     string
		attrsBytes  []byte
		attemptData []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.LearnerID,
		&typ,
		&subject,
		&t.Title,
		&t.Description,
		&t.DueDate,
		&t.TaskNumber,
		&t.Completed,
		&t.CompletedAt,
		&t.StartDateOfWeek,
		&t.Frequency,
		&t.CreatedAt,
		&attrsBytes,
		&attemptData,
	); err != nil {
		return Task{}, err
	}

	attrs, err := UnmarshalAttributes(Type(typ), attrsBytes)
	if err != nil {
		return Task{}, err
	}
	t.Attributes = attrs
	t.Subject = Subject(subject)
	if len(attemptData) > 0 {
		if err := json.Unmarshal(attemptData, &t.Attempts); err != nil {
			return Task{}, fmt.Errorf("decode attempts: %w", err)
		}
	}
	return t, nil
}

func scanProgress(row pgx.Row) (Progress, error) {
	var p Progress
	if err := row.Scan(
		&p.LearnerID,
		&p.CompletedUnits,
		&p.CurrentWeekStart,
		&p.Version,
		&p.UpdatedAt,
	); err != nil {
		return Progress{}, err
	}
	if p.CompletedUnits == nil {
		p.CompletedUnits = []string{}
	}
	return p, nil
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return classify("get "+kind, err)
}

// classify maps driver errors onto the package error taxonomy.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ErrValidation):
		return err
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
	case errors.As(err, &pgErr) && pgErr.Code == "23503":
		return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	case errors.As(err, &pgErr):
		return fmt.Errorf("%s: %w", op, err)
	default:
		// Connection-level failures carry no SQLSTATE.
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
}
