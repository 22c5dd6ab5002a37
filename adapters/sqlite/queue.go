package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/julo/statusflow"
)

// TaskQueue is a statusflow.TaskQueue backed by the statusflow_tasks table.
type TaskQueue struct {
	db *sql.DB
}

func NewTaskQueue(db *sql.DB) *TaskQueue {
	return &TaskQueue{db: db}
}

var _ statusflow.TaskQueue = (*TaskQueue)(nil)

func (q *TaskQueue) Enqueue(ctx context.Context, t statusflow.Task) error {
	args, err := json.Marshal(t.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO statusflow_tasks (id, name, args, attempt, last_error, run_at, visible_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			args = excluded.args,
			attempt = excluded.attempt,
			last_error = excluded.last_error,
			run_at = excluded.run_at,
			visible_at = excluded.visible_at`,
		t.ID, t.Name, string(args), t.Attempt, t.LastError, t.RunAt.UnixMilli(), t.RunAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	return nil
}

func (q *TaskQueue) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]statusflow.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, args, attempt, last_error, run_at
		FROM statusflow_tasks
		WHERE visible_at <= ?
		ORDER BY visible_at ASC, id ASC
		LIMIT ?`,
		now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	var tasks []statusflow.Task
	for rows.Next() {
		t, err := taskScan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	rows.Close()

	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}

	visibleAt := now.Add(lease).UnixMilli()
	for _, t := range tasks {
		_, err := tx.ExecContext(ctx, "UPDATE statusflow_tasks SET visible_at = ? WHERE id = ?", visibleAt, t.ID)
		if err != nil {
			return nil, fmt.Errorf("lease task: %w", err)
		}
	}

	return tasks, tx.Commit()
}

func (q *TaskQueue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM statusflow_tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("ack task: %w", err)
	}

	return nil
}

func taskScan(row scannable) (*statusflow.Task, error) {
	var (
		t     statusflow.Task
		args  string
		runAt int64
	)
	err := row.Scan(&t.ID, &t.Name, &args, &t.Attempt, &t.LastError, &runAt)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	err = json.Unmarshal([]byte(args), &t.Args)
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}

	t.RunAt = time.UnixMilli(runAt)
	return &t, nil
}
