package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/julo/statusflow"
)

const (
	entityColumns  = "workflow_name, id, status, version, created_at, updated_at"
	historyColumns = "id, workflow_name, entity_id, status_old, status_new, change_reason, changed_by_id, changed_by_role, path_type, created_at"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ statusflow.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, e statusflow.Entity, h statusflow.History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = lookupEntity(ctx, tx, e.Workflow, e.ID)
	if err == nil {
		return fmt.Errorf("create %s %s: %w", e.Workflow, e.ID, statusflow.ErrEntityExists)
	} else if !errors.Is(err, statusflow.ErrEntityNotFound) {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO statusflow_entities
		(`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Workflow, e.ID, int(e.Status), e.Version, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}

	err = insertHistory(ctx, tx, h)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Lookup(ctx context.Context, workflow, id string) (*statusflow.Entity, error) {
	return lookupEntity(ctx, s.db, workflow, id)
}

func (s *Store) Transition(ctx context.Context, u statusflow.Update) (*statusflow.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE statusflow_entities
		SET status = ?, version = version + 1, updated_at = ?
		WHERE workflow_name = ? AND id = ? AND status = ? AND version = ?`,
		int(u.To), u.History.CreatedAt.UTC(), u.Workflow, u.EntityID, int(u.From), u.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update entity: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		current, err := lookupEntity(ctx, tx, u.Workflow, u.EntityID)
		if err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("expected status %v version %d, found status %v version %d: %w",
			u.From, u.Version, current.Status, current.Version, statusflow.ErrStatusConflict)
	}

	err = insertHistory(ctx, tx, u.History)
	if err != nil {
		return nil, err
	}

	e, err := lookupEntity(ctx, tx, u.Workflow, u.EntityID)
	if err != nil {
		return nil, err
	}

	return e, tx.Commit()
}

func (s *Store) History(ctx context.Context, workflow, id string) ([]statusflow.History, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+historyColumns+" FROM statusflow_history WHERE workflow_name = ? AND entity_id = ? ORDER BY seq ASC",
		workflow, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var res []statusflow.History
	for rows.Next() {
		h, err := historyScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *h)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}

	return res, nil
}

func (s *Store) List(ctx context.Context, workflow string, status statusflow.StatusCode, afterID string, limit int) ([]statusflow.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM statusflow_entities WHERE workflow_name = ? AND status = ? AND id > ? ORDER BY id ASC LIMIT ?",
		workflow, int(status), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var res []statusflow.Entity
	for rows.Next() {
		e, err := entityScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}

	return res, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookupEntity(ctx context.Context, q querier, workflow, id string) (*statusflow.Entity, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM statusflow_entities WHERE workflow_name = ? AND id = ?",
		workflow, id)

	e, err := entityScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup %s %s: %w", workflow, id, statusflow.ErrEntityNotFound)
	} else if err != nil {
		return nil, err
	}

	return e, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, h statusflow.History) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO statusflow_history
		(`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Workflow, h.EntityID, int(h.StatusOld), int(h.StatusNew), h.ChangeReason,
		h.ChangedBy.ID, string(h.ChangedBy.Role), int(h.PathType), h.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	return nil
}

func entityScan(row scannable) (*statusflow.Entity, error) {
	var (
		e      statusflow.Entity
		status int
	)
	err := row.Scan(
		&e.Workflow,
		&e.ID,
		&status,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}

	e.Status = statusflow.StatusCode(status)
	return &e, nil
}

func historyScan(row scannable) (*statusflow.History, error) {
	var (
		h                    statusflow.History
		statusOld, statusNew int
		role                 string
		pathType             int
	)
	err := row.Scan(
		&h.ID,
		&h.Workflow,
		&h.EntityID,
		&statusOld,
		&statusNew,
		&h.ChangeReason,
		&h.ChangedBy.ID,
		&role,
		&pathType,
		&h.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	h.StatusOld = statusflow.StatusCode(statusOld)
	h.StatusNew = statusflow.StatusCode(statusNew)
	h.ChangedBy.Role = statusflow.Role(role)
	h.PathType = statusflow.PathType(pathType)
	return &h, nil
}

type scannable interface {
	Scan(dest ...any) error
}
