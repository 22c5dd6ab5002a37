package pgstore

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

// uniqueViolation is the SQLSTATE raised when a unique constraint is violated.
const uniqueViolation = "23505"

const (
	entityColumns  = "workflow_name, id, status, version, created_at, updated_at"
	historyColumns = "id, workflow_name, entity_id, status_old, status_new, change_reason, changed_by_id, changed_by_role, path_type, created_at"
)

// InitSchema creates the tables used by Store.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS statusflow_entities (
    workflow_name TEXT NOT NULL,
    id            TEXT NOT NULL,
    status        INTEGER NOT NULL,
    version       BIGINT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (workflow_name, id)
);

CREATE INDEX IF NOT EXISTS idx_entities_workflow_name_status_id
    ON statusflow_entities (workflow_name, status, id);

CREATE TABLE IF NOT EXISTS statusflow_history (
    seq             BIGSERIAL PRIMARY KEY,
    id              TEXT NOT NULL UNIQUE,
    workflow_name   TEXT NOT NULL,
    entity_id       TEXT NOT NULL,
    status_old      INTEGER NOT NULL,
    status_new      INTEGER NOT NULL,
    change_reason   TEXT NOT NULL,
    changed_by_id   TEXT NOT NULL,
    changed_by_role TEXT NOT NULL,
    path_type       INTEGER NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_workflow_name_entity_id
    ON statusflow_history (workflow_name, entity_id, seq);`)
	if err != nil {
		return errors.Wrap(err, "init schema")
	}

	return nil
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ statusflow.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, e statusflow.Entity, h statusflow.History) error {
	meta := j.MKV{"workflow": e.Workflow, "entity_id": e.ID}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO statusflow_entities ("+entityColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
			e.Workflow, e.ID, int(e.Status), e.Version, e.CreatedAt, e.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return errors.Wrap(statusflow.ErrEntityExists, "", meta)
		} else if err != nil {
			return errors.Wrap(err, "insert entity", meta)
		}

		return insertHistory(ctx, tx, h)
	})
}

func (s *Store) Lookup(ctx context.Context, workflow, id string) (*statusflow.Entity, error) {
	return lookupEntity(ctx, s.pool, workflow, id)
}

func (s *Store) Transition(ctx context.Context, u statusflow.Update) (*statusflow.Entity, error) {
	meta := j.MKV{"workflow": u.Workflow, "entity_id": u.EntityID}

	var updated *statusflow.Entity
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE statusflow_entities
			SET status = $1, version = version + 1, updated_at = $2
			WHERE workflow_name = $3 AND id = $4 AND status = $5 AND version = $6
			RETURNING `+entityColumns,
			int(u.To), u.History.CreatedAt, u.Workflow, u.EntityID, int(u.From), u.Version,
		)

		e, err := entityScan(row)
		if errors.Is(err, pgx.ErrNoRows) {
			current, err := lookupEntity(ctx, tx, u.Workflow, u.EntityID)
			if err != nil {
				return err
			}

			meta["expected_status"] = u.From.String()
			meta["current_status"] = current.Status.String()
			return errors.Wrap(statusflow.ErrStatusConflict, "", meta)
		} else if err != nil {
			return errors.Wrap(err, "update entity", meta)
		}

		err = insertHistory(ctx, tx, u.History)
		if err != nil {
			return err
		}

		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Store) History(ctx context.Context, workflow, id string) ([]statusflow.History, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+historyColumns+" FROM statusflow_history WHERE workflow_name = $1 AND entity_id = $2 ORDER BY seq ASC",
		workflow, id)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
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

	return res, rows.Err()
}

func (s *Store) List(ctx context.Context, workflow string, status statusflow.StatusCode, afterID string, limit int) ([]statusflow.Entity, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+entityColumns+" FROM statusflow_entities WHERE workflow_name = $1 AND status = $2 AND id > $3 ORDER BY id ASC LIMIT $4",
		workflow, int(status), afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query entities")
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

	return res, rows.Err()
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lookupEntity(ctx context.Context, q querier, workflow, id string) (*statusflow.Entity, error) {
	e, err := entityScan(q.QueryRow(ctx,
		"SELECT "+entityColumns+" FROM statusflow_entities WHERE workflow_name = $1 AND id = $2",
		workflow, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(statusflow.ErrEntityNotFound, "", j.MKV{"workflow": workflow, "entity_id": id})
	} else if err != nil {
		return nil, errors.Wrap(err, "lookup entity")
	}

	return e, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, h statusflow.History) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO statusflow_history ("+historyColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		h.ID, h.Workflow, h.EntityID, int(h.StatusOld), int(h.StatusNew), h.ChangeReason,
		h.ChangedBy.ID, string(h.ChangedBy.Role), int(h.PathType), h.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert history", j.MKV{"history_id": h.ID})
	}

	return nil
}

func entityScan(row pgx.Row) (*statusflow.Entity, error) {
	var (
		e      statusflow.Entity
		status int
	)
	err := row.Scan(&e.Workflow, &e.ID, &status, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = statusflow.StatusCode(status)
	return &e, nil
}

func historyScan(row pgx.Row) (*statusflow.History, error) {
	var (
		h                    statusflow.History
		statusOld, statusNew int
		role                 string
		pathType             int
	)
	err := row.Scan(&h.ID, &h.Workflow, &h.EntityID, &statusOld, &statusNew, &h.ChangeReason,
		&h.ChangedBy.ID, &role, &pathType, &h.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "scan history")
	}

	h.StatusOld = statusflow.StatusCode(statusOld)
	h.StatusNew = statusflow.StatusCode(statusNew)
	h.ChangedBy.Role = statusflow.Role(role)
	h.PathType = statusflow.PathType(pathType)
	return &h, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
