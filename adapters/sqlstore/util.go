package sqlstore

import (
	"context"
	"database/sql"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

func (s *SQLStore) insertHistory(ctx context.Context, tx *sql.Tx, h statusflow.History) error {
	_, err := tx.ExecContext(ctx, "insert into "+s.historyTableName+" set "+
		" id=?, workflow_name=?, entity_id=?, status_old=?, status_new=?, change_reason=?, changed_by_id=?, changed_by_role=?, path_type=?, created_at=? ",
		h.ID,
		h.Workflow,
		h.EntityID,
		int(h.StatusOld),
		int(h.StatusNew),
		h.ChangeReason,
		h.ChangedBy.ID,
		string(h.ChangedBy.Role),
		int(h.PathType),
		h.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert history", j.MKV{
			"workflow":   h.Workflow,
			"entity_id":  h.EntityID,
			"history_id": h.ID,
		})
	}

	return nil
}

// listEntityWhere queries the entity table with the provided where clause, then scans
// and returns all the rows.
func (s *SQLStore) listEntityWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]statusflow.Entity, error) {
	rows, err := dbc.QueryContext(ctx, s.entitySelectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listEntityWhere")
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
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

func (s *SQLStore) listHistoryWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]statusflow.History, error) {
	rows, err := dbc.QueryContext(ctx, s.historySelectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listHistoryWhere")
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
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

func entityScan(row row) (*statusflow.Entity, error) {
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
		return nil, errors.Wrap(statusflow.ErrEntityNotFound, "")
	} else if err != nil {
		return nil, errors.Wrap(err, "entityScan")
	}

	e.Status = statusflow.StatusCode(status)
	return &e, nil
}

func historyScan(row row) (*statusflow.History, error) {
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
		return nil, errors.Wrap(err, "historyScan")
	}

	h.StatusOld = statusflow.StatusCode(statusOld)
	h.StatusNew = statusflow.StatusCode(statusNew)
	h.ChangedBy.Role = statusflow.Role(role)
	h.PathType = statusflow.PathType(pathType)
	return &h, nil
}

// row is a common interface for *sql.Rows and *sql.Row.
type row interface {
	Scan(dest ...any) error
}
