package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

// mysqlDuplicateEntry is the server error number returned when a unique key is violated.
const mysqlDuplicateEntry = 1062

type SQLStore struct {
	writer *sql.DB
	reader *sql.DB

	entityTableName     string
	entitySelectPrefix  string
	historyTableName    string
	historySelectPrefix string
}

func New(writer *sql.DB, reader *sql.DB, entityTableName, historyTableName string) *SQLStore {
	s := &SQLStore{
		writer:           writer,
		reader:           reader,
		entityTableName:  entityTableName,
		historyTableName: historyTableName,
	}

	entityCols := " `workflow_name`, `id`, `status`, `version`, `created_at`, `updated_at` "
	s.entitySelectPrefix = " select " + entityCols + " from " + s.entityTableName + " where "

	historyCols := " `id`, `workflow_name`, `entity_id`, `status_old`, `status_new`, `change_reason`, `changed_by_id`, `changed_by_role`, `path_type`, `created_at` "
	s.historySelectPrefix = " select " + historyCols + " from " + s.historyTableName + " where "

	return s
}

var _ statusflow.Store = (*SQLStore)(nil)

func (s *SQLStore) Create(ctx context.Context, e statusflow.Entity, h statusflow.History) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "insert into "+s.entityTableName+" set "+
		" workflow_name=?, id=?, status=?, version=?, created_at=?, updated_at=? ",
		e.Workflow,
		e.ID,
		int(e.Status),
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return errors.Wrap(statusflow.ErrEntityExists, "", j.MKV{"workflow": e.Workflow, "entity_id": e.ID})
	} else if err != nil {
		return errors.Wrap(err, "failed to create entity", j.MKV{"workflow": e.Workflow, "entity_id": e.ID})
	}

	err = s.insertHistory(ctx, tx, h)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) Lookup(ctx context.Context, workflow, id string) (*statusflow.Entity, error) {
	return entityScan(s.reader.QueryRowContext(ctx, s.entitySelectPrefix+"workflow_name=? and id=?", workflow, id))
}

func (s *SQLStore) Transition(ctx context.Context, u statusflow.Update) (*statusflow.Entity, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	meta := j.MKV{"workflow": u.Workflow, "entity_id": u.EntityID}

	res, err := tx.ExecContext(ctx, "update "+s.entityTableName+" set "+
		" status=?, version=version+1, updated_at=? where workflow_name=? and id=? and status=? and version=?",
		int(u.To),
		u.History.CreatedAt,
		u.Workflow,
		u.EntityID,
		int(u.From),
		u.Version,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update entity", meta)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		current, err := entityScan(tx.QueryRowContext(ctx, s.entitySelectPrefix+"workflow_name=? and id=?", u.Workflow, u.EntityID))
		if err != nil {
			return nil, err
		}

		meta["expected_status"] = u.From.String()
		meta["current_status"] = current.Status.String()
		return nil, errors.Wrap(statusflow.ErrStatusConflict, "", meta)
	}

	err = s.insertHistory(ctx, tx, u.History)
	if err != nil {
		return nil, err
	}

	e, err := entityScan(tx.QueryRowContext(ctx, s.entitySelectPrefix+"workflow_name=? and id=?", u.Workflow, u.EntityID))
	if err != nil {
		return nil, err
	}

	return e, tx.Commit()
}

func (s *SQLStore) History(ctx context.Context, workflow, id string) ([]statusflow.History, error) {
	return s.listHistoryWhere(ctx, s.reader, "workflow_name=? and entity_id=? order by seq asc", workflow, id)
}

func (s *SQLStore) List(ctx context.Context, workflow string, status statusflow.StatusCode, afterID string, limit int) ([]statusflow.Entity, error) {
	return s.listEntityWhere(ctx, s.reader, "workflow_name=? and status=? and id>? order by id asc limit ?", workflow, int(status), afterID, limit)
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return stderrors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
