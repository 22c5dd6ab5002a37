package sqlstore_test

import (
	"database/sql"
	"testing"

	"github.com/corverroos/truss"
	_ "github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`
	create table statusflow_entities (
		workflow_name          varchar(255) not null,
		id                     varchar(255) not null,
		status                 int not null,
		version                bigint not null,
		created_at             datetime(3) not null,
		updated_at             datetime(3) not null,

		primary key(workflow_name, id),

		index by_workflow_name_status_id (workflow_name, status, id)
	)`,
	`
	create table statusflow_history (
		seq                bigint not null auto_increment,
		id                 varchar(255) not null,
		workflow_name      varchar(255) not null,
		entity_id          varchar(255) not null,
		status_old         int not null,
		status_new         int not null,
		change_reason      text not null,
		changed_by_id      varchar(255) not null,
		changed_by_role    varchar(32) not null,
		path_type          int not null,
		created_at         datetime(3) not null,

		primary key (seq),
		unique index by_id (id),
		index by_workflow_name_entity_id (workflow_name, entity_id, seq)
	)
`,
}

func ConnectForTesting(t *testing.T) *sql.DB {
	return truss.ConnectForTesting(t, migrations...)
}
