package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// postgresDialect places the side-schema in its own namespace.
type postgresDialect struct {
	opts Options
}

var postgresTypes = columnTypes{
	KindID:         "BIGINT",
	KindText:       "TEXT",
	KindBytes:      "BYTEA",
	KindStringList: "TEXT[]",
	KindSmallCount: "SMALLINT",
	KindInteger:    "BIGINT",
	KindBool:       "BOOLEAN",
}

func (d *postgresDialect) Name() string     { return DriverPostgres }
func (d *postgresDialect) Options() Options { return d.opts }

func (d *postgresDialect) Qualify(table string) string {
	return d.opts.Namespace + "." + table
}

func (d *postgresDialect) ViewName(table string) string {
	return d.Qualify(table + "_view")
}

// DropStatements drops the namespace with everything in it.
func (d *postgresDialect) DropStatements() []string {
	return []string{"DROP SCHEMA IF EXISTS " + d.opts.Namespace + " CASCADE"}
}

func (d *postgresDialect) ClearStatements() []string { return clearStatements(d.Qualify) }

func (d *postgresDialect) CreateStatements() []string {
	stmts := make([]string, 0, len(tables)+1)
	stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+d.opts.Namespace)
	for _, t := range tables {
		stmts = append(stmts, createTable(t, d.Qualify, d.opts.Ledger, postgresTypes, smallCountCheck))
	}
	return stmts
}

func (d *postgresDialect) ViewStatements() []string {
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s",
			d.ViewName(t.Name), viewBody(t, d.Qualify(t.Name), d.opts.Ledger)))
	}
	return stmts
}

func (d *postgresDialect) InsertSQL(t Table) string {
	marks := make([]string, len(t.Columns))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Qualify(t.Name), strings.Join(t.ColumnNames(), ", "), strings.Join(marks, ", "))
}

// BindValues wraps string lists for TEXT[] columns.
func (d *postgresDialect) BindValues(values []any) ([]any, error) {
	args := make([]any, len(values))
	for i, v := range values {
		if list, ok := v.(StringList); ok {
			if list == nil {
				list = StringList{}
			}
			args[i] = pq.Array([]string(list))
			continue
		}
		args[i] = v
	}
	return args, nil
}

func (d *postgresDialect) StringListScanner(dst *[]string) sql.Scanner {
	return pq.Array(dst)
}
