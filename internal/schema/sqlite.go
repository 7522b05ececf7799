package schema

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// sqliteDialect has no schema namespaces, so the namespace becomes a
// table name prefix.
type sqliteDialect struct {
	opts Options
}

var sqliteTypes = columnTypes{
	KindID:         "BIGINT",
	KindText:       "TEXT",
	KindBytes:      "BLOB",
	KindStringList: "TEXT",
	KindSmallCount: "TINYINT",
	KindInteger:    "BIGINT",
	KindBool:       "BOOLEAN",
}

func (d *sqliteDialect) Name() string     { return DriverSQLite }
func (d *sqliteDialect) Options() Options { return d.opts }

func (d *sqliteDialect) Qualify(table string) string {
	return d.opts.Namespace + "_" + table
}

func (d *sqliteDialect) ViewName(table string) string {
	return d.Qualify(table) + "_view"
}

// DropStatements drops views first, then tables in reverse dependency order.
func (d *sqliteDialect) DropStatements() []string {
	stmts := make([]string, 0, 2*len(tables))
	for _, t := range tables {
		stmts = append(stmts, "DROP VIEW IF EXISTS "+d.ViewName(t.Name))
	}
	for _, t := range slices.Backward(tables) {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+d.Qualify(t.Name))
	}
	return stmts
}

func (d *sqliteDialect) ClearStatements() []string { return clearStatements(d.Qualify) }

func (d *sqliteDialect) CreateStatements() []string {
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, createTable(t, d.Qualify, d.opts.Ledger, sqliteTypes, sqliteCheck))
	}
	return stmts
}

func sqliteCheck(c Column) string {
	if c.Kind == KindStringList {
		return "json_type(" + c.Name + ") = 'array'"
	}
	return smallCountCheck(c)
}

func (d *sqliteDialect) ViewStatements() []string {
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS\n%s",
			d.ViewName(t.Name), viewBody(t, d.Qualify(t.Name), d.opts.Ledger)))
	}
	return stmts
}

func (d *sqliteDialect) InsertSQL(t Table) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Qualify(t.Name), strings.Join(t.ColumnNames(), ", "), marks)
}

// BindValues encodes string lists as JSON array text.
func (d *sqliteDialect) BindValues(values []any) ([]any, error) {
	args := make([]any, len(values))
	for i, v := range values {
		list, ok := v.(StringList)
		if !ok {
			args[i] = v
			continue
		}
		if list == nil {
			list = StringList{}
		}
		b, err := json.Marshal([]string(list))
		if err != nil {
			return nil, fmt.Errorf("bind string list: %w", err)
		}
		args[i] = string(b)
	}
	return args, nil
}

func (d *sqliteDialect) StringListScanner(dst *[]string) sql.Scanner {
	return jsonStringList{dst: dst}
}

// jsonStringList scans a JSON array column into a []string.
type jsonStringList struct {
	dst *[]string
}

func (s jsonStringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		*s.dst = nil
		return nil
	default:
		return fmt.Errorf("scan string list: unsupported source type %T", src)
	}
	list := []string{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	*s.dst = list
	return nil
}
