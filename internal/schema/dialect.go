package schema

import (
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Driver names accepted by New.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultNamespace is the side-schema namespace when none is configured.
const DefaultNamespace = "attachment"

// DefaultLedgerTable is the ledger's transaction table when none is configured.
const DefaultLedgerTable = "transactions"

// Options names the side-schema namespace and the ledger table it hangs off.
type Options struct {
	Namespace string
	Ledger    string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Ledger == "" {
		o.Ledger = DefaultLedgerTable
	}
	return o
}

func (o Options) validate() error {
	if !identifier.MatchString(o.Namespace) {
		return fmt.Errorf("invalid side-schema namespace %q", o.Namespace)
	}
	if !identifier.MatchString(o.Ledger) {
		return fmt.Errorf("invalid ledger table name %q", o.Ledger)
	}
	return nil
}

// Dialect renders the declarative side-schema for one database.
type Dialect interface {
	// Name returns the driver name (DriverSQLite or DriverPostgres).
	Name() string
	// Options returns the resolved namespace and ledger table.
	Options() Options

	// Qualify returns the fully qualified name of a side table.
	Qualify(table string) string
	// ViewName returns the qualified name of a table's view.
	ViewName(table string) string

	// DropStatements removes every side table and view if present.
	DropStatements() []string
	// ClearStatements deletes every side-table row, leaving tables and
	// views in place. Dependents come first.
	ClearStatements() []string
	// CreateStatements declares the namespace and every table, idempotently.
	CreateStatements() []string
	// ViewStatements declares one view per table.
	ViewStatements() []string
	// InsertSQL returns the parameterized insert for a table.
	InsertSQL(t Table) string

	// BindValues converts row values to driver arguments.
	BindValues(values []any) ([]any, error)
	// StringListScanner returns a scanner that fills dst from a string list column.
	StringListScanner(dst *[]string) sql.Scanner
}

// New returns the dialect for a driver name. Empty option fields take
// their defaults.
func New(driver string, opts Options) (Dialect, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	switch driver {
	case DriverSQLite:
		return &sqliteDialect{opts: opts}, nil
	case DriverPostgres:
		return &postgresDialect{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}
}

// Render joins statements into a script, one statement per paragraph.
func Render(stmts []string) string {
	if len(stmts) == 0 {
		return ""
	}
	return strings.Join(stmts, ";\n\n") + ";\n"
}

func clearStatements(qualify func(string) string) []string {
	stmts := make([]string, 0, len(tables))
	for _, t := range slices.Backward(tables) {
		stmts = append(stmts, "DELETE FROM "+qualify(t.Name))
	}
	return stmts
}

// columnTypes maps a ColumnKind to the dialect's SQL type.
type columnTypes map[ColumnKind]string

// createTable renders CREATE TABLE IF NOT EXISTS for t. check returns an
// optional CHECK expression for a column.
func createTable(t Table, qualify func(string) string, ledger string, types columnTypes, check func(Column) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", qualify(t.Name))

	lines := make([]string, 0, len(t.Columns)+len(t.ForeignKeys))
	for i, c := range t.Columns {
		line := "  " + c.Name + " " + types[c.Kind]
		if !c.Nullable {
			line += " NOT NULL"
		}
		if i == 0 {
			line += " PRIMARY KEY"
		}
		if expr := check(c); expr != "" {
			line += " CHECK (" + expr + ")"
		}
		lines = append(lines, line)
	}
	for _, fk := range t.ForeignKeys {
		target := ledger
		if fk.RefTable != LedgerTable {
			target = qualify(fk.RefTable)
		}
		lines = append(lines, fmt.Sprintf(
			"  FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE ON UPDATE CASCADE DEFERRABLE INITIALLY DEFERRED",
			fk.Column, target, fk.RefColumn))
	}

	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

// viewBody renders the SELECT behind a table's view.
func viewBody(t Table, qualified, ledger string) string {
	cols := []string{"t.*"}
	for _, c := range t.AttachmentColumns() {
		cols = append(cols, "a."+c.Name)
	}
	return fmt.Sprintf("SELECT %s\nFROM %s t\nJOIN %s a ON a.%s = t.id",
		strings.Join(cols, ", "), ledger, qualified, TransactionIDColumn)
}

func smallCountCheck(c Column) string {
	if c.Kind == KindSmallCount {
		return c.Name + " BETWEEN 0 AND 255"
	}
	return ""
}
