package rebuild

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// pgForeignKeyViolation is SQLSTATE foreign_key_violation.
const pgForeignKeyViolation = "23503"

// isForeignKeyViolation recognizes referential failures from either driver.
func isForeignKeyViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return false
}

// checkReferences verifies every deferred foreign key before the commit.
// It returns a *ReferenceError for the first violation, a *store.StatementError
// if the check itself failed, or nil.
func checkReferences(ctx context.Context, uow *store.UnitOfWork, d schema.Dialect) error {
	if d.Name() == schema.DriverPostgres {
		return checkReferencesPostgres(ctx, uow)
	}
	for _, t := range schema.Tables() {
		if err := checkTableSQLite(ctx, uow, d, t); err != nil {
			return err
		}
	}
	return nil
}

// checkTableSQLite runs PRAGMA foreign_key_check, which reports violations
// regardless of deferral. Its rowid is mapped back to the transaction id.
func checkTableSQLite(ctx context.Context, uow *store.UnitOfWork, d schema.Dialect, t schema.Table) error {
	qualified := d.Qualify(t.Name)
	check := fmt.Sprintf("PRAGMA foreign_key_check(%s)", qualified)

	rows, err := uow.Query(ctx, check)
	if err != nil {
		return &store.StatementError{SQL: check, Err: err}
	}

	var (
		found  bool
		rowid  sql.NullInt64
		parent string
	)
	if rows.Next() {
		var table string
		var fkid int64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			rows.Close()
			return &store.StatementError{SQL: check, Err: err}
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return &store.StatementError{SQL: check, Err: err}
	}
	rows.Close()

	if !found {
		return nil
	}

	refErr := &ReferenceError{Table: t.Name, Parent: unqualify(d, parent)}
	if rowid.Valid {
		lookup := fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", schema.TransactionIDColumn, qualified)
		rows, err := uow.Query(ctx, lookup, rowid.Int64)
		if err != nil {
			return &store.StatementError{SQL: lookup, Err: err}
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&refErr.TransactionID); err != nil {
				return &store.StatementError{SQL: lookup, Err: err}
			}
		}
	}
	return refErr
}

// checkReferencesPostgres makes every deferred constraint immediate, which
// forces Postgres to validate all pending rows now.
func checkReferencesPostgres(ctx context.Context, uow *store.UnitOfWork) error {
	const stmt = "SET CONSTRAINTS ALL IMMEDIATE"
	if err := uow.Apply(ctx, store.Exec(stmt), false); err != nil {
		return pgReferenceError(err)
	}
	return nil
}

// pgReferenceError turns a foreign key violation into a *ReferenceError.
// Postgres reports the constraint, not the parent table, so Parent holds
// the constraint name. Other errors pass through.
func pgReferenceError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return &ReferenceError{
			Table:  pgErr.TableName,
			Parent: pgErr.ConstraintName,
			Detail: pgErr.Detail,
		}
	}
	return err
}

// unqualify strips the side-schema prefix from a parent table name so
// errors name tables the way schema.Tables does.
func unqualify(d schema.Dialect, name string) string {
	for _, t := range schema.Tables() {
		if d.Qualify(t.Name) == name {
			return t.Name
		}
	}
	return name
}
