package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnitClosed is returned when a unit of work is used after it committed
// or rolled back.
var ErrUnitClosed = errors.New("unit of work is closed")

// commitSQL labels commit failures in StatementError.
const commitSQL = "COMMIT"

// Statement is one parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// Exec builds a Statement.
func Exec(query string, args ...any) *Statement {
	return &Statement{SQL: query, Args: args}
}

// StatementError reports the statement that failed inside a unit of work.
// The unit has already been rolled back when it is returned.
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed: %v\n  sql: %s", e.Err, e.SQL)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// UnitOfWork applies statements on a single transaction.
// It is not safe for concurrent use.
type UnitOfWork struct {
	tx       *sql.Tx
	prepared map[string]*sql.Stmt
	applied  int
	closed   bool
}

// Begin starts a unit of work. Callers should defer Close.
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &UnitOfWork{tx: tx, prepared: make(map[string]*sql.Stmt)}, nil
}

// Apply executes stmt and, if finalize is set, commits.
//
// A nil stmt executes nothing, so Apply(ctx, nil, true) is a bare commit.
// On any failure the unit is rolled back and a *StatementError is returned.
func (u *UnitOfWork) Apply(ctx context.Context, stmt *Statement, finalize bool) error {
	if u.closed {
		return ErrUnitClosed
	}

	if stmt != nil {
		if err := u.exec(ctx, stmt); err != nil {
			u.rollback()
			return &StatementError{SQL: stmt.SQL, Err: err}
		}
		u.applied++
	}

	if !finalize {
		return nil
	}

	u.closeStatements()
	u.closed = true
	if err := u.tx.Commit(); err != nil {
		u.tx.Rollback()
		return &StatementError{SQL: commitSQL, Err: err}
	}
	return nil
}

// exec runs parameterized statements through the prepared cache.
// Statements without arguments (DDL) run directly.
func (u *UnitOfWork) exec(ctx context.Context, stmt *Statement) error {
	if len(stmt.Args) == 0 {
		_, err := u.tx.ExecContext(ctx, stmt.SQL)
		return err
	}

	ps, ok := u.prepared[stmt.SQL]
	if !ok {
		var err error
		ps, err = u.tx.PrepareContext(ctx, stmt.SQL)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		u.prepared[stmt.SQL] = ps
	}
	_, err := ps.ExecContext(ctx, stmt.Args...)
	return err
}

// Query runs a read inside the unit of work.
// Callers are responsible for closing the returned rows.
func (u *UnitOfWork) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if u.closed {
		return nil, ErrUnitClosed
	}
	return u.tx.QueryContext(ctx, query, args...)
}

// Abort rolls the unit back. Aborting a closed unit returns ErrUnitClosed.
func (u *UnitOfWork) Abort() error {
	if u.closed {
		return ErrUnitClosed
	}
	return u.rollback()
}

// Close rolls back if the unit is still open. Safe to call more than once.
func (u *UnitOfWork) Close() error {
	if u.closed {
		return nil
	}
	return u.rollback()
}

// Applied returns how many statements executed successfully.
func (u *UnitOfWork) Applied() int {
	return u.applied
}

// Closed reports whether the unit has committed or rolled back.
func (u *UnitOfWork) Closed() bool {
	return u.closed
}

func (u *UnitOfWork) rollback() error {
	u.closeStatements()
	u.closed = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}

func (u *UnitOfWork) closeStatements() {
	for sqlText, ps := range u.prepared {
		ps.Close()
		delete(u.prepared, sqlText)
	}
}
