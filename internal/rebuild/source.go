package rebuild

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// ledgerRow is one transaction that carries an attachment.
type ledgerRow struct {
	ID      int64
	Type    int64
	Subtype int64
	Payload []byte
}

// source is a forward-only cursor over ledger rows in id order.
type source interface {
	// Next returns the next row; ok is false once the cursor is exhausted.
	Next(ctx context.Context) (row ledgerRow, ok bool, err error)
	Close(ctx context.Context) error
}

// DefaultFetchSize is how many rows a server-side cursor returns per fetch.
const DefaultFetchSize = 1000

const cursorName = "ledgerattach_source"

func sourceQuery(ledger string) string {
	return fmt.Sprintf("SELECT id, type, subtype, attachment FROM %s WHERE attachment IS NOT NULL ORDER BY id", ledger)
}

// openSource picks the cursor strategy for the dialect.
func openSource(ctx context.Context, uow *store.UnitOfWork, d schema.Dialect, fetchSize int) (source, error) {
	query := sourceQuery(d.Options().Ledger)
	if d.Name() == schema.DriverPostgres {
		return openCursorSource(ctx, uow, query, fetchSize)
	}

	rows, err := uow.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return &rowsSource{rows: rows}, nil
}

// rowsSource streams *sql.Rows on the unit's own transaction. SQLite allows
// inserts on the connection while the read is stepping.
type rowsSource struct {
	rows *sql.Rows
}

func (s *rowsSource) Next(ctx context.Context) (ledgerRow, bool, error) {
	if !s.rows.Next() {
		return ledgerRow{}, false, s.rows.Err()
	}
	var r ledgerRow
	if err := s.rows.Scan(&r.ID, &r.Type, &r.Subtype, &r.Payload); err != nil {
		return ledgerRow{}, false, err
	}
	return r, true, nil
}

func (s *rowsSource) Close(context.Context) error {
	return s.rows.Close()
}

// cursor is a server-side cursor. Fetch appends up to n rows to dst.
type cursor interface {
	Fetch(ctx context.Context, n int, dst []ledgerRow) ([]ledgerRow, error)
	Close(ctx context.Context) error
}

// sqlCursor is a NO SCROLL cursor declared on the unit's transaction.
type sqlCursor struct {
	uow  *store.UnitOfWork
	name string
}

func (c *sqlCursor) Fetch(ctx context.Context, n int, dst []ledgerRow) ([]ledgerRow, error) {
	rows, err := c.uow.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", n, c.name))
	if err != nil {
		return dst, err
	}
	defer rows.Close()

	for rows.Next() {
		var r ledgerRow
		if err := rows.Scan(&r.ID, &r.Type, &r.Subtype, &r.Payload); err != nil {
			return dst, err
		}
		dst = append(dst, r)
	}
	return dst, rows.Err()
}

// Close releases the cursor. The transaction would release it at commit
// anyway; closing early frees server memory before the reference check.
func (c *sqlCursor) Close(ctx context.Context) error {
	if c.uow.Closed() {
		return nil
	}
	return c.uow.Apply(ctx, store.Exec("CLOSE "+c.name), false)
}

// cursorSource reads a cursor in batches of fetchSize.
// A pgx connection cannot execute while a result set is open, so each
// batch is drained before rows are handed out.
type cursorSource struct {
	cur       cursor
	fetchSize int
	batch     []ledgerRow
	pos       int
	done      bool
}

func openCursorSource(ctx context.Context, uow *store.UnitOfWork, query string, fetchSize int) (*cursorSource, error) {
	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, query)
	if err := uow.Apply(ctx, store.Exec(declare), false); err != nil {
		return nil, err
	}
	return newCursorSource(&sqlCursor{uow: uow, name: cursorName}, fetchSize), nil
}

func newCursorSource(cur cursor, fetchSize int) *cursorSource {
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}
	return &cursorSource{cur: cur, fetchSize: fetchSize}
}

func (s *cursorSource) Next(ctx context.Context) (ledgerRow, bool, error) {
	if s.pos == len(s.batch) {
		if s.done {
			return ledgerRow{}, false, nil
		}
		if err := s.fetch(ctx); err != nil {
			return ledgerRow{}, false, err
		}
		if len(s.batch) == 0 {
			s.done = true
			return ledgerRow{}, false, nil
		}
	}
	r := s.batch[s.pos]
	s.pos++
	return r, true, nil
}

// fetch replaces the batch. A short batch means the cursor is exhausted;
// a full one needs another round trip to find out.
func (s *cursorSource) fetch(ctx context.Context) error {
	batch, err := s.cur.Fetch(ctx, s.fetchSize, s.batch[:0])
	if err != nil {
		return err
	}
	s.batch = batch
	s.pos = 0
	if len(s.batch) < s.fetchSize {
		s.done = true
	}
	return nil
}

func (s *cursorSource) Close(ctx context.Context) error {
	return s.cur.Close(ctx)
}
