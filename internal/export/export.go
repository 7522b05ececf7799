// Package export reads the side-schema back out as canonical JSON lines.
//
// Each side-table row becomes one record:
//
//	{"row":{"transaction_id":100,"name":"gold",...},"table":"colored_coins_asset_issuance"}
//
// Tables are visited in dependency order and rows in transaction id order,
// so two side-schemas with the same content produce byte-identical dumps
// and the same digest.
package export

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/ledgerattach/internal/canonical"
	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// Record is one side-table row in canonical form.
type Record struct {
	Table string
	Row   canonical.Object
}

// Value returns the record as written to a dump.
func (r Record) Value() canonical.Value {
	return canonical.Object{
		"table": canonical.String(r.Table),
		"row":   r.Row,
	}
}

// Summary describes a completed dump.
type Summary struct {
	Records int            `json:"records"`
	Tables  map[string]int `json:"tables"`
	Digest  string         `json:"digest"`
}

// Walk calls fn for every side-table row.
func Walk(ctx context.Context, s *store.Store, d schema.Dialect, fn func(Record) error) error {
	for _, t := range schema.Tables() {
		if err := walkTable(ctx, s, d, t, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkTable(ctx context.Context, s *store.Store, d schema.Dialect, t schema.Table, fn func(Record) error) error {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(t.ColumnNames(), ", "), d.Qualify(t.Name), schema.TransactionIDColumn)

	rows, err := s.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		cells := newCells(t, d)
		dest := make([]any, len(cells))
		for i, c := range cells {
			dest[i] = c.dest
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("export %s: scan: %w", t.Name, err)
		}

		row := make(canonical.Object, len(cells))
		for i, c := range cells {
			row[t.Columns[i].Name] = c.value()
		}
		if err := fn(Record{Table: t.Name, Row: row}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("export %s: %w", t.Name, err)
	}
	return nil
}

// cell pairs a scan destination with its conversion to a canonical value.
type cell struct {
	dest  any
	value func() canonical.Value
}

func newCells(t schema.Table, d schema.Dialect) []cell {
	cells := make([]cell, len(t.Columns))
	for i, col := range t.Columns {
		cells[i] = newCell(col.Kind, d)
	}
	return cells
}

func newCell(kind schema.ColumnKind, d schema.Dialect) cell {
	switch kind {
	case schema.KindText:
		var v sql.NullString
		return cell{&v, func() canonical.Value {
			if !v.Valid {
				return canonical.Null{}
			}
			return canonical.String(v.String)
		}}
	case schema.KindBytes:
		var v []byte
		return cell{&v, func() canonical.Value {
			if v == nil {
				return canonical.Null{}
			}
			return canonical.String(hex.EncodeToString(v))
		}}
	case schema.KindStringList:
		var v []string
		return cell{d.StringListScanner(&v), func() canonical.Value {
			return canonical.Strings(v)
		}}
	case schema.KindBool:
		var v sql.NullBool
		return cell{&v, func() canonical.Value {
			if !v.Valid {
				return canonical.Null{}
			}
			return canonical.Bool(v.Bool)
		}}
	default:
		var v sql.NullInt64
		return cell{&v, func() canonical.Value {
			if !v.Valid {
				return canonical.Null{}
			}
			return canonical.Int(v.Int64)
		}}
	}
}

// Write streams every record to w as canonical JSON lines and returns the
// digest of exactly the bytes written.
func Write(ctx context.Context, s *store.Store, d schema.Dialect, w io.Writer) (*Summary, error) {
	sum := &Summary{Tables: make(map[string]int)}
	for _, t := range schema.Tables() {
		sum.Tables[t.Name] = 0
	}
	digest := canonical.NewDigest(canonical.DomainSideSchema)

	err := Walk(ctx, s, d, func(r Record) error {
		b, err := canonical.Marshal(r.Value())
		if err != nil {
			return fmt.Errorf("export %s: %w", r.Table, err)
		}
		if w != nil {
			if _, err := w.Write(append(b, '\n')); err != nil {
				return fmt.Errorf("export: write: %w", err)
			}
		}
		if err := digest.Add(r.Value()); err != nil {
			return err
		}
		sum.Tables[r.Table]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	sum.Records = digest.Count()
	sum.Digest = digest.Sum()
	return sum, nil
}

// Digest hashes the side-schema content without writing it anywhere.
func Digest(ctx context.Context, s *store.Store, d schema.Dialect) (*Summary, error) {
	return Write(ctx, s, d, nil)
}
