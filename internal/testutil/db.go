// Package testutil provides shared helpers for tests that need a seeded
// ledger database.
package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/ledgerattach/internal/ledger"
	"github.com/roach88/ledgerattach/internal/store"
)

// OpenSQLite opens a fresh SQLite store in a temp dir, closed on cleanup.
func OpenSQLite(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "ledgerattach.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// OpenLedger opens and migrates the default "transactions" ledger table.
func OpenLedger(t *testing.T, s *store.Store) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(s, "transactions")
	if err != nil {
		t.Fatalf("ledger.Open() failed: %v", err)
	}
	if err := l.Migrate(context.Background()); err != nil {
		t.Fatalf("ledger.Migrate() failed: %v", err)
	}
	return l
}

// Seed imports a YAML fixture document into the ledger.
func Seed(t *testing.T, l *ledger.Ledger, fixture string) {
	t.Helper()
	f, err := ledger.ParseFixture(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	if _, err := l.Import(context.Background(), f); err != nil {
		t.Fatalf("import fixture: %v", err)
	}
}

// CountRows returns the number of rows in a table or view.
func CountRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

// SQLiteObjectExists reports whether a table or view exists.
func SQLiteObjectExists(t *testing.T, s *store.Store, kind, name string) bool {
	t.Helper()
	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query failed: %v", err)
	}
	return n == 1
}
