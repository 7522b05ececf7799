// Package ledger models the transaction table the side-schema is derived
// from. The rebuild only ever reads it; this package exists so the CLI and
// tests can seed, inspect and delete ledger rows.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/roach88/ledgerattach/internal/store"
)

// Transaction is one ledger row. Attachment holds the encoded payload;
// nil means the transaction carries none.
type Transaction struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Type        int32  `gorm:"column:type;not null"`
	Subtype     int32  `gorm:"column:subtype;not null"`
	Timestamp   int64  `gorm:"column:timestamp;not null;default:0"`
	Height      int64  `gorm:"column:height;not null;default:0"`
	SenderID    int64  `gorm:"column:sender_id;not null;default:0"`
	RecipientID *int64 `gorm:"column:recipient_id"`
	Amount      int64  `gorm:"column:amount;not null;default:0"`
	Fee         int64  `gorm:"column:fee;not null;default:0"`
	Attachment  []byte `gorm:"column:attachment"`
}

// Ledger accesses the transaction table through gorm on the store's pool.
type Ledger struct {
	db    *gorm.DB
	table string
}

// Open wraps the store's connection pool. table is the ledger table name.
func Open(s *store.Store, table string) (*Ledger, error) {
	var dialector gorm.Dialector
	switch s.Driver() {
	case store.DriverSQLite:
		dialector = &sqlite.Dialector{Conn: s.DB()}
	case store.DriverPostgres:
		dialector = postgres.New(postgres.Config{Conn: s.DB()})
	default:
		return nil, fmt.Errorf("ledger: unsupported driver %q", s.Driver())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: open gorm: %w", err)
	}
	return &Ledger{db: db, table: table}, nil
}

// Table returns the ledger table name.
func (l *Ledger) Table() string {
	return l.table
}

func (l *Ledger) tx(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).Table(l.table)
}

// Migrate creates the ledger table if it does not exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	if err := l.tx(ctx).AutoMigrate(&Transaction{}); err != nil {
		return fmt.Errorf("ledger: migrate %s: %w", l.table, err)
	}
	return nil
}

// Insert writes transactions in one database transaction.
func (l *Ledger) Insert(ctx context.Context, txs ...Transaction) error {
	err := l.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		for i := range txs {
			q := db.Table(l.table)
			// Omitting the column stores NULL rather than an empty blob.
			if txs[i].Attachment == nil {
				q = q.Omit("attachment")
			}
			if err := q.Create(&txs[i]).Error; err != nil {
				return fmt.Errorf("insert transaction %d: %w", txs[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	return nil
}

// Get returns one transaction, or nil if it does not exist.
func (l *Ledger) Get(ctx context.Context, id int64) (*Transaction, error) {
	var tx Transaction
	err := l.tx(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get %d: %w", id, err)
	}
	return &tx, nil
}

// Delete removes a transaction. Side-table rows that reference it are
// removed by cascade. Reports whether a row was deleted.
func (l *Ledger) Delete(ctx context.Context, id int64) (bool, error) {
	res := l.tx(ctx).Where("id = ?", id).Delete(&Transaction{})
	if res.Error != nil {
		return false, fmt.Errorf("ledger: delete %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Renumber changes a transaction id. Side-table rows follow by cascade.
func (l *Ledger) Renumber(ctx context.Context, from, to int64) error {
	res := l.tx(ctx).Where("id = ?", from).Update("id", to)
	if res.Error != nil {
		return fmt.Errorf("ledger: renumber %d to %d: %w", from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ledger: renumber %d: no such transaction", from)
	}
	return nil
}

// Count returns the number of ledger rows.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.tx(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}
