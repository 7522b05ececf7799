// Package schema declares the attachment side-schema: one table per
// attachment variant, keyed by the owning transaction id and linked to the
// ledger and to each other by cascading foreign keys.
//
// The declarations are dialect neutral. A Dialect renders them as drop,
// create, view and insert statements for a concrete database.
package schema

import (
	"github.com/roach88/ledgerattach/internal/attachment"
)

// ColumnKind is the logical type of a side-schema column.
type ColumnKind int

const (
	// KindID is a 64-bit transaction identifier.
	KindID ColumnKind = iota
	// KindText is UTF-8 text.
	KindText
	// KindBytes is opaque binary.
	KindBytes
	// KindStringList is an ordered list of strings.
	KindStringList
	// KindSmallCount is an integer in 0..255.
	KindSmallCount
	// KindInteger is a signed 64-bit quantity or price.
	KindInteger
	// KindBool is a boolean flag.
	KindBool
)

func (k ColumnKind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindStringList:
		return "string_list"
	case KindSmallCount:
		return "small_count"
	case KindInteger:
		return "integer"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Column declares one column.
type Column struct {
	Name     string
	Kind     ColumnKind
	Nullable bool
}

// LedgerTable marks a foreign key that targets the ledger's transaction table.
const LedgerTable = ""

// ForeignKey links Column to RefTable.RefColumn. All keys cascade on
// delete and update and are checked at commit time.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table declares the side table for one attachment variant.
// Columns[0] is always transaction_id, the primary key.
type Table struct {
	Name        string
	Variant     attachment.Kind
	Columns     []Column
	ForeignKeys []ForeignKey
}

// ColumnNames returns column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AttachmentColumns returns every column except transaction_id.
func (t Table) AttachmentColumns() []Column {
	return t.Columns[1:]
}

// Table names.
const (
	TableArbitraryMessage     = "messaging_arbitrary_message"
	TableAliasAssignment      = "messaging_alias_assignment"
	TablePollCreation         = "messaging_poll_creation"
	TableVoteCasting          = "messaging_vote_casting"
	TableAssetIssuance        = "colored_coins_asset_issuance"
	TableAssetTransfer        = "colored_coins_asset_transfer"
	TableAskOrderPlacement    = "colored_coins_ask_order_placement"
	TableBidOrderPlacement    = "colored_coins_bid_order_placement"
	TableAskOrderCancellation = "colored_coins_ask_order_cancellation"
	TableBidOrderCancellation = "colored_coins_bid_order_cancellation"
)

// TransactionIDColumn is the primary key of every side table.
const TransactionIDColumn = "transaction_id"

func table(name string, variant attachment.Kind, cols []Column, refs ...ForeignKey) Table {
	columns := append([]Column{{Name: TransactionIDColumn, Kind: KindID}}, cols...)
	fks := append([]ForeignKey{{Column: TransactionIDColumn, RefTable: LedgerTable, RefColumn: "id"}}, refs...)
	return Table{Name: name, Variant: variant, Columns: columns, ForeignKeys: fks}
}

func ref(column, refTable string) ForeignKey {
	return ForeignKey{Column: column, RefTable: refTable, RefColumn: TransactionIDColumn}
}

// tables is in dependency order: every referenced table precedes its dependents.
var tables = []Table{
	table(TableArbitraryMessage, attachment.KindArbitraryMessage, []Column{
		{Name: "message", Kind: KindBytes},
	}),
	table(TableAliasAssignment, attachment.KindAliasAssignment, []Column{
		{Name: "name", Kind: KindText},
		{Name: "uri", Kind: KindText, Nullable: true},
	}),
	table(TablePollCreation, attachment.KindPollCreation, []Column{
		{Name: "name", Kind: KindText},
		{Name: "description", Kind: KindText, Nullable: true},
		{Name: "options", Kind: KindStringList},
		{Name: "min_number_of_options", Kind: KindSmallCount},
		{Name: "max_number_of_options", Kind: KindSmallCount},
		{Name: "options_are_binary", Kind: KindBool},
	}),
	table(TableVoteCasting, attachment.KindVoteCasting, []Column{
		{Name: "poll_id", Kind: KindID},
		{Name: "vote", Kind: KindBytes, Nullable: true},
	}, ref("poll_id", TablePollCreation)),
	table(TableAssetIssuance, attachment.KindAssetIssuance, []Column{
		{Name: "name", Kind: KindText},
		{Name: "description", Kind: KindText, Nullable: true},
		{Name: "quantity", Kind: KindInteger},
	}),
	table(TableAssetTransfer, attachment.KindAssetTransfer, []Column{
		{Name: "asset", Kind: KindID},
		{Name: "quantity", Kind: KindInteger},
		{Name: "comment", Kind: KindText},
	}, ref("asset", TableAssetIssuance)),
	table(TableAskOrderPlacement, attachment.KindAskOrderPlacement, []Column{
		{Name: "asset", Kind: KindID},
		{Name: "quantity", Kind: KindInteger},
		{Name: "price", Kind: KindInteger},
	}, ref("asset", TableAssetIssuance)),
	table(TableBidOrderPlacement, attachment.KindBidOrderPlacement, []Column{
		{Name: "asset", Kind: KindID},
		{Name: "quantity", Kind: KindInteger},
		{Name: "price", Kind: KindInteger},
	}, ref("asset", TableAssetIssuance)),
	table(TableAskOrderCancellation, attachment.KindAskOrderCancellation, []Column{
		{Name: "order_id", Kind: KindID},
	}, ref("order_id", TableAskOrderPlacement)),
	table(TableBidOrderCancellation, attachment.KindBidOrderCancellation, []Column{
		{Name: "order_id", Kind: KindID},
	}, ref("order_id", TableBidOrderPlacement)),
}

// Tables returns the side tables in dependency order.
// The returned slice is a copy; callers may reorder it.
func Tables() []Table {
	out := make([]Table, len(tables))
	copy(out, tables)
	return out
}

// TableFor returns the table that stores the given variant.
func TableFor(k attachment.Kind) (Table, bool) {
	for _, t := range tables {
		if t.Variant == k {
			return t, true
		}
	}
	return Table{}, false
}

// Lookup returns a table by its unqualified name.
func Lookup(name string) (Table, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Row is one projected side-table row. Values line up with the table's
// Columns; a nil value binds as SQL NULL.
type Row struct {
	Table  string
	Values []any
}

// StringList is an ordered option list. Dialects convert it to their
// native representation at bind time.
type StringList []string
