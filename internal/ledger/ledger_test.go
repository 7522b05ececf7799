package ledger

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerattach/internal/attachment"
	"github.com/roach88/ledgerattach/internal/store"
)

func openTestLedger(t *testing.T) (*store.Store, *Ledger) {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l, err := Open(s, "transactions")
	require.NoError(t, err)
	require.NoError(t, l.Migrate(context.Background()))
	return s, l
}

func TestLedger_InsertGetDelete(t *testing.T) {
	_, l := openTestLedger(t)
	ctx := context.Background()

	payload, err := attachment.Encode(attachment.AskOrderCancellation{Order: 7})
	require.NoError(t, err)

	require.NoError(t, l.Insert(ctx,
		Transaction{ID: 1, Type: 0, Subtype: 0, Amount: 50},
		Transaction{ID: 2, Type: 2, Subtype: 4, Attachment: payload},
	))

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := l.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payload, got.Attachment)

	plain, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, plain.Attachment, "missing attachment must be stored as NULL")
	assert.Equal(t, int64(50), plain.Amount)

	deleted, err := l.Delete(ctx, 2)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = l.Delete(ctx, 2)
	require.NoError(t, err)
	assert.False(t, deleted)

	missing, err := l.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedger_AttachmentNullability(t *testing.T) {
	s, l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx,
		Transaction{ID: 1},
		Transaction{ID: 2, Type: 1, Attachment: []byte{0, 0, 0, 0}},
	))

	var nulls int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM transactions WHERE attachment IS NULL").Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestLedger_InsertIsAtomic(t *testing.T) {
	_, l := openTestLedger(t)
	ctx := context.Background()

	err := l.Insert(ctx, Transaction{ID: 1}, Transaction{ID: 1})
	require.Error(t, err)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestLedger_Renumber(t *testing.T) {
	_, l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, Transaction{ID: 1}))
	require.NoError(t, l.Renumber(ctx, 1, 10))

	got, err := l.Get(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.Error(t, l.Renumber(ctx, 1, 11))
}

func TestLedger_CustomTable(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer s.Close()

	l, err := Open(s, "ledger_tx")
	require.NoError(t, err)
	require.NoError(t, l.Migrate(context.Background()))
	require.NoError(t, l.Insert(context.Background(), Transaction{ID: 5}))

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM ledger_tx").Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, "ledger_tx", l.Table())
}

const fixtureYAML = `
transactions:
  - id: 100
    kind: asset_issuance
    sender_id: 9
    attachment:
      name: gold
      quantity: 1000
  - id: 101
    kind: ask_order_placement
    attachment: {asset: 100, quantity: 10, price: 25}
  - id: 102
    type: 2
    subtype: 4
    raw: "0x6500000000000000"
  - id: 103
    amount: 5
  - id: 104
    kind: arbitrary_message
    attachment:
      message: "deadbeef"
`

func TestImport(t *testing.T) {
	_, l := openTestLedger(t)
	ctx := context.Background()

	f, err := ParseFixture(strings.NewReader(fixtureYAML))
	require.NoError(t, err)

	n, err := l.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	issuance, err := l.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int32(2), issuance.Type)
	assert.Equal(t, int32(0), issuance.Subtype)
	assert.Equal(t, int64(9), issuance.SenderID)
	decoded, err := attachment.Decode(attachment.Discriminator{Type: 2, Subtype: 0}, issuance.Attachment)
	require.NoError(t, err)
	assert.Equal(t, attachment.AssetIssuance{Name: "gold", Quantity: 1000}, decoded)

	raw, err := l.Get(ctx, 102)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x65, 0, 0, 0, 0, 0, 0, 0}, raw.Attachment)

	plain, err := l.Get(ctx, 103)
	require.NoError(t, err)
	assert.Nil(t, plain.Attachment)

	msg, err := l.Get(ctx, 104)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef}, msg.Attachment)
}

func TestFixture_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "transactions:\n  - id: 1\n    colour: red\n",
			want: "field colour not found",
		},
		{
			name: "unknown kind",
			yaml: "transactions:\n  - id: 1\n    kind: teleport\n    raw: \"00\"\n",
			want: `unknown kind "teleport"`,
		},
		{
			name: "kind without payload",
			yaml: "transactions:\n  - id: 1\n    kind: asset_transfer\n",
			want: "needs an attachment or raw payload",
		},
		{
			name: "attachment without kind",
			yaml: "transactions:\n  - id: 1\n    attachment: {name: x}\n",
			want: "attachment given without kind",
		},
		{
			name: "discriminator mismatch",
			yaml: "transactions:\n  - id: 1\n    kind: vote_casting\n    type: 2\n    raw: \"00\"\n",
			want: "kind vote_casting is 1/3",
		},
		{
			name: "both payloads",
			yaml: "transactions:\n  - id: 1\n    kind: ask_order_cancellation\n    raw: \"00\"\n    attachment: {order_id: 1}\n",
			want: "mutually exclusive",
		},
		{
			name: "duplicate id",
			yaml: "transactions:\n  - id: 1\n  - id: 1\n",
			want: "duplicate id 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFixture(strings.NewReader(tt.yaml))
			if err == nil {
				_, err = f.Resolve()
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFixture_Empty(t *testing.T) {
	f, err := ParseFixture(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Transactions)
}

func TestFixture_Resolve(t *testing.T) {
	f, err := ParseFixture(strings.NewReader(`transactions:
  - id: 200
    kind: poll_creation
    attachment: {name: colour, options: [red, blue], min_number_of_options: 1, max_number_of_options: 1}
  - id: 201
    type: 1
    subtype: 3
    raw: "c80000000000000000" # poll 200, no vote
  - id: 202
    amount: 5
`))
	require.NoError(t, err)
	require.Len(t, f.Transactions, 3)

	txs, err := f.Resolve()
	require.NoError(t, err)
	require.Len(t, txs, 3)

	poll, err := attachment.Encode(attachment.PollCreation{
		Name:               "colour",
		Options:            []string{"red", "blue"},
		MinNumberOfOptions: 1,
		MaxNumberOfOptions: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, Transaction{ID: 200, Type: 1, Subtype: 2, Attachment: poll}, txs[0])
	assert.Equal(t, Transaction{ID: 201, Type: 1, Subtype: 3, Attachment: []byte{0xc8, 0, 0, 0, 0, 0, 0, 0, 0}}, txs[1])
	assert.Equal(t, Transaction{ID: 202, Amount: 5}, txs[2])
}
