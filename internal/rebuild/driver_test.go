package rebuild

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerattach/internal/attachment"
	"github.com/roach88/ledgerattach/internal/ledger"
	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
	"github.com/roach88/ledgerattach/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

type env struct {
	store   *store.Store
	ledger  *ledger.Ledger
	dialect schema.Dialect
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := testutil.OpenSQLite(t)
	d, err := schema.New(schema.DriverSQLite, schema.Options{})
	require.NoError(t, err)
	return &env{store: s, ledger: testutil.OpenLedger(t, s), dialect: d}
}

func (e *env) driver(opts ...Option) *Driver {
	opts = append([]Option{WithPassIDGenerator(testutil.NewFixedPassIDGenerator("pass-1"))}, opts...)
	return New(e.store, e.dialect, opts...)
}

func (e *env) count(t *testing.T, table string) int {
	t.Helper()
	return testutil.CountRows(t, e.store, e.dialect.Qualify(table))
}

const marketFixture = `
transactions:
  - id: 100
    kind: asset_issuance
    attachment: {name: gold, quantity: 1000}
  - id: 101
    kind: ask_order_placement
    attachment: {asset: 100, quantity: 10, price: 25}
  - id: 102
    kind: ask_order_cancellation
    attachment: {order_id: 101}
  - id: 103
    kind: asset_transfer
    attachment: {asset: 100, quantity: 5, comment: gift}
  - id: 104
    amount: 7
`

func TestRun_ArbitraryMessage(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 10
    type: 1
    subtype: 0
    raw: "04000000deadbeef"
`)

	report, err := e.driver().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, report.Phase)
	assert.Equal(t, "pass-1", report.PassID)
	assert.Equal(t, 1, report.Rows)
	assert.Equal(t, 1, report.Counts[attachment.KindArbitraryMessage])
	assert.Equal(t, 10, report.Views)

	var txID int64
	var message []byte
	err = e.store.DB().QueryRow("SELECT transaction_id, message FROM " + e.dialect.Qualify(schema.TableArbitraryMessage)).
		Scan(&txID, &message)
	require.NoError(t, err)
	assert.Equal(t, int64(10), txID)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, message)

	for _, tbl := range schema.Tables() {
		if tbl.Name != schema.TableArbitraryMessage {
			assert.Equal(t, 0, e.count(t, tbl.Name), tbl.Name)
		}
	}
}

func TestRun_EveryVariantLandsInItsTable(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 1
    kind: arbitrary_message
    attachment: {message: "00ff"}
  - id: 2
    kind: alias_assignment
    attachment: {name: shop}
  - id: 3
    kind: poll_creation
    attachment:
      name: colour
      description: favourite
      options: [red, green]
      min_number_of_options: 1
      max_number_of_options: 2
      options_are_binary: false
  - id: 4
    kind: vote_casting
    attachment: {poll_id: 3, vote: "01"}
  - id: 5
    kind: asset_issuance
    attachment: {name: gold, quantity: 1000}
  - id: 6
    kind: asset_transfer
    attachment: {asset: 5, quantity: 1, comment: ""}
  - id: 7
    kind: ask_order_placement
    attachment: {asset: 5, quantity: 2, price: 3}
  - id: 8
    kind: bid_order_placement
    attachment: {asset: 5, quantity: 2, price: 2}
  - id: 9
    kind: ask_order_cancellation
    attachment: {order_id: 7}
  - id: 10
    kind: bid_order_cancellation
    attachment: {order_id: 8}
`)

	report, err := e.driver().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Rows)

	for _, tbl := range schema.Tables() {
		assert.Equal(t, 1, e.count(t, tbl.Name), tbl.Name)
		assert.Equal(t, 1, report.Counts[tbl.Variant], tbl.Name)
		assert.Equal(t, 1, testutil.CountRows(t, e.store, e.dialect.ViewName(tbl.Name)), "view %s", tbl.Name)
	}

	var uri any
	require.NoError(t, e.store.DB().QueryRow("SELECT uri FROM "+e.dialect.Qualify(schema.TableAliasAssignment)).Scan(&uri))
	assert.Nil(t, uri, "absent uri must be NULL")

	var options string
	require.NoError(t, e.store.DB().QueryRow("SELECT options FROM "+e.dialect.Qualify(schema.TablePollCreation)).Scan(&options))
	assert.Equal(t, `["red","green"]`, options)

	var pollID int64
	var vote []byte
	require.NoError(t, e.store.DB().QueryRow("SELECT poll_id, vote FROM "+e.dialect.Qualify(schema.TableVoteCasting)).Scan(&pollID, &vote))
	assert.Equal(t, int64(3), pollID)
	assert.Equal(t, []byte{0x01}, vote)
}

func TestRun_ForwardReferenceSucceeds(t *testing.T) {
	e := newEnv(t)
	// The vote is read before the poll it references.
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 150
    kind: vote_casting
    attachment: {poll_id: 200}
  - id: 200
    kind: poll_creation
    attachment: {name: later, options: [a], min_number_of_options: 1, max_number_of_options: 1}
`)

	report, err := e.driver().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)
}

func TestRun_CascadeDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	report, err := e.driver().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Rows)

	deleted, err := e.ledger.Delete(ctx, 100)
	require.NoError(t, err)
	require.True(t, deleted)

	assert.Equal(t, 0, e.count(t, schema.TableAssetIssuance))
	assert.Equal(t, 0, e.count(t, schema.TableAskOrderPlacement))
	assert.Equal(t, 0, e.count(t, schema.TableAskOrderCancellation))
	assert.Equal(t, 0, e.count(t, schema.TableAssetTransfer))
}

func TestRun_CascadeUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	_, err := e.driver().Run(ctx)
	require.NoError(t, err)

	require.NoError(t, e.ledger.Renumber(ctx, 102, 902))

	var txID int64
	require.NoError(t, e.store.DB().QueryRow("SELECT transaction_id FROM "+e.dialect.Qualify(schema.TableAskOrderCancellation)).Scan(&txID))
	assert.Equal(t, int64(902), txID)
}

func TestRun_CascadeDeletePollRemovesVotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 200
    kind: poll_creation
    attachment: {name: colour, options: [red, blue], min_number_of_options: 1, max_number_of_options: 1}
  - id: 201
    kind: vote_casting
    attachment: {poll_id: 200, vote: "01"}
`)

	_, err := e.driver().Run(ctx)
	require.NoError(t, err)

	var txID, pollID int64
	var vote []byte
	require.NoError(t, e.store.DB().QueryRow(
		"SELECT transaction_id, poll_id, vote FROM "+e.dialect.Qualify(schema.TableVoteCasting)).
		Scan(&txID, &pollID, &vote))
	assert.Equal(t, int64(201), txID)
	assert.Equal(t, int64(200), pollID)
	assert.Equal(t, []byte{0x01}, vote)

	deleted, err := e.ledger.Delete(ctx, 200)
	require.NoError(t, err)
	require.True(t, deleted)

	assert.Equal(t, 0, e.count(t, schema.TablePollCreation))
	assert.Equal(t, 0, e.count(t, schema.TableVoteCasting))
}

func TestRun_DanglingCancellationRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	_, err := e.driver().Run(ctx)
	require.NoError(t, err)

	testutil.Seed(t, e.ledger, `
transactions:
  - id: 105
    kind: ask_order_cancellation
    attachment: {order_id: 999}
`)

	report, err := e.driver(WithPassIDGenerator(testutil.NewFixedPassIDGenerator("pass-2"))).Run(ctx)
	require.Error(t, err)
	assert.Nil(t, report)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, CodeReferential, re.Code)
	assert.Equal(t, PhaseCommitted, re.Phase)
	assert.Equal(t, "pass-2", re.PassID)
	assert.Equal(t, int64(105), re.TransactionID)

	var refErr *ReferenceError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, schema.TableAskOrderCancellation, refErr.Table)
	assert.Equal(t, schema.TableAskOrderPlacement, refErr.Parent)

	// The previous pass's side-schema is intact.
	assert.Equal(t, 1, e.count(t, schema.TableAskOrderCancellation))
	assert.Equal(t, 1, e.count(t, schema.TableAssetIssuance))
	assert.True(t, testutil.SQLiteObjectExists(t, e.store, "view", e.dialect.ViewName(schema.TableAssetIssuance)))
}

func TestRun_UnknownDiscriminatorKeepsPriorSchema(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	_, err := e.driver().Run(ctx)
	require.NoError(t, err)

	testutil.Seed(t, e.ledger, `
transactions:
  - id: 500
    type: 9
    subtype: 9
    raw: "00"
`)

	_, err = e.driver().Run(ctx)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnknownDiscriminator))

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, int64(500), re.TransactionID)
	assert.Equal(t, PhasePopulated, re.Phase)

	var unknown *attachment.UnknownDiscriminatorError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, int64(9), unknown.Type)

	assert.Equal(t, 1, e.count(t, schema.TableAssetIssuance))
	assert.Equal(t, 1, e.count(t, schema.TableAssetTransfer))
}

func TestRun_FirstPassFailureLeavesNoSchema(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 1
    kind: asset_issuance
    attachment: {name: gold, quantity: 1}
  - id: 2
    type: 0
    subtype: 0
    raw: "00"
`)

	_, err := e.driver().Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnknownDiscriminator), "payment has no attachment variant")

	for _, tbl := range schema.Tables() {
		assert.False(t, testutil.SQLiteObjectExists(t, e.store, "table", e.dialect.Qualify(tbl.Name)), tbl.Name)
	}
}

func TestRun_MalformedPayload(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 77
    kind: asset_transfer
    raw: "0100"
`)

	_, err := e.driver().Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeMalformedPayload, CodeOf(err))

	var malformed *attachment.MalformedPayloadError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, attachment.KindAssetTransfer, malformed.Kind)
	assert.Contains(t, err.Error(), "at transaction 77")
}

func TestRun_OutOfRangeDiscriminator(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.ledger.Insert(context.Background(), ledger.Transaction{ID: 1, Type: 300, Subtype: 0, Attachment: []byte{0}}))

	_, err := e.driver().Run(context.Background())

	var unknown *attachment.UnknownDiscriminatorError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, int64(300), unknown.Type)
}

func TestRun_WithoutViews(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, marketFixture)

	report, err := e.driver(WithViews(false)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseCommitted, report.Phase)
	assert.Equal(t, 0, report.Views)
	for _, tbl := range schema.Tables() {
		assert.False(t, testutil.SQLiteObjectExists(t, e.store, "view", e.dialect.ViewName(tbl.Name)))
	}
}

func TestRun_ViewsJoinLedgerColumns(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, `
transactions:
  - id: 100
    kind: asset_issuance
    sender_id: 42
    fee: 3
    attachment: {name: gold, description: shiny, quantity: 1000}
`)

	_, err := e.driver().Run(context.Background())
	require.NoError(t, err)

	var (
		id, sender, fee, quantity int64
		name, description         string
	)
	err = e.store.DB().QueryRow(
		"SELECT id, sender_id, fee, name, description, quantity FROM "+e.dialect.ViewName(schema.TableAssetIssuance),
	).Scan(&id, &sender, &fee, &name, &description, &quantity)
	require.NoError(t, err)
	assert.Equal(t, int64(100), id)
	assert.Equal(t, int64(42), sender)
	assert.Equal(t, int64(3), fee)
	assert.Equal(t, "gold", name)
	assert.Equal(t, "shiny", description)
	assert.Equal(t, int64(1000), quantity)
}

func TestRun_EmptyLedger(t *testing.T) {
	e := newEnv(t)

	report, err := e.driver().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows)
	assert.Len(t, report.Counts, 10)
	assert.True(t, testutil.SQLiteObjectExists(t, e.store, "table", e.dialect.Qualify(schema.TablePollCreation)))
}

func TestRun_MissingLedgerIsSourceError(t *testing.T) {
	s := testutil.OpenSQLite(t)
	d, err := schema.New(schema.DriverSQLite, schema.Options{Ledger: "nowhere"})
	require.NoError(t, err)

	_, err = New(s, d).Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeSource))
}

func TestRun_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	first, err := e.driver().Run(ctx)
	require.NoError(t, err)
	second, err := e.driver().Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Counts, second.Counts)
	for _, tbl := range schema.Tables() {
		assert.Equal(t, first.Counts[tbl.Variant], e.count(t, tbl.Name), tbl.Name)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEnv(t)
	testutil.Seed(t, e.ledger, marketFixture)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.driver().Run(ctx)
	require.Error(t, err)
	assert.NotEmpty(t, CodeOf(err))
}

type recordingObserver struct {
	successes []map[attachment.Kind]int
	failures  []string
	elapsed   []time.Duration
}

func (o *recordingObserver) RebuildSucceeded(counts map[attachment.Kind]int, elapsed time.Duration) {
	o.successes = append(o.successes, counts)
	o.elapsed = append(o.elapsed, elapsed)
}

func (o *recordingObserver) RebuildFailed(code string, elapsed time.Duration) {
	o.failures = append(o.failures, code)
	o.elapsed = append(o.elapsed, elapsed)
}

func TestRun_NotifiesObserver(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	obs := &recordingObserver{}
	clock := testutil.NewStepClock(time.Unix(1000, 0), 250*time.Millisecond)
	drv := e.driver(WithObserver(obs), WithClock(clock.Now))

	report, err := drv.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, report.Duration)

	testutil.Seed(t, e.ledger, "transactions:\n  - id: 900\n    type: 7\n    raw: \"00\"\n")
	_, err = drv.Run(ctx)
	require.Error(t, err)

	require.Len(t, obs.successes, 1)
	assert.Equal(t, 1, obs.successes[0][attachment.KindAskOrderCancellation])
	assert.Equal(t, []string{string(CodeUnknownDiscriminator)}, obs.failures)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, obs.elapsed)
}

func TestDrop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	_, err := e.driver().Run(ctx)
	require.NoError(t, err)

	require.NoError(t, e.driver().Drop(ctx))
	for _, tbl := range schema.Tables() {
		assert.False(t, testutil.SQLiteObjectExists(t, e.store, "table", e.dialect.Qualify(tbl.Name)))
		assert.False(t, testutil.SQLiteObjectExists(t, e.store, "view", e.dialect.ViewName(tbl.Name)))
	}

	// Dropping an absent side-schema is a no-op.
	require.NoError(t, e.driver().Drop(ctx))

	n, err := e.ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n, "drop never touches the ledger")
}

func TestClear(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.Seed(t, e.ledger, marketFixture)

	_, err := e.driver().Run(ctx)
	require.NoError(t, err)

	require.NoError(t, e.driver().Clear(ctx))
	for _, tbl := range schema.Tables() {
		assert.True(t, testutil.SQLiteObjectExists(t, e.store, "table", e.dialect.Qualify(tbl.Name)))
		assert.True(t, testutil.SQLiteObjectExists(t, e.store, "view", e.dialect.ViewName(tbl.Name)))
		assert.Equal(t, 0, e.count(t, tbl.Name), tbl.Name)
	}

	n, err := e.ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n, "clear never touches the ledger")

	// A rebuild afterwards repopulates the same rows.
	report, err := e.driver().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Rows)
}

func TestClear_WithoutSideSchema(t *testing.T) {
	e := newEnv(t)

	err := e.driver().Clear(context.Background())
	require.Error(t, err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, CodeStructural, re.Code)
	assert.Equal(t, PhaseSchemaCreated, re.Phase)
	assert.Equal(t, "DELETE FROM attachment_colored_coins_bid_order_cancellation", re.Statement)
}
