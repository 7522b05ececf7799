package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, stdout string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	return resp
}

func TestLedgerImport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "ledger.db")
	fixture := writeFile(t, dir, "fixture.yaml", marketFixture)

	stdout, _, err := execute(t, "--db", db, "ledger", "import", fixture)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ imported 4 transactions into transactions")
}

func TestLedgerImport_BadFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFile(t, dir, "fixture.yaml", "transactions:\n  - id: 1\n    colour: red\n")

	stdout, _, err := execute(t, "--db", filepath.Join(dir, "ledger.db"), "ledger", "import", fixture)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "[USAGE] failed to load fixture")
}

func TestLedgerImport_DuplicateID(t *testing.T) {
	db := newLedgerDB(t)
	fixture := writeFile(t, t.TempDir(), "again.yaml", "transactions:\n  - id: 100\n    amount: 1\n")

	stdout, _, err := execute(t, "--db", db, "ledger", "import", fixture)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "[LEDGER] import failed")
}

func TestRebuild_Text(t *testing.T) {
	db := newLedgerDB(t)

	stdout, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ rebuild committed (pass ")
	assert.Contains(t, stdout, "rows: 3, views: 10")
	assert.Contains(t, stdout, "asset_issuance")
	assert.Contains(t, stdout, "ask_order_cancellation")
	assert.NotContains(t, stdout, "bid_order_placement", "variants without rows are omitted")
}

func TestRebuild_JSON(t *testing.T) {
	db := newLedgerDB(t)

	stdout, _, err := execute(t, "--db", db, "--format", "json", "rebuild", "--no-views")
	require.NoError(t, err)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "committed", data["phase"])
	assert.Equal(t, float64(3), data["rows"])
	assert.Equal(t, float64(0), data["views"])
	counts := data["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["ask_order_placement"])
	assert.Equal(t, float64(0), counts["poll_creation"])
}

func TestRebuild_PassIDIsUUIDv7(t *testing.T) {
	db := newLedgerDB(t)

	stdout, _, err := execute(t, "--db", db, "--format", "json", "rebuild")
	require.NoError(t, err)
	id := decodeResponse(t, stdout).Data.(map[string]any)["pass_id"].(string)
	require.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14])
}

func TestRebuild_FailureKeepsPriorState(t *testing.T) {
	db := newLedgerDB(t)
	_, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)

	before, _, err := execute(t, "--db", db, "digest")
	require.NoError(t, err)

	dangling := writeFile(t, t.TempDir(), "dangling.yaml", `transactions:
  - id: 104
    kind: ask_order_cancellation
    attachment: {order_id: 999}
`)
	_, _, err = execute(t, "--db", db, "ledger", "import", dangling)
	require.NoError(t, err)

	stdout, _, err := execute(t, "--db", db, "--format", "json", "rebuild")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "REFERENTIAL", resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	assert.Equal(t, "committed", details["phase"])
	assert.Equal(t, float64(104), details["transaction_id"])
	assert.Equal(t, "colored_coins_ask_order_cancellation", details["table"])

	after, _, err := execute(t, "--db", db, "digest")
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed pass must not change the side-schema")
}

func TestRebuild_MetricsFile(t *testing.T) {
	db := newLedgerDB(t)
	metricsPath := filepath.Join(t.TempDir(), "ledgerattach.prom")

	_, _, err := execute(t, "--db", db, "rebuild", "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `ledgerattach_rebuild_passes_total{outcome="success"} 1`)
	assert.Contains(t, text, `ledgerattach_rebuild_rows{variant="asset_issuance"} 1`)
	assert.Contains(t, text, `ledgerattach_rebuild_rows{variant="poll_creation"} 0`)
}

func TestRebuild_MetricsFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "ledger.db")
	fixture := writeFile(t, dir, "fixture.yaml", "transactions:\n  - id: 1\n    type: 9\n    subtype: 9\n    raw: \"00\"\n")
	_, _, err := execute(t, "--db", db, "ledger", "import", fixture)
	require.NoError(t, err)

	metricsPath := filepath.Join(dir, "ledgerattach.prom")
	stdout, _, err := execute(t, "--db", db, "rebuild", "--metrics-file", metricsPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ [UNKNOWN_DISCRIMINATOR]")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ledgerattach_rebuild_failures_total{code="UNKNOWN_DISCRIMINATOR"} 1`)
}

func TestRebuild_MissingLedgerTable(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	stdout, _, err := execute(t, "--db", db, "rebuild")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "[SOURCE]")
}

func TestDrop(t *testing.T) {
	db := newLedgerDB(t)
	_, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)

	stdout, _, err := execute(t, "--db", db, "drop")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ side-schema attachment dropped")

	// Dropping twice is fine.
	_, _, err = execute(t, "--db", db, "drop")
	require.NoError(t, err)

	// The side-schema is gone, so there is nothing to digest.
	stdout, _, err = execute(t, "--db", db, "digest")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "[DATABASE]")
}

func TestDrop_Rows(t *testing.T) {
	db := newLedgerDB(t)
	_, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)

	stdout, _, err := execute(t, "--db", db, "drop", "--rows")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ side-schema attachment cleared")

	// Tables survive, empty.
	stdout, _, err = execute(t, "--db", db, "digest")
	require.NoError(t, err)
	assert.Contains(t, stdout, "  0 records")

	_, _, err = execute(t, "--db", db, "drop")
	require.NoError(t, err)

	stdout, _, err = execute(t, "--db", db, "--format", "json", "drop", "--rows")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STRUCTURAL", resp.Error.Code)
}

func TestSchema(t *testing.T) {
	stdout, _, err := execute(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, stdout, "CREATE TABLE IF NOT EXISTS attachment_messaging_arbitrary_message")
	assert.NotContains(t, stdout, "CREATE VIEW")
	assert.NotContains(t, stdout, "DROP")

	stdout, _, err = execute(t, "schema", "--dialect", "postgres", "--views", "--drop")
	require.NoError(t, err)
	assert.Contains(t, stdout, "DROP SCHEMA IF EXISTS attachment CASCADE")
	assert.Contains(t, stdout, "CREATE SCHEMA IF NOT EXISTS attachment")
	assert.Contains(t, stdout, "CREATE OR REPLACE VIEW attachment.colored_coins_asset_issuance_view")
}

func TestSchema_JSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "schema", "--views")
	require.NoError(t, err)

	resp := decodeResponse(t, stdout)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "sqlite", data["dialect"])
	assert.Len(t, data["statements"], 20)
}

func TestSchema_BadDialect(t *testing.T) {
	stdout, _, err := execute(t, "schema", "--dialect", "oracle")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "[USAGE] invalid dialect")
}

func TestDigest_TracksLedgerDeletes(t *testing.T) {
	db := newLedgerDB(t)
	_, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)

	stdout, _, err := execute(t, "--db", db, "--format", "json", "digest")
	require.NoError(t, err)
	first := decodeResponse(t, stdout).Data.(map[string]any)
	assert.Equal(t, float64(3), first["records"])

	stdout, _, err = execute(t, "--db", db, "ledger", "delete", "101")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ deleted transaction 101")

	stdout, _, err = execute(t, "--db", db, "--format", "json", "digest")
	require.NoError(t, err)
	second := decodeResponse(t, stdout).Data.(map[string]any)
	assert.Equal(t, float64(1), second["records"], "placement and its cancellation cascade away")
	assert.NotEqual(t, first["digest"], second["digest"])
}

func TestLedgerDelete_Errors(t *testing.T) {
	db := newLedgerDB(t)

	stdout, _, err := execute(t, "--db", db, "ledger", "delete", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, `invalid transaction id "abc"`)

	stdout, _, err = execute(t, "--db", db, "ledger", "delete", "999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "transaction 999 not found")
}

func TestVerify(t *testing.T) {
	db := newLedgerDB(t)

	stdout, _, err := execute(t, "--db", db, "--format", "json", "verify")
	require.NoError(t, err)

	data := decodeResponse(t, stdout).Data.(map[string]any)
	assert.Equal(t, true, data["idempotent"])
	assert.Equal(t, data["first"], data["second"])
	assert.Equal(t, float64(3), data["records"])
}

func TestExport_File(t *testing.T) {
	db := newLedgerDB(t)
	_, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "side.jsonl")
	stdout, _, err := execute(t, "--db", db, "export", "--to", dest)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ exported 3 records to "+dest)

	file, err := os.Open(dest)
	require.NoError(t, err)
	defer file.Close()

	var tables []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec struct {
			Table string `json:"table"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		tables = append(tables, rec.Table)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{
		"colored_coins_asset_issuance",
		"colored_coins_ask_order_placement",
		"colored_coins_ask_order_cancellation",
	}, tables)
}

func TestExport_DestinationFromConfig(t *testing.T) {
	db := newLedgerDB(t)
	_, _, err := execute(t, "--db", db, "rebuild")
	require.NoError(t, err)

	dir := t.TempDir()
	dest := filepath.Join(dir, "from-config.jsonl")
	cfg := writeFile(t, dir, "ledgerattach.yaml", "export:\n  destination: "+dest+"\n")

	_, _, err = execute(t, "--db", db, "--config", cfg, "export")
	require.NoError(t, err)
	assert.FileExists(t, dest)
}

func TestExport_NoDestination(t *testing.T) {
	db := newLedgerDB(t)

	stdout, _, err := execute(t, "--db", db, "export")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "no export destination")
}

func TestExport_FailureLeavesNothing(t *testing.T) {
	// No rebuild has run, so the side tables do not exist.
	db := newLedgerDB(t)
	dir := t.TempDir()

	stdout, _, err := execute(t, "--db", db, "export", "--to", filepath.Join(dir, "side.jsonl"))
	require.Error(t, err)
	assert.Contains(t, stdout, "[EXPORT] export failed")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
