// Package harness runs rebuild scenarios described in YAML.
//
// A scenario seeds a fresh ledger, runs a sequence of steps against it and
// then checks the side-schema that results.
//
// # Scenario Format
//
//	name: dangling_cancellation
//	description: "A cancellation of an unknown order fails the pass"
//	pass_id: dangling
//	ledger:
//	  - id: 100
//	    kind: asset_issuance
//	    attachment: {name: gold, quantity: 1000}
//	steps:
//	  - rebuild: {}
//	  - import:
//	      - id: 103
//	        kind: ask_order_cancellation
//	        attachment: {order_id: 999}
//	  - rebuild:
//	      expect: {outcome: failed, code: REFERENTIAL, transaction_id: 103}
//	  - delete: [100]
//	assertions:
//	  - type: row_count
//	    table: colored_coins_asset_issuance
//	    count: 1
//	  - type: row
//	    table: colored_coins_asset_issuance
//	    where: {transaction_id: 100}
//	    expect: {name: gold}
//
// Ledger and import rows use the ledger fixture format. A rebuild step
// without expect must commit.
//
// # Assertion Types
//
//   - row_count: the side table holds exactly count rows
//   - row: exactly one row matches where, and it has the expect values
//   - table_absent: the side table does not exist
//   - ledger_count: the ledger holds exactly count transactions
//
// Row values compare in their export form: ids and quantities as integers,
// binary columns as lowercase hex, absent optional fields as null.
//
// # Determinism
//
// Each scenario runs on a private in-memory SQLite database with a fixed
// pass id, so its trace and final dump are identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
