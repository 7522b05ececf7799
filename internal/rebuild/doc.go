// Package rebuild regenerates the attachment side-schema from the ledger.
//
// A pass runs entirely inside one store.UnitOfWork and moves through the
// phases Dropped, SchemaCreated, Populated, ViewsBuilt and Committed in that
// order. Only the transition to Committed commits. Any failure before it
// rolls back the unit, leaving the side-schema exactly as it was before the
// pass started.
//
// Population reads the ledger with a forward-only cursor ordered by
// transaction id, decodes each attachment, routes it to its table and
// inserts the row. Foreign keys are deferred, so references are verified
// explicitly just before the commit and reported with the offending table
// and row.
//
// The pass is single writer and holds every write in one transaction.
// Memory grows with the number of rows; there are no intermediate commits.
package rebuild
