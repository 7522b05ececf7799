package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ledgerattach/internal/attachment"
	"github.com/roach88/ledgerattach/internal/router"
	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// Observer is notified of each pass outcome. metrics.Recorder implements it.
type Observer interface {
	RebuildSucceeded(counts map[attachment.Kind]int, elapsed time.Duration)
	RebuildFailed(code string, elapsed time.Duration)
}

// Report summarizes a committed pass.
type Report struct {
	PassID   string                  `json:"pass_id"`
	Phase    Phase                   `json:"phase"`
	Counts   map[attachment.Kind]int `json:"counts"`
	Rows     int                     `json:"rows"`
	Views    int                     `json:"views"`
	Duration time.Duration           `json:"duration_ns"`
}

// Driver runs rebuild passes against one store.
type Driver struct {
	store     *store.Store
	dialect   schema.Dialect
	passIDs   PassIDGenerator
	observer  Observer
	views     bool
	fetchSize int
	now       func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithViews enables or disables view materialization. Default: enabled.
func WithViews(enabled bool) Option {
	return func(d *Driver) {
		d.views = enabled
	}
}

// WithPassIDGenerator replaces the UUIDv7 pass id generator.
func WithPassIDGenerator(g PassIDGenerator) Option {
	return func(d *Driver) {
		d.passIDs = g
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observer = o
	}
}

// WithFetchSize sets the server-side cursor batch size (Postgres only).
func WithFetchSize(n int) Option {
	return func(d *Driver) {
		d.fetchSize = n
	}
}

// WithClock replaces time.Now for duration measurement.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// New creates a Driver. The dialect must match the store's driver.
func New(s *store.Store, d schema.Dialect, opts ...Option) *Driver {
	drv := &Driver{
		store:     s,
		dialect:   d,
		passIDs:   UUIDv7Generator{},
		views:     true,
		fetchSize: DefaultFetchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

// pass carries the state of one rebuild through every phase.
type pass struct {
	id      string
	phase   Phase
	uow     *store.UnitOfWork
	report  *Report
	started time.Time
}

// advance moves to the next phase. Skipping a phase is a programming error.
func (p *pass) advance(to Phase) {
	next, ok := p.phase.next()
	if !ok || next != to {
		panic(fmt.Sprintf("rebuild: illegal phase transition %s -> %s", p.phase, to))
	}
	p.phase = to
	slog.Debug("rebuild phase", "pass_id", p.id, "phase", to.String())
}

// fail wraps err as a rebuild Error for the phase being entered.
func (p *pass) fail(code Code, txID int64, err error) *Error {
	next, _ := p.phase.next()
	re := &Error{Code: code, Phase: next, PassID: p.id, TransactionID: txID, Err: err}
	var stmtErr *store.StatementError
	if errors.As(err, &stmtErr) {
		re.Statement = stmtErr.SQL
	}
	return re
}

// Run executes one full pass: drop, create, populate, build views, commit.
// On failure nothing is committed and the returned error is a *Error.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	p := &pass{id: d.passIDs.Generate(), started: d.now()}
	p.report = &Report{PassID: p.id, Counts: make(map[attachment.Kind]int)}
	for _, k := range attachment.Kinds() {
		p.report.Counts[k] = 0
	}

	slog.Info("rebuild starting",
		"pass_id", p.id,
		"driver", d.dialect.Name(),
		"ledger", d.dialect.Options().Ledger,
		"namespace", d.dialect.Options().Namespace,
		"views", d.views,
	)

	report, err := d.run(ctx, p)
	elapsed := d.now().Sub(p.started)
	if err != nil {
		slog.Error("rebuild failed",
			"pass_id", p.id,
			"code", string(err.Code),
			"phase", err.Phase.String(),
			"transaction_id", err.TransactionID,
			"error", err.Err,
		)
		if d.observer != nil {
			d.observer.RebuildFailed(string(err.Code), elapsed)
		}
		return nil, err
	}

	report.Duration = elapsed
	slog.Info("rebuild committed",
		"pass_id", p.id,
		"rows", report.Rows,
		"views", report.Views,
		"duration", elapsed,
	)
	if d.observer != nil {
		d.observer.RebuildSucceeded(report.Counts, elapsed)
	}
	return report, nil
}

func (d *Driver) run(ctx context.Context, p *pass) (*Report, *Error) {
	uow, err := d.store.Begin(ctx)
	if err != nil {
		return nil, p.fail(CodeWrite, 0, err)
	}
	defer uow.Close()
	p.uow = uow

	if err := d.applyAll(ctx, p, d.dialect.DropStatements()); err != nil {
		return nil, p.fail(CodeStructural, 0, err)
	}
	p.advance(PhaseDropped)

	if err := d.applyAll(ctx, p, d.dialect.CreateStatements()); err != nil {
		return nil, p.fail(CodeStructural, 0, err)
	}
	p.advance(PhaseSchemaCreated)

	if err := d.populate(ctx, p); err != nil {
		return nil, err
	}
	p.advance(PhasePopulated)

	if d.views {
		stmts := d.dialect.ViewStatements()
		if err := d.applyAll(ctx, p, stmts); err != nil {
			return nil, p.fail(CodeStructural, 0, err)
		}
		p.report.Views = len(stmts)
	}
	p.advance(PhaseViewsBuilt)

	if err := checkReferences(ctx, uow, d.dialect); err != nil {
		var refErr *ReferenceError
		if errors.As(err, &refErr) {
			return nil, p.fail(CodeReferential, refErr.TransactionID, err)
		}
		return nil, p.fail(CodeWrite, 0, err)
	}

	if err := uow.Apply(ctx, nil, true); err != nil {
		code := CodeWrite
		if isForeignKeyViolation(err) {
			code = CodeReferential
		}
		return nil, p.fail(code, 0, err)
	}
	p.advance(PhaseCommitted)

	p.report.Phase = p.phase
	return p.report, nil
}

func (d *Driver) applyAll(ctx context.Context, p *pass, stmts []string) error {
	for _, s := range stmts {
		if err := p.uow.Apply(ctx, store.Exec(s), false); err != nil {
			return err
		}
	}
	return nil
}

// populate streams the ledger through the codec and router into inserts.
func (d *Driver) populate(ctx context.Context, p *pass) *Error {
	src, err := openSource(ctx, p.uow, d.dialect, d.fetchSize)
	if err != nil {
		return p.fail(CodeSource, 0, err)
	}

	for {
		row, ok, err := src.Next(ctx)
		if err != nil {
			src.Close(ctx)
			return p.fail(CodeSource, 0, err)
		}
		if !ok {
			break
		}
		if ferr := d.insert(ctx, p, row); ferr != nil {
			src.Close(ctx)
			return ferr
		}
	}

	if err := src.Close(ctx); err != nil {
		return p.fail(CodeSource, 0, err)
	}
	return nil
}

func (d *Driver) insert(ctx context.Context, p *pass, row ledgerRow) *Error {
	a, err := decode(row)
	if err != nil {
		var unknown *attachment.UnknownDiscriminatorError
		if errors.As(err, &unknown) {
			return p.fail(CodeUnknownDiscriminator, row.ID, err)
		}
		return p.fail(CodeMalformedPayload, row.ID, err)
	}

	projected, err := router.Route(row.ID, a)
	if err != nil {
		return p.fail(CodeUnknownVariant, row.ID, err)
	}

	table, ok := schema.Lookup(projected.Table)
	if !ok {
		return p.fail(CodeUnknownVariant, row.ID, fmt.Errorf("no side table named %q", projected.Table))
	}
	args, err := d.dialect.BindValues(projected.Values)
	if err != nil {
		return p.fail(CodeWrite, row.ID, err)
	}

	if err := p.uow.Apply(ctx, store.Exec(d.dialect.InsertSQL(table), args...), false); err != nil {
		if isForeignKeyViolation(err) {
			return p.fail(CodeReferential, row.ID, err)
		}
		return p.fail(CodeWrite, row.ID, err)
	}

	p.report.Counts[a.Kind()]++
	p.report.Rows++
	return nil
}

// decode validates the raw discriminator columns before decoding, so
// values outside a byte are reported as read rather than truncated.
func decode(row ledgerRow) (attachment.Attachment, error) {
	if row.Type < 0 || row.Type > 255 || row.Subtype < 0 || row.Subtype > 255 {
		return nil, &attachment.UnknownDiscriminatorError{Type: row.Type, Subtype: row.Subtype}
	}
	disc := attachment.Discriminator{Type: uint8(row.Type), Subtype: uint8(row.Subtype)}
	return attachment.Decode(disc, row.Payload)
}

// Drop removes the side-schema in its own unit of work.
func (d *Driver) Drop(ctx context.Context) error {
	uow, err := d.store.Begin(ctx)
	if err != nil {
		return &Error{Code: CodeWrite, Phase: PhaseDropped, Err: err}
	}
	defer uow.Close()

	for _, s := range d.dialect.DropStatements() {
		if err := uow.Apply(ctx, store.Exec(s), false); err != nil {
			return &Error{Code: CodeStructural, Phase: PhaseDropped, Statement: s, Err: err}
		}
	}
	if err := uow.Apply(ctx, nil, true); err != nil {
		return &Error{Code: CodeWrite, Phase: PhaseDropped, Err: err}
	}

	slog.Info("side-schema dropped", "namespace", d.dialect.Options().Namespace)
	return nil
}

// Clear deletes every side-table row in one unit of work and keeps the
// tables and views. The side-schema must exist. Unlike a rebuild, the
// result is the schema-created state with no rows.
func (d *Driver) Clear(ctx context.Context) error {
	uow, err := d.store.Begin(ctx)
	if err != nil {
		return &Error{Code: CodeWrite, Phase: PhaseSchemaCreated, Err: err}
	}
	defer uow.Close()

	for _, s := range d.dialect.ClearStatements() {
		if err := uow.Apply(ctx, store.Exec(s), false); err != nil {
			return &Error{Code: CodeStructural, Phase: PhaseSchemaCreated, Statement: s, Err: err}
		}
	}
	if err := uow.Apply(ctx, nil, true); err != nil {
		return &Error{Code: CodeWrite, Phase: PhaseSchemaCreated, Err: err}
	}

	slog.Info("side-schema cleared", "namespace", d.dialect.Options().Namespace)
	return nil
}
