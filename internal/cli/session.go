package cli

import (
	"log/slog"

	"github.com/roach88/ledgerattach/internal/config"
	"github.com/roach88/ledgerattach/internal/ledger"
	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// session is the resolved config plus an open store for one command.
type session struct {
	cfg     *config.Config
	store   *store.Store
	dialect schema.Dialect
}

// override applies the global flags on top of file and env settings.
func (o *RootOptions) override(cfg *config.Config) {
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
	if o.Database != "" {
		cfg.Database.DSN = o.Database
	}
}

// loadConfig resolves configuration without touching the database.
func (o *RootOptions) loadConfig(f *OutputFormatter, extra ...config.Override) (*config.Config, error) {
	overrides := append([]config.Override{o.override}, extra...)
	cfg, err := config.Load(o.ConfigPath, overrides...)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	return cfg, nil
}

func dialectFor(cfg *config.Config, driver string) (schema.Dialect, error) {
	return schema.New(driver, schema.Options{
		Namespace: cfg.Rebuild.Namespace,
		Ledger:    cfg.Ledger.Table,
	})
}

// openSession loads config and connects to the configured database.
// The caller must Close the session.
func (o *RootOptions) openSession(f *OutputFormatter, extra ...config.Override) (*session, error) {
	cfg, err := o.loadConfig(f, extra...)
	if err != nil {
		return nil, err
	}

	d, err := dialectFor(cfg, cfg.Database.Driver)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid side-schema settings", err)
	}

	slog.Debug("opening database", "driver", cfg.Database.Driver)
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}

	return &session{cfg: cfg, store: st, dialect: d}, nil
}

func (s *session) ledger(f *OutputFormatter) (*ledger.Ledger, error) {
	l, err := ledger.Open(s.store, s.cfg.Ledger.Table)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
	}
	return l, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}
