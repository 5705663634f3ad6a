// Package sqlite implements the store.sqlite module: session persistence
// and the SQuAD full-text index in one SQLite database. It uses
// modernc.org/sqlite (pure Go, no CGO) with FTS5 and WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/squad"
)

// Service names registered by the module.
const (
	ServiceSessionStore = "session.store"
	ServiceRetriever    = "squad.retriever"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a session.Store and a squad.Retriever backed by a single
// SQLite database.
type Module struct {
	config Config
	db     *DB
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = DefaultPath(ctx.DataDir)
	}

	db, err := open(context.TODO(), m.config)
	if err != nil {
		return err
	}
	m.db = db

	if m.config.Dataset != "" {
		if err := m.indexDataset(context.TODO()); err != nil {
			_ = db.Close()
			return err
		}
	}

	ctx.RegisterService(ServiceSessionStore, db.Sessions())
	ctx.RegisterService(ServiceRetriever, db.Index())

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// indexDataset loads the configured dataset unless records are already
// indexed.
func (m *Module) indexDataset(ctx context.Context) error {
	n, err := m.db.Index().Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("squad index ready", "records", n)
		return nil
	}

	f, err := os.Open(m.config.Dataset)
	if err != nil {
		return fmt.Errorf("sqlite: open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := squad.LoadDataset(f)
	if err != nil {
		return err
	}
	if err := m.db.Index().Build(ctx, records); err != nil {
		return err
	}
	m.logger.Info("squad index built", "dataset", m.config.Dataset, "records", len(records))
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	var n int
	if err := m.db.db.QueryRowContext(context.TODO(), "SELECT count(*) FROM squad_fts").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: FTS5 not available: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite store stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// DB returns the opened database.
func (m *Module) DB() *DB { return m.db }
