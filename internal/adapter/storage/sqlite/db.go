package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

var errForeignTx = errors.New("sqlite: transaction was not opened by this store")

// DSN builds the driver connection string for a database file. Every
// transaction starts with BEGIN IMMEDIATE, so scopes hold the write lock
// from their first statement.
func DSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// Open creates the database file if needed, applies migrations and returns
// a handle limited to one connection.
func Open(ctx context.Context, path string, log zerolog.Logger) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(path, log); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer; one connection turns lock contention into
	// pool waits, which honor the caller's context.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite database opened")
	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// sqliteTx adapts *sql.Tx to ports.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

// Rollback is a no-op once the scope has been committed.
func (t *sqliteTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Transactor implements ports.DBTransactor on a SQLite handle.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a new Transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// Begin starts an immediate transaction.
func (t *Transactor) Begin(ctx context.Context) (ports.Tx, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sqlite transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func sqlTx(tx ports.Tx) (*sql.Tx, error) {
	st, ok := tx.(*sqliteTx)
	if !ok {
		return nil, errForeignTx
	}
	return st.tx, nil
}

// HealthCheck implements ports.HealthChecker for SQLite.
type HealthCheck struct {
	db *sql.DB
}

// NewHealthCheck creates a SQLite health checker.
func NewHealthCheck(db *sql.DB) *HealthCheck {
	return &HealthCheck{db: db}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *HealthCheck) Name() string {
	return "sqlite"
}
