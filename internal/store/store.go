// Package store provides the DuckDB persistence layer of a pvduck project.
//
// A project store is a single DuckDB file holding two tables: the pageviews
// aggregate and the sync log (ledger). This package owns the schema and the
// three operations that write to it: recording ledger entries, merging
// batches into the aggregate, and compacting the aggregate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
)

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Path is the database file.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config for the database file at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    config.DefaultMaxOpenConns,
		MaxIdleConns:    config.DefaultMaxIdleConns,
		ConnMaxLifetime: config.DefaultConnMaxLifetime,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store is an open project database.
//
// Store is safe for concurrent use, but DuckDB allows a single writing
// process per file.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// Create creates a new database file at path and initializes the schema.
// It fails with ErrStoreAlreadyExists if the file exists.
func Create(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.NewAlreadyExists(errors.ErrStoreAlreadyExists, path)
	}

	s, err := New(DefaultConfig(path))
	if err != nil {
		return nil, err
	}

	if err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		return applySchema(ctx, tx)
	}); err != nil {
		s.Close()
		os.Remove(path)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Component("store").Info("created store", "path", path)
	return s, nil
}

// Open opens an existing database file. It fails with ErrStoreNotFound if
// the file does not exist.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(errors.ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("stat store: %w", err)
	}
	return New(DefaultConfig(path))
}

// New opens a Store with the given configuration. Unlike Open it does not
// require the file to exist; DuckDB creates it on first connect.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:     db,
		config: cfg,
	}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// DB returns the underlying database connection.
// Use with caution - prefer using Store methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.config.Path
}

// Size returns the size in bytes of the database file and its write-ahead
// log.
func (s *Store) Size() (int64, error) {
	var total int64
	for _, p := range []string{s.config.Path, s.config.Path + ".wal"} {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", p, err)
		}
		total += info.Size()
	}
	return total, nil
}

// checkFile reports ErrStoreNotFound when the database file vanished after
// the store was opened.
func (s *Store) checkFile() error {
	if _, err := os.Stat(s.config.Path); os.IsNotExist(err) {
		return errors.NewNotFound(errors.ErrStoreNotFound, s.config.Path)
	}
	return nil
}

// =============================================================================
// Transaction Support
// =============================================================================

// TransactionContext executes fn within a database transaction.
//
// If fn returns an error, the transaction is rolled back. The context is
// checked again before commit so a cancelled caller never commits.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		tx.Rollback()
		return fmt.Errorf("context cancelled before commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
