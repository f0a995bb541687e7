package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"go_waifu2x/logging"
)

// Database owns the ledger connection. Open migrates the schema before
// handing the connection out.
//
// Usage:
//
//	database, err := db.Open(cfg.DatabasePath, logger)
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//	repo := db.NewRepository(database)
type Database struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
	mu     sync.RWMutex
}

// Open creates the database file and its parent directories if needed,
// applies pending migrations and opens the connection used by
// repositories.
func Open(path string, logger *logging.Logger) (*Database, error) {
	return OpenWithConfig(DefaultConnectionConfig(path), logger)
}

// OpenWithConfig is Open with custom connection settings.
func OpenWithConfig(config ConnectionConfig, logger *logging.Logger) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("db")

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// golang-migrate closes the connection it is given, so migrations run
	// on their own connection first.
	if err := MigrateUpFromPath(config.Path); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	conn, err := NewSQLiteConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	logger.Debug("database opened", zap.String("path", config.Path))
	return &Database{db: conn, path: config.Path, logger: logger}, nil
}

// DB returns the underlying connection. Close the Database, not this.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return d.db.PingContext(ctx)
}

// Close closes the connection. Calling it again is a no-op.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.logger.Debug("database closed", zap.String("path", d.path))
	return nil
}

// conn returns the live connection or ErrClosed. Callers hold d.mu.
func (d *Database) conn() (*sql.DB, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db, nil
}
