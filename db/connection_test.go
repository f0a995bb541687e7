package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig("/test/path.db")

	if config.Path != "/test/path.db" {
		t.Errorf("Path = %q", config.Path)
	}
	if config.BusyTimeout != 5000 {
		t.Errorf("BusyTimeout = %d, want 5000", config.BusyTimeout)
	}
	if config.MaxOpenConns != 1 || config.MaxIdleConns != 1 {
		t.Errorf("conns = %d/%d, want 1/1", config.MaxOpenConns, config.MaxIdleConns)
	}
}

func TestNewSQLiteConnection_EmptyPath(t *testing.T) {
	conn, err := NewSQLiteConnection(ConnectionConfig{})
	if err == nil {
		conn.Close()
		t.Fatal("expected error for empty path")
	}
}

func TestNewSQLiteConnection_WAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		t.Fatalf("NewSQLiteConnectionWithDefaults() error = %v", err)
	}
	defer conn.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}
