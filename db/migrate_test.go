package db

import (
	"path/filepath"
	"testing"
)

func TestMigrateUp_AppliesEmbeddedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	if err := MigrateUpFromPath(path); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}
	// Second run has nothing to do.
	if err := MigrateUpFromPath(path); err != nil {
		t.Fatalf("second MigrateUpFromPath() error = %v", err)
	}

	version, dirty, err := MigrationVersionFromPath(path)
	if err != nil {
		t.Fatalf("MigrationVersionFromPath() error = %v", err)
	}
	if version != SchemaVersion || dirty {
		t.Errorf("version = %d dirty = %v, want %d false", version, dirty, SchemaVersion)
	}

	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for _, table := range []string{"jobs", "batches"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationVersion_FreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	version, dirty, err := MigrationVersionFromPath(path)
	if err != nil {
		t.Fatalf("MigrationVersionFromPath() error = %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("version = %d dirty = %v, want 0 false", version, dirty)
	}
}

func TestMigrateDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "down.db")
	if err := MigrateUpFromPath(path); err != nil {
		t.Fatal(err)
	}

	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := MigrateDown(conn, 1); err != nil {
		t.Fatalf("MigrateDown(1) error = %v", err)
	}

	version, _, err := MigrationVersionFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion-1 {
		t.Errorf("version = %d, want %d", version, SchemaVersion-1)
	}

	conn, err = NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := MigrateDown(conn, -1); err != nil {
		t.Fatalf("MigrateDown(-1) error = %v", err)
	}
}

func TestMigrateUp_NilConnection(t *testing.T) {
	if err := MigrateUp(nil); err == nil {
		t.Error("MigrateUp(nil) succeeded")
	}
}
