package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go_waifu2x/logging"
)

// openTestDB opens a migrated ledger in a temp dir and closes it at the end
// of the test.
func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "jobs.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "jobs.db")

	d, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file missing: %v", err)
	}
	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Error("Open(\"\") succeeded")
	}
}

func TestDatabase_Close(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	d, err := Open(filepath.Join(t.TempDir(), "jobs.db"), logging.FromZap(zap.New(obsCore)))
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := d.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after Close = %v, want ErrClosed", err)
	}
	if d.DB() != nil {
		t.Error("DB() after Close is not nil")
	}
	if logs.FilterMessage("database closed").Len() != 1 {
		t.Error("expected one 'database closed' entry")
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	d, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := NewRepository(d).StartBatch(context.Background(), "upscale")
	if err != nil {
		t.Fatal(err)
	}
	d.Close()

	d, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer d.Close()

	var command string
	if err := d.DB().QueryRow(`SELECT command FROM batches WHERE id = ?`, batch).Scan(&command); err != nil {
		t.Fatalf("batch lost after reopen: %v", err)
	}
	if command != "upscale" {
		t.Errorf("command = %q", command)
	}
}
