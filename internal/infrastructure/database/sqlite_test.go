package database

import (
	"path/filepath"
	"testing"
)

func TestOpenSQLiteAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != len(sqliteMigrations) {
		t.Fatalf("schema version = %d, want %d", version, len(sqliteMigrations))
	}

	for _, table := range []string{"users", "conversations", "conversation_participants", "messages"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&count); err != nil {
			t.Fatalf("check table %q: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("table %q missing", table)
		}
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys;").Scan(&fk); err != nil || fk != 1 {
		t.Fatalf("foreign_keys = %d (%v), want 1", fk, err)
	}
}

func TestOpenSQLiteIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	db.Close()
}

func TestNormalizeDSN(t *testing.T) {
	cases := map[string]string{
		"postgresql+asyncpg://u:p@h/db": "postgresql://u:p@h/db",
		"postgres+pgx://u:p@h/db":       "postgres://u:p@h/db",
		"  postgres://u:p@h/db ":        "postgres://u:p@h/db",
	}
	for in, want := range cases {
		if got := normalizeDSN(in); got != want {
			t.Errorf("normalizeDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
