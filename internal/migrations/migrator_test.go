package migrations

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
)

func TestLoadMigrationFiles_SortsAndFiltersUpScripts(t *testing.T) {
	source := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("SELECT 2;")},
		"0001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"0001_a.down.sql": {Data: []byte("DROP TABLE x;")},
		"README.md":       {Data: []byte("docs")},
	}

	files, err := loadMigrationFiles(source)
	if err != nil {
		t.Fatalf("loadMigrationFiles returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(files))
	}
	if files[0].Name != "0001_a.up.sql" || files[1].Name != "0002_b.up.sql" {
		t.Fatalf("unexpected order: %s, %s", files[0].Name, files[1].Name)
	}
	if files[0].SQL != "SELECT 1;" {
		t.Fatalf("unexpected sql %q", files[0].SQL)
	}
}

func TestEmbeddedMigrations_CreateKVTable(t *testing.T) {
	files, err := loadMigrationFiles(embedded())
	if err != nil {
		t.Fatalf("loadMigrationFiles returned error: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if !strings.Contains(files[0].SQL, "kv_entries") {
		t.Fatalf("expected first migration to create kv_entries, got %q", files[0].SQL)
	}
}

func TestApply_NilDB(t *testing.T) {
	if _, err := Apply(context.Background(), nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for nil db")
	}
}
