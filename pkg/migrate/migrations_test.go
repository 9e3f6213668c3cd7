package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestShippedMigrationsAreValid(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations invalid: %v", err)
	}
}

func TestShippedMigrationsSeedGenerations(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var found bool
	for _, entry := range entries {
		if strings.Contains(entry.Name(), "catalog_generations") {
			found = true
			body, err := os.ReadFile(filepath.Join("migrations", entry.Name()))
			if err != nil {
				t.Fatalf("read migration: %v", err)
			}
			if !strings.Contains(string(body), "INSERT INTO catalog_generations") {
				t.Fatal("generation migration must seed both slots")
			}
		}
	}
	if !found {
		t.Fatal("missing catalog_generations migration")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Facet Index")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_facet_index.sql") {
		t.Fatalf("unexpected filename %q", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "not_versioned.sql")
	if err := os.WriteFile(bad, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected validation failure")
	}
}
