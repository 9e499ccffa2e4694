package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractVersion(t *testing.T) {
	tests := map[string]string{
		"000001_ledger.up.sql":    "000001",
		"000002_indexes.down.sql": "000002",
		"noversion":               "noversion",
	}
	for in, want := range tests {
		if got := extractVersion(in); got != want {
			t.Errorf("extractVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestListMigrationFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_b.up.sql",
		"000001_a.up.sql",
		"000001_a.down.sql",
		"README.md",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := listMigrationFiles(dir, ".up.sql")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"000001_a.up.sql", "000002_b.up.sql"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRepositoryMigrationsArePaired(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	ups, err := listMigrationFiles(dir, ".up.sql")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations found")
	}
	for _, up := range ups {
		down := filepath.Join(dir, up[:len(up)-len(".up.sql")]+".down.sql")
		if _, err := os.Stat(down); err != nil {
			t.Errorf("%s has no down migration", up)
		}
	}
}
