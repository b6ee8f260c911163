package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{"resources", "meta_entries", "terms", "term_assignments", "plugin_data", "resource_snapshots", "change_log", "sync_runs", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Fresh database should need migration
	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Error("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	// Error should mention needing migration
	if !errors.Is(err, ErrNoSchema) {
		t.Errorf("CheckDBMigrationStatus() error = %v, want ErrNoSchema", err)
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Status should be OK now
	err := CheckDBMigrationStatus(db)
	if err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Run migration twice
	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	// Status should still be OK
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Meta for a resource that does not exist must be rejected
	_, err := db.Exec(`INSERT INTO meta_entries (resource_id, key, value) VALUES (999, 'k', '"v"')`)
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_DeleteCascades(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	stmts := []string{
		`INSERT INTO resources (id, local_key, type) VALUES (1, 'key-1', 'article')`,
		`INSERT INTO meta_entries (resource_id, key, value) VALUES (1, 'color', '"red"')`,
		`INSERT INTO term_assignments (resource_id, term_id, taxonomy) VALUES (1, 7, 'category')`,
		`INSERT INTO plugin_data (resource_id, plugin, key, value) VALUES (1, 'seo', 'title', '"t"')`,
		`INSERT INTO resource_snapshots (resource_id, state, captured_at) VALUES (1, '{}', datetime('now'))`,
		`INSERT INTO change_log (resource_key, resource_id, field_path, created_at) VALUES ('key-1', 1, 'title', datetime('now'))`,
		`DELETE FROM resources WHERE id = 1`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Exec(%q) error = %v", stmt, err)
		}
	}

	for _, table := range []string{"meta_entries", "term_assignments", "plugin_data", "resource_snapshots"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after resource delete, want 0", table, n)
		}
	}

	var logged int
	if err := db.QueryRow("SELECT COUNT(*) FROM change_log").Scan(&logged); err != nil {
		t.Fatalf("counting change_log: %v", err)
	}
	if logged != 1 {
		t.Errorf("change_log has %d rows after resource delete, want 1", logged)
	}
}

func TestSchema_RekeyCascades(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO resources (id, local_key, type) VALUES (-1, 'key-1', 'article')`); err != nil {
		t.Fatalf("inserting resource: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO meta_entries (resource_id, key, value) VALUES (-1, 'color', '"red"')`); err != nil {
		t.Fatalf("inserting meta: %v", err)
	}
	if _, err := db.Exec(`UPDATE resources SET id = 42 WHERE id = -1`); err != nil {
		t.Fatalf("re-keying resource: %v", err)
	}

	var rid int64
	if err := db.QueryRow("SELECT resource_id FROM meta_entries WHERE key = 'color'").Scan(&rid); err != nil {
		t.Fatalf("reading meta: %v", err)
	}
	if rid != 42 {
		t.Errorf("meta resource_id = %d, want 42", rid)
	}
}

func TestSchema_TermAssignmentsUnique(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO resources (id, local_key, type) VALUES (1, 'key-1', 'article')`); err != nil {
		t.Fatalf("inserting resource: %v", err)
	}
	insert := `INSERT INTO term_assignments (resource_id, term_id, taxonomy) VALUES (1, 3, 'tag')`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("Expected unique constraint violation for duplicate assignment, but insert succeeded")
	}
}

func TestSchema_ChangeLogAppendOnly(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO change_log (resource_key, resource_id, field_path, old_value, new_value, created_at)
		VALUES ('key-1', 1, 'title', '"a"', '"b"', datetime('now'))`)
	if err != nil {
		t.Fatalf("inserting change: %v", err)
	}

	if _, err := db.Exec(`UPDATE change_log SET new_value = '"c"'`); err == nil {
		t.Error("UPDATE on change_log succeeded, want error")
	}
	if _, err := db.Exec(`DELETE FROM change_log`); err == nil {
		t.Error("DELETE on change_log succeeded, want error")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// each connection would get its own in-memory database
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}
