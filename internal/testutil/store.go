package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// LegacyRow is a row as written by releases that predate migrations
type LegacyRow struct {
	Name       string
	Link       string
	DeleteLink string
	UnixTime   int64
}

// CreateLegacyStore writes a store with the original unversioned layout.
// withHash adds the content_hash column the way some releases did by hand.
func CreateLegacyStore(dbPath string, withHash bool, rows ...LegacyRow) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transfer_data (
		'id'	INTEGER,
		'name'	TEXT,
		'link'	TEXT,
		'deleteLink'	TEXT,
		'unixTime'	INTEGER,
		PRIMARY KEY('id' AUTOINCREMENT));
	`)
	if err != nil {
		return fmt.Errorf("create legacy table: %w", err)
	}

	if withHash {
		if _, err := db.Exec("ALTER TABLE transfer_data ADD COLUMN content_hash TEXT"); err != nil {
			return fmt.Errorf("add legacy hash column: %w", err)
		}
	}

	for _, row := range rows {
		_, err := db.Exec(
			"INSERT INTO transfer_data (name, link, deleteLink, unixTime) VALUES (?, ?, ?, ?)",
			row.Name, row.Link, row.DeleteLink, row.UnixTime,
		)
		if err != nil {
			return fmt.Errorf("insert legacy row: %w", err)
		}
	}
	return nil
}

// WriteFile creates name under dir with content and returns its path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
