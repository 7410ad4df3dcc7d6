package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marianozunino/transferhelper/internal/config"
	"github.com/marianozunino/transferhelper/internal/migration"
	"github.com/marianozunino/transferhelper/internal/model"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrLinkNotFound is returned when no row has the requested id
var ErrLinkNotFound = errors.New("link not found")

const selectColumns = "SELECT id, name, link, deleteLink, unixTime, content_hash FROM transfer_data"

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the SQLite store at cfg.DatabasePath and brings its schema up
// to date
func NewDB(cfg *config.Config, log *zap.Logger) (*DB, error) {
	path := cfg.DatabasePath()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// One connection: the store has a single writer and a staged delete
	// must see every statement on the same connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	manager, err := migration.NewManagerWithDB(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := manager.Up(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// Path returns the file backing the store
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// InsertLink stores a new record and returns the id assigned by SQLite
func (db *DB) InsertLink(ctx context.Context, rec *model.LinkRecord) (int64, error) {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO transfer_data (name, link, deleteLink, unixTime, content_hash) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, rec.Name, rec.Link, rec.DeleteCredential, rec.CreatedAt.Unix(), nullString(rec.ContentHash))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetLinkByID retrieves a single record
func (db *DB) GetLinkByID(ctx context.Context, id int64) (*model.LinkRecord, error) {
	row := db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	rec, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrLinkNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// ListLinks lists all records in insertion order
func (db *DB) ListLinks(ctx context.Context) ([]model.LinkRecord, error) {
	rows, err := db.QueryContext(ctx, selectColumns+" ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []model.LinkRecord{}
	for rows.Next() {
		rec, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *rec)
	}

	return links, rows.Err()
}

// Tx is a store transaction. Deletions staged on it are invisible to the
// store until Commit.
type Tx struct {
	tx *sql.Tx
}

// BeginTx opens a transaction
func (db *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// DeleteLinkByID stages the removal of a row and reports whether one matched
func (t *Tx) DeleteLinkByID(ctx context.Context, id int64) (bool, error) {
	stmt, err := t.tx.PrepareContext(ctx, "DELETE FROM transfer_data WHERE id = ?")
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (*model.LinkRecord, error) {
	var (
		rec      model.LinkRecord
		name     sql.NullString
		link     sql.NullString
		delLink  sql.NullString
		unixTime sql.NullInt64
		hash     sql.NullString
	)
	if err := s.Scan(&rec.ID, &name, &link, &delLink, &unixTime, &hash); err != nil {
		return nil, err
	}
	rec.Name = name.String
	rec.Link = link.String
	rec.DeleteCredential = delLink.String
	rec.CreatedAt = time.Unix(unixTime.Int64, 0)
	rec.ContentHash = hash.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
