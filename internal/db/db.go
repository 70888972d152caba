// Package db persists the pod and episode catalogs in an embedded sqlite
// database. Consistency between the two collections is maintained by the
// reconciler, not by the schema.
package db

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // database driver
)

const schema = `
CREATE TABLE IF NOT EXISTS pods (
	feed_id        TEXT PRIMARY KEY,
	uid            INTEGER NOT NULL DEFAULT 0,
	sid            INTEGER NOT NULL DEFAULT 0,
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	cover_art      TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	link           TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	subcategories  TEXT NOT NULL DEFAULT '[]',
	explicit       TEXT NOT NULL DEFAULT 'no',
	lang           TEXT NOT NULL DEFAULT '',
	page_size      INTEGER NOT NULL DEFAULT 10,
	update_period  TEXT NOT NULL DEFAULT '12h',
	format         TEXT NOT NULL DEFAULT 'audio',
	playlist_sort  TEXT NOT NULL DEFAULT 'desc',
	quality        TEXT NOT NULL DEFAULT 'low',
	opml           BOOLEAN NOT NULL DEFAULT 0,
	keep_last      INTEGER NOT NULL DEFAULT 10,
	private_feed   BOOLEAN NOT NULL DEFAULT 0,
	endorse        TEXT NOT NULL DEFAULT '[]',
	keyword        TEXT NOT NULL DEFAULT '',
	episodes       TEXT NOT NULL DEFAULT '[]',
	xml_url        TEXT NOT NULL DEFAULT '',
	data_dir       TEXT NOT NULL DEFAULT '',
	base_url       TEXT NOT NULL DEFAULT '',
	update_at      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS episodes (
	bvid           TEXT NOT NULL,
	quality        TEXT NOT NULL,
	format         TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	image          TEXT NOT NULL DEFAULT '',
	duration       TEXT NOT NULL DEFAULT '',
	pubdate        INTEGER NOT NULL DEFAULT 0,
	explicit       TEXT NOT NULL DEFAULT 'no',
	link           TEXT NOT NULL DEFAULT '',
	mime_type      TEXT NOT NULL DEFAULT '',
	video_quality  TEXT NOT NULL DEFAULT '',
	audio_quality  TEXT NOT NULL DEFAULT '',
	location       TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	size           INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending',
	on_track       BOOLEAN NOT NULL DEFAULT 1,
	endorse        TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (bvid, quality, format)
);
`

// Store wraps the database handle. It is shared by every component that
// reads or mutates the catalogs.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an existing connection. Used by tests with sqlmock.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open backs up any previous database file, then opens a fresh one and
// creates the schema. The catalog is rebuilt from scratch on every start;
// the backup is kept for inspection.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("backup database: %w", err)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove old database: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
