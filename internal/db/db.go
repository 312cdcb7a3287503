// Package db locates and opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dataDir     = ".certline"
	dbFileName  = "certline.db"
	busyTimeout = 5 * time.Second
)

// Config selects the database. File overrides the workspace location.
type Config struct {
	Workspace string
	File      string
}

func (c Config) file() string {
	if c.File != "" {
		return c.File
	}
	return Path(c.Workspace)
}

// EnsureWorkspace creates <workspace>/.certline and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open opens the database with foreign keys enforced and WAL journaling.
func Open(cfg Config) (*sql.DB, error) {
	file := cfg.file()
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	conn, err := sql.Open("sqlite", "file:"+file+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	return conn, nil
}

// Path returns the database file for a workspace.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), dataDir, dbFileName)
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
