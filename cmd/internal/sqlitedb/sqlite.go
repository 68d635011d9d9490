// Package sqlitedb opens modernc.org/sqlite databases with the pragmas every
// justice store expects.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEmptyPath is returned when Open is given no file path.
var ErrEmptyPath = errors.New("sqlitedb: empty path")

// DSN appends foreign key, busy timeout and WAL pragmas to path.
func DSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Open opens path and verifies the connection. The pool holds a single
// connection, so callers must not query through db while a tx is open.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrEmptyPath
	}

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
