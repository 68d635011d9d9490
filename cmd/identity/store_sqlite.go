package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store over a modernc.org/sqlite database.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db     *sql.DB
	lookup SessionLookup
}

// NewSQLiteStore wraps db, which must already be migrated. lookup may be nil,
// in which case sessions are read from the sessions table.
func NewSQLiteStore(db *sql.DB, lookup SessionLookup) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	return &SQLiteStore{db: db, lookup: lookup}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (UserID, error) {
	const op = "identity.CreateUser"

	norm, err := checkCreate(op, username, passwordHash)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, username_norm, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(username), norm, passwordHash, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		if sqliteIsUnique(err) {
			return 0, ConflictError{Op: op, Field: "username"}
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return UserID(id), nil
}

func (s *SQLiteStore) GetUserBySession(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	const op = "identity.GetUserBySession"

	if s.lookup != nil {
		id, err := s.lookup(ctx, tokenHash, now)
		if err != nil {
			return User{}, err
		}
		return s.GetUserByID(ctx, id)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.password_hash, u.created_at
		   FROM sessions s
		   JOIN users u ON u.id = s.user_id
		  WHERE s.token_hash = ? AND s.expires_at > ?`,
		tokenHash, now.UnixMilli(),
	)
	return sqliteScanUser(op, "session", row)
}

func (s *SQLiteStore) SearchUsersByUsername(ctx context.Context, prefix string, limit int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, created_at
		   FROM users
		  WHERE username_norm LIKE ? ESCAPE '\'
		  ORDER BY username_norm
		  LIMIT ?`,
		likePrefix(prefix), clampSearchLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u  User
			ms int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &ms); err != nil {
			return nil, err
		}
		u.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username_norm = ?`,
		NormalizeUsername(username),
	)
	return sqliteScanUser("identity.GetUserByUsername", "user", row)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id UserID) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`,
		int64(id),
	)
	return sqliteScanUser("identity.GetUserByID", "user", row)
}

func sqliteScanUser(op, resource string, row *sql.Row) (User, error) {
	var (
		u  User
		ms int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: resource}
		}
		return User{}, err
	}
	u.CreatedAt = time.UnixMilli(ms).UTC()
	return u, nil
}

func sqliteIsUnique(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}
