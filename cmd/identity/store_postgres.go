package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the Postgres schema used when WithSchema is not given.
const DefaultSchema = "justice"

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it.
// Identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	lookup SessionLookup
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidSchema reports whether s is a legal unquoted PostgreSQL identifier.
func ValidSchema(s string) bool { return pgIdentRe.MatchString(s) }

// WithSchema sets the Postgres schema (default "justice").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !ValidSchema(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithSessionLookup resolves sessions through fn instead of the sessions table,
// for deployments that keep sessions elsewhere (redis).
func WithSessionLookup(fn SessionLookup) PostgresOption {
	return func(s *PostgresStore) error {
		s.lookup = fn
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (UserID, error) {
	const op = "identity.CreateUser"

	norm, err := checkCreate(op, username, passwordHash)
	if err != nil {
		return 0, err
	}

	var id UserID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table("users")+` (username, username_norm, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		strings.TrimSpace(username), norm, passwordHash,
	).Scan(&id)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return 0, ConflictError{Op: op, Field: field}
		}
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) GetUserBySession(ctx context.Context, tokenHash string, now time.Time) (User, error) {
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

	row := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.password_hash, u.created_at
		   FROM `+s.table("sessions")+` s
		   JOIN `+s.table("users")+` u ON u.id = s.user_id
		  WHERE s.token_hash = $1 AND s.expires_at > $2`,
		tokenHash, now,
	)
	return pgScanUser(op, "session", row)
}

func (s *PostgresStore) SearchUsersByUsername(ctx context.Context, prefix string, limit int) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, password_hash, created_at
		   FROM `+s.table("users")+`
		  WHERE username_norm LIKE $1 ESCAPE '\'
		  ORDER BY username_norm
		  LIMIT $2`,
		likePrefix(prefix), clampSearchLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at
		   FROM `+s.table("users")+`
		  WHERE username_norm = $1`,
		NormalizeUsername(username),
	)
	return pgScanUser("identity.GetUserByUsername", "user", row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id UserID) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at
		   FROM `+s.table("users")+`
		  WHERE id = $1`,
		int64(id),
	)
	return pgScanUser("identity.GetUserByID", "user", row)
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func pgScanUser(op, resource string, row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: resource}
		}
		return User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}
	if strings.Contains(strings.ToLower(pgErr.ConstraintName), "username") {
		return "username", true
	}
	return "unique", true
}
