package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"justice/cmd/identity"
)

// PostgresRepository implements Repository over the sessions table of schema.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresRepository builds a repository. schema must be a valid identifier
// (see identity.ValidSchema).
func NewPostgresRepository(pool *pgxpool.Pool, schema string) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	if !identity.ValidSchema(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresRepository{pool: pool, table: pgx.Identifier{schema, "sessions"}.Sanitize()}, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, tokenHash string, owner identity.UserID, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+r.table+` (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		tokenHash, int64(owner), expiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, tokenHash string, now time.Time) (identity.UserID, error) {
	var owner int64
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM `+r.table+` WHERE token_hash = $1 AND expires_at > $2`,
		tokenHash, now,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return identity.UserID(owner), nil
}

func (r *PostgresRepository) DeleteByToken(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, owner identity.UserID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE user_id = $1`, int64(owner))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
