package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"justice/cmd/identity"
)

// DefaultRedisPrefix namespaces every key written by RedisRepository.
const DefaultRedisPrefix = "justice:"

// RedisRepository implements Repository on Redis.
//
// Each session is a string key "<prefix>session:<hash>" holding
// "<owner>|<expires unix ms>" with a PX expiry, plus membership in the set
// "<prefix>user:<owner>:sessions" so DeleteByOwner can find it.
// Redis expires keys itself, so DeleteExpired only reports 0.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRepository(rdb redis.UniversalClient, prefix string) (*RedisRepository, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisRepository) sessionKey(tokenHash string) string {
	return r.prefix + "session:" + tokenHash
}

func (r *RedisRepository) ownerKey(owner identity.UserID) string {
	return r.prefix + "user:" + owner.String() + ":sessions"
}

func (r *RedisRepository) Insert(ctx context.Context, tokenHash string, owner identity.UserID, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	val := owner.String() + "|" + strconv.FormatInt(expiresAt.UnixMilli(), 10)

	ok, err := r.rdb.SetNX(ctx, r.sessionKey(tokenHash), val, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}

	idx := r.ownerKey(owner)
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, idx, tokenHash)
	pipe.PExpire(ctx, idx, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		_ = r.rdb.Del(ctx, r.sessionKey(tokenHash)).Err()
		return err
	}
	return nil
}

func (r *RedisRepository) FindByToken(ctx context.Context, tokenHash string, now time.Time) (identity.UserID, error) {
	val, err := r.rdb.Get(ctx, r.sessionKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	owner, expiresAt, err := parseRedisValue(val)
	if err != nil {
		return 0, err
	}
	if !expiresAt.After(now) {
		return 0, ErrNotFound
	}
	return owner, nil
}

func (r *RedisRepository) DeleteByToken(ctx context.Context, tokenHash string) error {
	key := r.sessionKey(tokenHash)
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if owner, _, perr := parseRedisValue(val); perr == nil {
		pipe.SRem(ctx, r.ownerKey(owner), tokenHash)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRepository) DeleteByOwner(ctx context.Context, owner identity.UserID) (int64, error) {
	idx := r.ownerKey(owner)
	hashes, err := r.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, r.sessionKey(h))
	}

	pipe := r.rdb.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return del.Val(), nil
}

func (r *RedisRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func parseRedisValue(val string) (identity.UserID, time.Time, error) {
	ownerStr, msStr, ok := strings.Cut(val, "|")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("session: malformed redis value")
	}
	owner, err := strconv.ParseInt(ownerStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("session: malformed redis owner: %w", err)
	}
	ms, err := strconv.ParseInt(msStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("session: malformed redis expiry: %w", err)
	}
	return identity.UserID(owner), time.UnixMilli(ms).UTC(), nil
}
