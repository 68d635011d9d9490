package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"justice/cmd/identity"
	"justice/cmd/internal/auth/session"
	"justice/cmd/internal/chat"
	"justice/migrations"
)

// stores is the storage selected by config. The app owns every handle in it.
type stores struct {
	backend  string
	users    identity.Store
	chats    chat.ChatStore
	messages chat.MessageStore
	sessions session.Repository

	pool *pgxpool.Pool
	db   *sql.DB
	rdb  *redis.Client

	once     sync.Once
	closeErr error
}

func openStores(ctx context.Context, cfg Config, log *slog.Logger) (*stores, error) {
	s := &stores{backend: cfg.StoreBackend}

	if cfg.SessionStoreBackend() == BackendRedis {
		rdb, err := NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.rdb = rdb
		repo, err := session.NewRedisRepository(rdb, cfg.RedisPrefix)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.sessions = repo
	}

	var err error
	switch cfg.StoreBackend {
	case BackendMemory:
		err = s.openMemory()
	case BackendSQLite:
		err = s.openSQLite(ctx, cfg)
	case BackendPostgres:
		err = s.openPostgres(ctx, cfg)
	default:
		err = fmt.Errorf("%w: unknown store backend %q", ErrConfig, cfg.StoreBackend)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	log.Info("store.open",
		slog.String("backend", cfg.StoreBackend),
		slog.String("sessions", cfg.SessionStoreBackend()),
	)
	return s, nil
}

func (s *stores) openMemory() error {
	if s.sessions == nil {
		s.sessions = session.NewMemoryRepository()
	}
	users := identity.NewMemoryStore(session.UserLookup(s.sessions))
	mem := chat.NewMemoryStore(users)
	s.users, s.chats, s.messages = users, mem, mem
	return nil
}

func (s *stores) openSQLite(ctx context.Context, cfg Config) error {
	db, err := OpenSQLite(ctx, cfg)
	if err != nil {
		return err
	}
	s.db = db
	if err := migrations.ApplySQLite(ctx, db); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}

	var lookup identity.SessionLookup
	if s.sessions == nil {
		repo, err := session.NewSQLiteRepository(db)
		if err != nil {
			return err
		}
		s.sessions = repo
	} else {
		lookup = session.UserLookup(s.sessions)
	}

	users, err := identity.NewSQLiteStore(db, lookup)
	if err != nil {
		return err
	}
	st, err := chat.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	s.users, s.chats, s.messages = users, st, st
	return nil
}

func (s *stores) openPostgres(ctx context.Context, cfg Config) error {
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	s.pool = pool
	if cfg.DBAutoMigrate {
		if err := migrations.ApplyPostgres(ctx, pool, cfg.DBSchema); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}

	opts := []identity.PostgresOption{identity.WithSchema(cfg.DBSchema)}
	if s.sessions == nil {
		repo, err := session.NewPostgresRepository(pool, cfg.DBSchema)
		if err != nil {
			return err
		}
		s.sessions = repo
	} else {
		opts = append(opts, identity.WithSessionLookup(session.UserLookup(s.sessions)))
	}

	users, err := identity.NewPostgresStore(pool, opts...)
	if err != nil {
		return err
	}
	st, err := chat.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return err
	}
	s.users, s.chats, s.messages = users, st, st
	return nil
}

// Ready pings every external dependency.
func (s *stores) Ready(ctx context.Context) error {
	if s.pool != nil {
		if err := PingDB(ctx, s.pool, 2*time.Second); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.db != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(pctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	if s.rdb != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rdb.Ping(pctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *stores) Close() error {
	var errs []error
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	return errors.Join(errs...)
}

func (s *stores) closeOnce() error {
	s.once.Do(func() { s.closeErr = s.Close() })
	return s.closeErr
}
