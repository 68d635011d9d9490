package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"justice/cmd/identity"
)

// PostgresStore implements ChatStore and MessageStore over PostgreSQL.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("chat: nil pool")
	}
	if !identity.ValidSchema(schema) {
		return nil, fmt.Errorf("chat: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func (s *PostgresStore) CreateChat(ctx context.Context, title string, members []identity.UserID) (ChatID, error) {
	members = lo.Uniq(members)
	if len(members) == 0 {
		return 0, ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO `+s.table("chats")+` (title) VALUES ($1) RETURNING id`, title,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	ids := lo.Map(members, func(m identity.UserID, _ int) int64 { return int64(m) })
	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("chat_members")+` (chat_id, user_id)
		 SELECT $1, unnest($2::bigint[])`,
		id, ids,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return 0, ErrUnknownMember
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ChatID(id), nil
}

func (s *PostgresStore) RemoveChat(ctx context.Context, chat ChatID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table("chats")+` WHERE id = $1`, int64(chat))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, chat ChatID) (Chat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at FROM `+s.table("chats")+` WHERE id = $1`, int64(chat),
	)
	c, err := pgScanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) GetUserChats(ctx context.Context, user identity.UserID) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.title, c.created_at
		   FROM `+s.table("chats")+` c
		   JOIN `+s.table("chat_members")+` m ON m.chat_id = c.id
		  WHERE m.user_id = $1
		  ORDER BY c.created_at DESC, c.id DESC`,
		int64(user),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Chat, error) {
		return pgScanChat(row)
	})
}

func (s *PostgresStore) GetUserChatIDs(ctx context.Context, user identity.UserID) ([]ChatID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chat_id FROM `+s.table("chat_members")+` WHERE user_id = $1 ORDER BY chat_id DESC`,
		int64(user),
	)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return lo.Map(ids, func(id int64, _ int) ChatID { return ChatID(id) }), nil
}

func (s *PostgresStore) GetChatMembers(ctx context.Context, chat ChatID) ([]identity.UserID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM `+s.table("chat_members")+` WHERE chat_id = $1 ORDER BY user_id`,
		int64(chat),
	)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return lo.Map(ids, func(id int64, _ int) identity.UserID { return identity.UserID(id) }), nil
}

func (s *PostgresStore) IsMember(ctx context.Context, user identity.UserID, chat ChatID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table("chat_members")+` WHERE chat_id = $1 AND user_id = $2)`,
		int64(chat), int64(user),
	).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) CreateMessage(ctx context.Context, chat ChatID, sender identity.UserID, content string) (Message, error) {
	var (
		id int64
		at time.Time
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table("messages")+` (chat_id, sender_id, content)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		int64(chat), int64(sender), content,
	).Scan(&id, &at)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	from := sender
	return Message{ID: MessageID(id), Content: content, ChatID: chat, SenderID: &from, CreatedAt: at.UTC()}, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, chat ChatID, limit int, before *MessageID) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	q := `SELECT id, content, chat_id, sender_id, created_at FROM ` + s.table("messages") + ` WHERE chat_id = $1`
	args := []any{int64(chat), limit}
	if before != nil {
		q += ` AND id < $3`
		args = append(args, int64(*before))
	}
	q += ` ORDER BY id DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var (
			m      Message
			id     int64
			chatID int64
			sender *int64
		)
		if err := row.Scan(&id, &m.Content, &chatID, &sender, &m.CreatedAt); err != nil {
			return Message{}, err
		}
		m.ID, m.ChatID = MessageID(id), ChatID(chatID)
		if sender != nil {
			u := identity.UserID(*sender)
			m.SenderID = &u
		}
		m.CreatedAt = m.CreatedAt.UTC()
		return m, nil
	})
}

func pgScanChat(row pgx.Row) (Chat, error) {
	var (
		c  Chat
		id int64
	)
	if err := row.Scan(&id, &c.Title, &c.CreatedAt); err != nil {
		return Chat{}, err
	}
	c.ID = ChatID(id)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503" // foreign_key_violation
}
