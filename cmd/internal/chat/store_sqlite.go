package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"justice/cmd/identity"
)

// SQLiteStore implements ChatStore and MessageStore over modernc.org/sqlite.
// Timestamps are unix milliseconds. The db must have foreign keys enabled.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("chat: nil db")
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) CreateChat(ctx context.Context, title string, members []identity.UserID) (ChatID, error) {
	members = lo.Uniq(members)
	if len(members) == 0 {
		return 0, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UnixMilli()
	res, err := tx.ExecContext(ctx, `INSERT INTO chats (title, created_at) VALUES (?, ?)`, title, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, id, int64(m), now); err != nil {
			if sqliteIsForeignKey(err) {
				return 0, ErrUnknownMember
			}
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return ChatID(id), nil
}

func (s *SQLiteStore) RemoveChat(ctx context.Context, chat ChatID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, int64(chat))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, chat ChatID) (Chat, error) {
	var (
		c  Chat
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM chats WHERE id = ?`, int64(chat),
	).Scan(&c.ID, &c.Title, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, err
	}
	c.CreatedAt = time.UnixMilli(ms).UTC()
	return c, nil
}

func (s *SQLiteStore) GetUserChats(ctx context.Context, user identity.UserID) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.created_at
		   FROM chats c
		   JOIN chat_members m ON m.chat_id = c.id
		  WHERE m.user_id = ?
		  ORDER BY c.created_at DESC, c.id DESC`,
		int64(user),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Chat, 0)
	for rows.Next() {
		var (
			c  Chat
			ms int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &ms); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetUserChatIDs(ctx context.Context, user identity.UserID) ([]ChatID, error) {
	return sqliteCollectIDs[ChatID](ctx, s.db,
		`SELECT chat_id FROM chat_members WHERE user_id = ? ORDER BY chat_id DESC`, int64(user))
}

func (s *SQLiteStore) GetChatMembers(ctx context.Context, chat ChatID) ([]identity.UserID, error) {
	return sqliteCollectIDs[identity.UserID](ctx, s.db,
		`SELECT user_id FROM chat_members WHERE chat_id = ? ORDER BY user_id`, int64(chat))
}

func (s *SQLiteStore) IsMember(ctx context.Context, user identity.UserID, chat ChatID) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ?)`,
		int64(chat), int64(user),
	).Scan(&ok)
	return ok, err
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, chat ChatID, sender identity.UserID, content string) (Message, error) {
	at := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)`,
		int64(chat), int64(sender), content, at.UnixMilli(),
	)
	if err != nil {
		if sqliteIsForeignKey(err) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	from := sender
	return Message{
		ID:        MessageID(id),
		Content:   content,
		ChatID:    chat,
		SenderID:  &from,
		CreatedAt: time.UnixMilli(at.UnixMilli()).UTC(),
	}, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, chat ChatID, limit int, before *MessageID) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	q := `SELECT id, content, chat_id, sender_id, created_at FROM messages WHERE chat_id = ?`
	args := []any{int64(chat)}
	if before != nil {
		q += ` AND id < ?`
		args = append(args, int64(*before))
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m      Message
			sender sql.NullInt64
			ms     int64
		)
		if err := rows.Scan(&m.ID, &m.Content, &m.ChatID, &sender, &ms); err != nil {
			return nil, err
		}
		if sender.Valid {
			u := identity.UserID(sender.Int64)
			m.SenderID = &u
		}
		m.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func sqliteCollectIDs[T ~int64](ctx context.Context, db *sql.DB, q string, arg int64) ([]T, error) {
	rows, err := db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, T(id))
	}
	return out, rows.Err()
}

func sqliteIsForeignKey(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}
