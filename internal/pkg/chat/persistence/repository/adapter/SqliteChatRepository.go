package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
)

// SqliteChatRepository stores conversations in a local SQLite file. The
// database is opened with _txlock=immediate, so every write transaction
// holds the single writer lock from its first statement.
type SqliteChatRepository struct {
	db *sql.DB
}

func NewSqliteChatRepository(db *sql.DB) *SqliteChatRepository {
	return &SqliteChatRepository{db: db}
}

var _ port.ChatRepository = (*SqliteChatRepository)(nil)

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

const sqliteConversationSelect = `
SELECT c.id, c.pair_key, c.last_message_id, c.last_message_seq, c.created_at, c.updated_at,
       m.id, m.sender_id, m.content, m.created_at, m.is_read, m.seq
FROM conversations c
LEFT JOIN messages m ON m.id = c.last_message_id`

type sqliteScanner interface{ Scan(...any) error }

func scanSqliteConversation(s sqliteScanner) (chat.Conversation, error) {
	var (
		c                chat.Conversation
		lastID           sql.NullString
		created, updated int64
		mID, mSender     sql.NullString
		mContent         sql.NullString
		mAt, mSeq        sql.NullInt64
		mRead            sql.NullBool
	)
	if err := s.Scan(&c.ID, &c.PairKey, &lastID, &c.LastMessageSeq, &created, &updated,
		&mID, &mSender, &mContent, &mAt, &mRead, &mSeq); err != nil {
		return chat.Conversation{}, err
	}
	c.CreatedAt = fromMicros(created)
	c.UpdatedAt = fromMicros(updated)
	if lastID.Valid {
		id := lastID.String
		c.LastMessageID = &id
	}
	if mID.Valid {
		c.LastMessage = &chat.Message{
			ID:             mID.String,
			ConversationID: c.ID,
			SenderID:       mSender.String,
			Content:        mContent.String,
			CreatedAt:      fromMicros(mAt.Int64),
			Read:           mRead.Bool,
			Seq:            mSeq.Int64,
		}
	}
	return c, nil
}

func (r *SqliteChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, pair_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING`, c.ID, c.PairKey, toMicros(c.CreatedAt), toMicros(c.UpdatedAt))
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("sqlite: insert conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		existing, err := r.FindConversationByPair(ctx, c.PairKey)
		return existing, false, err
	}
	for _, uid := range c.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)`, c.ID, uid, toMicros(c.CreatedAt)); err != nil {
			return chat.Conversation{}, false, fmt.Errorf("sqlite: insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return chat.Conversation{}, false, fmt.Errorf("sqlite: commit: %w", err)
	}
	c.Participants = append([]string(nil), c.Participants...)
	c.LastMessage = nil
	return c, true, nil
}

func (r *SqliteChatRepository) FindConversationByPair(ctx context.Context, pairKey string) (chat.Conversation, error) {
	return r.getOne(ctx, sqliteConversationSelect+` WHERE c.pair_key = ?`, pairKey)
}

func (r *SqliteChatRepository) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	return r.getOne(ctx, sqliteConversationSelect+` WHERE c.id = ?`, id)
}

func (r *SqliteChatRepository) getOne(ctx context.Context, q, arg string) (chat.Conversation, error) {
	c, err := scanSqliteConversation(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("sqlite: get conversation: %w", err)
	}
	parts, err := r.participants(ctx, []string{c.ID})
	if err != nil {
		return chat.Conversation{}, err
	}
	c.Participants = parts[c.ID]
	return c, nil
}

func (r *SqliteChatRepository) ListConversationsForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, sqliteConversationSelect+`
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	var out []chat.Conversation
	var ids []string
	for rows.Next() {
		c, err := scanSqliteConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	parts, err := r.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Participants = parts[out[i].ID]
	}
	return out, nil
}

func (r *SqliteChatRepository) participants(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, user_id FROM conversation_participants
		WHERE conversation_id IN (?`+strings.Repeat(",?", len(ids)-1)+`)
		ORDER BY joined_at, rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid, uid string
		if err := rows.Scan(&cid, &uid); err != nil {
			return nil, fmt.Errorf("sqlite: scan participant: %w", err)
		}
		out[cid] = append(out[cid], uid)
	}
	return out, rows.Err()
}

func sqliteConversationExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: check conversation: %w", err)
	}
	return nil
}

func (r *SqliteChatRepository) UpdateParticipants(ctx context.Context, conversationID string, participants []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := sqliteConversationExists(ctx, tx, conversationID); err != nil {
		return err
	}

	keep := make(map[string]bool, len(participants))
	for _, p := range participants {
		keep[p] = true
	}
	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM conversation_participants WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("sqlite: list participants: %w", err)
	}
	var drop []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan participant: %w", err)
		}
		if !keep[uid] {
			drop = append(drop, uid)
		}
	}
	rows.Close()
	for _, uid := range drop {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`, conversationID, uid); err != nil {
			return fmt.Errorf("sqlite: remove participant: %w", err)
		}
	}
	now := toMicros(time.Now())
	for _, uid := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?) ON CONFLICT(conversation_id, user_id) DO NOTHING`, conversationID, uid, now); err != nil {
			return fmt.Errorf("sqlite: add participant: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SqliteChatRepository) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func (r *SqliteChatRepository) AppendMessage(ctx context.Context, m chat.Message, now time.Time) (chat.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := sqliteConversationExists(ctx, tx, m.ConversationID); err != nil {
		return chat.Message{}, err
	}
	agg := chat.Chat{Conversation: chat.Conversation{ID: m.ConversationID}}
	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM conversation_participants WHERE conversation_id = ?`, m.ConversationID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: load participants: %w", err)
	}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return chat.Message{}, fmt.Errorf("sqlite: scan participant: %w", err)
		}
		agg.Conversation.Participants = append(agg.Conversation.Participants, uid)
	}
	rows.Close()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`, m.ConversationID).Scan(&last); err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: last message time: %w", err)
	}
	if last.Valid {
		t := fromMicros(last.Int64)
		agg.LastMessageAt = &t
	}

	posted, err := agg.PostMessage(m, now)
	if err != nil {
		return chat.Message{}, err
	}
	posted.ID = uuid.NewString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, 0)`, posted.ID, posted.ConversationID, posted.SenderID, posted.Content, toMicros(posted.CreatedAt))
	if err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: insert message: %w", err)
	}
	if posted.Seq, err = res.LastInsertId(); err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: message seq: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return posted, nil
}

func (r *SqliteChatRepository) ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) ([]chat.Message, error) {
	if err := sqliteConversationExists(ctx, r.db, conversationID); err != nil {
		return nil, err
	}
	var beforeArg any
	if before != nil {
		beforeArg = toMicros(*before)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at, is_read, seq
		FROM messages
		WHERE conversation_id = ? AND (? IS NULL OR created_at < ?)
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, conversationID, beforeArg, beforeArg, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages: %w", err)
	}
	defer rows.Close()
	out := make([]chat.Message, 0, limit)
	for rows.Next() {
		var m chat.Message
		var at int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &at, &m.Read, &m.Seq); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.CreatedAt = fromMicros(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SqliteChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: mark read: %w", err)
	}
	return res.RowsAffected()
}

func (r *SqliteChatRepository) DeleteMessages(ctx context.Context, conversationID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := sqliteConversationExists(ctx, tx, conversationID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_id = NULL, last_message_seq = 0 WHERE id = ?`, conversationID); err != nil {
		return 0, fmt.Errorf("sqlite: clear last message: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

func (r *SqliteChatRepository) RecordLastMessage(ctx context.Context, conversationID string, m chat.Message) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, last_message_seq = ?, updated_at = ?
		WHERE id = ? AND last_message_seq < ?`, m.ID, m.Seq, toMicros(m.CreatedAt), conversationID, m.Seq)
	if err != nil {
		return false, fmt.Errorf("sqlite: record last message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	return false, sqliteConversationExists(ctx, r.db, conversationID)
}

func (r *SqliteChatRepository) ResyncLastMessage(ctx context.Context, conversationID string) (chat.Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := sqliteConversationExists(ctx, tx, conversationID); err != nil {
		return chat.Conversation{}, err
	}

	var (
		id  string
		seq int64
		at  int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, seq, created_at FROM messages
		WHERE conversation_id = ? ORDER BY seq DESC LIMIT 1`, conversationID).Scan(&id, &seq, &at)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_id = NULL, last_message_seq = 0 WHERE id = ?`, conversationID)
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET last_message_id = ?, last_message_seq = ?, updated_at = ?
			WHERE id = ?`, id, seq, at, conversationID)
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("sqlite: resync last message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return chat.Conversation{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return r.GetConversation(ctx, conversationID)
}
