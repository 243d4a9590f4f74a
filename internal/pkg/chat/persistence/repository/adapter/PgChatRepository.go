package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
)

// PgChatRepository stores conversations in Postgres. Appends serialize on the
// conversation row (SELECT ... FOR UPDATE) so timestamps and seqs agree.
type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var _ port.ChatRepository = (*PgChatRepository)(nil)

const pgConversationSelect = `
SELECT c.id, c.pair_key, c.last_message_id, c.last_message_seq, c.created_at, c.updated_at,
       m.id, m.sender_id, m.content, m.created_at, m.is_read, m.seq
FROM conversations c
LEFT JOIN messages m ON m.id = c.last_message_id`

func scanPgConversation(row pgx.Row) (chat.Conversation, error) {
	var (
		c        chat.Conversation
		mID      *string
		mSender  *string
		mContent *string
		mAt      *time.Time
		mRead    *bool
		mSeq     *int64
	)
	if err := row.Scan(&c.ID, &c.PairKey, &c.LastMessageID, &c.LastMessageSeq, &c.CreatedAt, &c.UpdatedAt,
		&mID, &mSender, &mContent, &mAt, &mRead, &mSeq); err != nil {
		return chat.Conversation{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if mID != nil {
		c.LastMessage = &chat.Message{
			ID:             *mID,
			ConversationID: c.ID,
			SenderID:       *mSender,
			Content:        *mContent,
			CreatedAt:      mAt.UTC(),
			Read:           *mRead,
			Seq:            *mSeq,
		}
	}
	return c, nil
}

func (r *PgChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (id, pair_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_key) DO NOTHING
		RETURNING id`, c.ID, c.PairKey, c.CreatedAt, c.UpdatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, err := r.FindConversationByPair(ctx, c.PairKey)
		return existing, false, err
	}
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("pg: insert conversation: %w", err)
	}
	for _, uid := range c.Participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES ($1, $2, $3)`, c.ID, uid, c.CreatedAt); err != nil {
			return chat.Conversation{}, false, fmt.Errorf("pg: insert participant: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return chat.Conversation{}, false, fmt.Errorf("pg: commit: %w", err)
	}
	c.Participants = append([]string(nil), c.Participants...)
	c.LastMessage = nil
	return c, true, nil
}

func (r *PgChatRepository) FindConversationByPair(ctx context.Context, pairKey string) (chat.Conversation, error) {
	return r.getOne(ctx, pgConversationSelect+` WHERE c.pair_key = $1`, pairKey)
}

func (r *PgChatRepository) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	return r.getOne(ctx, pgConversationSelect+` WHERE c.id = $1`, id)
}

func (r *PgChatRepository) getOne(ctx context.Context, q string, arg string) (chat.Conversation, error) {
	c, err := scanPgConversation(r.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("pg: get conversation: %w", err)
	}
	parts, err := r.participants(ctx, []string{c.ID})
	if err != nil {
		return chat.Conversation{}, err
	}
	c.Participants = parts[c.ID]
	return c, nil
}

func (r *PgChatRepository) ListConversationsForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := r.pool.Query(ctx, pgConversationSelect+`
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list conversations: %w", err)
	}
	defer rows.Close()

	var out []chat.Conversation
	var ids []string
	for rows.Next() {
		c, err := scanPgConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan conversation: %w", err)
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list conversations: %w", err)
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

func (r *PgChatRepository) participants(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, user_id FROM conversation_participants
		WHERE conversation_id = ANY($1)
		ORDER BY joined_at, user_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("pg: list participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid, uid string
		if err := rows.Scan(&cid, &uid); err != nil {
			return nil, fmt.Errorf("pg: scan participant: %w", err)
		}
		out[cid] = append(out[cid], uid)
	}
	return out, rows.Err()
}

func (r *PgChatRepository) UpdateParticipants(ctx context.Context, conversationID string, participants []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockPgConversation(ctx, tx, conversationID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND NOT (user_id = ANY($2))`, conversationID, participants); err != nil {
		return fmt.Errorf("pg: remove participants: %w", err)
	}
	for _, uid := range participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES ($1, $2, now())
			ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, uid); err != nil {
			return fmt.Errorf("pg: add participant: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PgChatRepository) DeleteConversation(ctx context.Context, id string) error {
	// messages and participants go with it through ON DELETE CASCADE.
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func lockPgConversation(ctx context.Context, tx pgx.Tx, id string) error {
	var locked string
	err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("pg: lock conversation: %w", err)
	}
	return nil
}

func (r *PgChatRepository) AppendMessage(ctx context.Context, m chat.Message, now time.Time) (chat.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockPgConversation(ctx, tx, m.ConversationID); err != nil {
		return chat.Message{}, err
	}
	agg := chat.Chat{Conversation: chat.Conversation{ID: m.ConversationID}}
	rows, err := tx.Query(ctx, `SELECT user_id FROM conversation_participants WHERE conversation_id = $1`, m.ConversationID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("pg: load participants: %w", err)
	}
	agg.Conversation.Participants, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return chat.Message{}, fmt.Errorf("pg: load participants: %w", err)
	}
	var last *time.Time
	if err := tx.QueryRow(ctx, `SELECT MAX(created_at) FROM messages WHERE conversation_id = $1`, m.ConversationID).Scan(&last); err != nil {
		return chat.Message{}, fmt.Errorf("pg: last message time: %w", err)
	}
	if last != nil {
		t := last.UTC()
		agg.LastMessageAt = &t
	}

	posted, err := agg.PostMessage(m, now)
	if err != nil {
		return chat.Message{}, err
	}
	posted.ID = uuid.NewString()
	if err := tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING seq`, posted.ID, posted.ConversationID, posted.SenderID, posted.Content, posted.CreatedAt).Scan(&posted.Seq); err != nil {
		return chat.Message{}, fmt.Errorf("pg: insert message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("pg: commit: %w", err)
	}
	return posted, nil
}

func (r *PgChatRepository) ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) ([]chat.Message, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("pg: check conversation: %w", err)
	}
	if !exists {
		return nil, chat.ErrConversationNotFound
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at, is_read, seq
		FROM messages
		WHERE conversation_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, seq DESC
		LIMIT $3`, conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[chat.Message])
	if err != nil {
		return nil, fmt.Errorf("pg: list messages: %w", err)
	}
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC()
	}
	return msgs, nil
}

func (r *PgChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("pg: mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgChatRepository) DeleteMessages(ctx context.Context, conversationID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := lockPgConversation(ctx, tx, conversationID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET last_message_id = NULL, last_message_seq = 0 WHERE id = $1`, conversationID); err != nil {
		return 0, fmt.Errorf("pg: clear last message: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("pg: delete messages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("pg: commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgChatRepository) RecordLastMessage(ctx context.Context, conversationID string, m chat.Message) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_seq = $3, updated_at = $4
		WHERE id = $1 AND last_message_seq < $3`, conversationID, m.ID, m.Seq, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("pg: record last message: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return false, fmt.Errorf("pg: check conversation: %w", err)
	}
	if !exists {
		return false, chat.ErrConversationNotFound
	}
	return false, nil
}

func (r *PgChatRepository) ResyncLastMessage(ctx context.Context, conversationID string) (chat.Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := lockPgConversation(ctx, tx, conversationID); err != nil {
		return chat.Conversation{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE conversations c
		SET last_message_id = m.id, last_message_seq = COALESCE(m.seq, 0), updated_at = COALESCE(m.created_at, c.updated_at)
		FROM (SELECT $1::text AS cid) k
		LEFT JOIN LATERAL (
			SELECT id, seq, created_at FROM messages
			WHERE conversation_id = k.cid
			ORDER BY seq DESC LIMIT 1
		) m ON TRUE
		WHERE c.id = k.cid`, conversationID); err != nil {
		return chat.Conversation{}, fmt.Errorf("pg: resync last message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return chat.Conversation{}, fmt.Errorf("pg: commit: %w", err)
	}
	return r.GetConversation(ctx, conversationID)
}
