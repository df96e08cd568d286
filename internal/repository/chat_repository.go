package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studycircle/studycircle-backend/internal/model"
)

// ChatRepository handles chat data access. Message order is authoritative in
// storage: the position identity column assigns each appended message its
// place in the log, so readers paging by position always see a consistent
// prefix.
type ChatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

// GetByGroup retrieves the chat belonging to a group.
func (r *ChatRepository) GetByGroup(ctx context.Context, groupID uuid.UUID) (*model.Chat, error) {
	c := &model.Chat{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, group_id, is_active, created_at
		 FROM chats WHERE group_id = $1`, groupID,
	).Scan(&c.ID, &c.GroupID, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetParticipant retrieves one participant of a chat.
func (r *ChatRepository) GetParticipant(ctx context.Context, chatID, userID uuid.UUID) (*model.ChatParticipant, error) {
	p := &model.ChatParticipant{}
	err := r.pool.QueryRow(ctx,
		`SELECT chat_id, user_id, role, joined_at, last_seen, is_active
		 FROM chat_participants
		 WHERE chat_id = $1 AND user_id = $2`, chatID, userID,
	).Scan(&p.ChatID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastSeen, &p.IsActive)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListParticipants retrieves the active participants of a chat.
func (r *ChatRepository) ListParticipants(ctx context.Context, chatID uuid.UUID) ([]model.ChatParticipant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.chat_id, p.user_id, p.role, p.joined_at, p.last_seen, p.is_active
		 FROM chat_participants p
		 WHERE p.chat_id = $1 AND p.is_active
		 ORDER BY p.joined_at`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChatParticipant
	for rows.Next() {
		var p model.ChatParticipant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastSeen, &p.IsActive); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertMessage appends a message to the log and bumps the sender's read
// cursor to the append time in the same transaction. The identity column
// assigns the position, so the message's place is fixed at commit.
func (r *ChatRepository) InsertMessage(ctx context.Context, m *model.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO chat_messages (chat_id, sender_id, content, type, file_url, file_name, file_size, reply_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, position, created_at`,
		m.ChatID, m.SenderID, m.Content, m.Type, m.FileURL, m.FileName, m.FileSize, m.ReplyTo,
	).Scan(&m.ID, &m.Position, &m.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_participants
		 SET last_seen = GREATEST(last_seen, $1)
		 WHERE chat_id = $2 AND user_id = $3`,
		m.CreatedAt, m.ChatID, m.SenderID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const messageColumns = `
	m.id, m.chat_id, m.sender_id, u.display_name, m.content, m.type,
	m.file_url, m.file_name, m.file_size, m.is_edited, m.edited_at,
	m.reply_to, m.position, m.created_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Content, &m.Type,
		&m.FileURL, &m.FileName, &m.FileSize, &m.IsEdited, &m.EditedAt,
		&m.ReplyTo, &m.Position, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage retrieves one message by id, scoped to its chat.
func (r *ChatRepository) GetMessage(ctx context.Context, chatID, messageID uuid.UUID) (*model.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM chat_messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1 AND m.chat_id = $2`, messageID, chatID))
}

// EditMessage replaces a message's content, flagging it as edited. Scoped to
// the author: editing someone else's message matches no row.
func (r *ChatRepository) EditMessage(ctx context.Context, chatID, messageID, senderID uuid.UUID, content string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_messages
		 SET content = $1, is_edited = TRUE, edited_at = NOW()
		 WHERE id = $2 AND chat_id = $3 AND sender_id = $4 AND type <> 'system'`,
		content, messageID, chatID, senderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListMessages retrieves a page of messages, latest first, with their
// reactions and read receipts attached.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM chat_messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.chat_id = $1
		 ORDER BY m.position DESC
		 LIMIT $2 OFFSET $3`, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return messages, nil
	}

	byID := make(map[uuid.UUID]*model.Message, len(messages))
	for i := range messages {
		byID[messages[i].ID] = &messages[i]
	}

	if err := r.attachReactions(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.attachReads(ctx, ids, byID); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *ChatRepository) attachReactions(ctx context.Context, ids []uuid.UUID, byID map[uuid.UUID]*model.Message) error {
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, emoji, added_at
		 FROM message_reactions
		 WHERE message_id = ANY($1)
		 ORDER BY added_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var re model.Reaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.AddedAt); err != nil {
			return err
		}
		if m, ok := byID[re.MessageID]; ok {
			m.Reactions = append(m.Reactions, re)
		}
	}
	return rows.Err()
}

func (r *ChatRepository) attachReads(ctx context.Context, ids []uuid.UUID, byID map[uuid.UUID]*model.Message) error {
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, read_at
		 FROM message_reads
		 WHERE message_id = ANY($1)
		 ORDER BY read_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rr model.ReadReceipt
		if err := rows.Scan(&rr.MessageID, &rr.UserID, &rr.ReadAt); err != nil {
			return err
		}
		if m, ok := byID[rr.MessageID]; ok {
			m.ReadBy = append(m.ReadBy, rr)
		}
	}
	return rows.Err()
}

// CountMessages returns the total number of messages in a chat.
func (r *ChatRepository) CountMessages(ctx context.Context, chatID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE chat_id = $1`, chatID).Scan(&n)
	return n, err
}

// MarkRead records read receipts for the given messages and advances the
// participant's read cursor. Receipts are first-wins: re-reading a message
// does not move its read_at, and the cursor only moves forward.
func (r *ChatRepository) MarkRead(ctx context.Context, chatID, userID uuid.UUID, messageIDs []uuid.UUID, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT m.id, $1, $2
		 FROM chat_messages m
		 WHERE m.id = ANY($3) AND m.chat_id = $4
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		userID, at, messageIDs, chatID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_participants
		 SET last_seen = GREATEST(last_seen, $1)
		 WHERE chat_id = $2 AND user_id = $3`,
		at, chatID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpsertReaction records a user's reaction on a message. Last write wins: a
// second reaction from the same user replaces the first.
func (r *ChatRepository) UpsertReaction(ctx context.Context, re *model.Reaction) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji, added_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (message_id, user_id)
		 DO UPDATE SET emoji = EXCLUDED.emoji, added_at = EXCLUDED.added_at
		 RETURNING added_at`,
		re.MessageID, re.UserID, re.Emoji,
	).Scan(&re.AddedAt)
}
