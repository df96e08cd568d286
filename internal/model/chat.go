package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType enumerates chat message kinds.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// ParticipantRole enumerates chat participant roles.
type ParticipantRole string

const (
	ParticipantAdmin  ParticipantRole = "admin"
	ParticipantMember ParticipantRole = "member"
)

// Chat is the per-group message log aggregate. Exactly one chat exists per
// group for the group's lifetime.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatParticipant mirrors group membership into the chat. Removal is soft so
// message attribution survives a member leaving.
type ChatParticipant struct {
	ChatID      uuid.UUID       `json:"chat_id"`
	UserID      uuid.UUID       `json:"user_id"`
	DisplayName string          `json:"display_name,omitempty"`
	Role        ParticipantRole `json:"role"`
	JoinedAt    time.Time       `json:"joined_at"`
	LastSeen    time.Time       `json:"last_seen"`
	IsActive    bool            `json:"is_active"`
}

// Reaction is a single user's reaction on a message. One per (message, user),
// last write wins.
type Reaction struct {
	MessageID uuid.UUID `json:"message_id,omitempty"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	AddedAt   time.Time `json:"added_at"`
}

// ReadReceipt records that a user has read a message. The set only grows.
type ReadReceipt struct {
	MessageID uuid.UUID `json:"message_id,omitempty"`
	UserID    uuid.UUID `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// Message is one entry in the append-only chat log. Position is the
// authoritative ordering assigned at acceptance; it never changes.
type Message struct {
	ID         uuid.UUID     `json:"id"`
	ChatID     uuid.UUID     `json:"chat_id"`
	Position   int64         `json:"position"`
	SenderID   uuid.UUID     `json:"sender_id"`
	SenderName string        `json:"sender_name,omitempty"`
	Content    string        `json:"content"`
	Type       MessageType   `json:"type"`
	FileURL    string        `json:"file_url,omitempty"`
	FileName   string        `json:"file_name,omitempty"`
	FileSize   int64         `json:"file_size,omitempty"`
	IsEdited   bool          `json:"is_edited"`
	EditedAt   *time.Time    `json:"edited_at,omitempty"`
	ReplyTo    *uuid.UUID    `json:"reply_to,omitempty"`
	Reactions  []Reaction    `json:"reactions,omitempty"`
	ReadBy     []ReadReceipt `json:"read_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// FileMeta carries optional file attachment metadata for a message.
type FileMeta struct {
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// UnreadFor filters messages down to those the given participant has not yet
// seen: newer than their read cursor and not authored by them. Pure view over
// the log, nothing is stored.
func UnreadFor(messages []Message, p *ChatParticipant) []Message {
	if p == nil {
		return nil
	}
	var unread []Message
	for _, m := range messages {
		if m.CreatedAt.After(p.LastSeen) && m.SenderID != p.UserID {
			unread = append(unread, m)
		}
	}
	return unread
}

// ─── Request payloads ───────────────────────────────────────────────

// PostMessageRequest is the payload for posting a chat message.
type PostMessageRequest struct {
	Content  string      `json:"content" binding:"required"`
	Type     MessageType `json:"type" binding:"omitempty,oneof=text image file"`
	FileURL  string      `json:"file_url" binding:"omitempty,url"`
	FileName string      `json:"file_name" binding:"omitempty,max=255"`
	FileSize int64       `json:"file_size" binding:"omitempty,min=0"`
	ReplyTo  *uuid.UUID  `json:"reply_to" binding:"omitempty"`
}

// MarkReadRequest names the messages to mark as read.
type MarkReadRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids" binding:"omitempty,dive,required"`
}
