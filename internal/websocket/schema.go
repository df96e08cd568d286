package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/studycircle/studycircle-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoinGroup          Action = "join_group"
	ActionLeaveGroup         Action = "leave_group"
	ActionSendMessage        Action = "send_message"
	ActionAddReaction        Action = "add_reaction"
	ActionMarkMessagesRead   Action = "mark_messages_read"
	ActionTypingStart        Action = "typing_start"
	ActionTypingStop         Action = "typing_stop"
	ActionRequestTimerUpdate Action = "request_timer_update"
	ActionUpdateStatus       Action = "update_status"
	ActionPing               Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// JoinGroupRequest subscribes the connection to a group room.
type JoinGroupRequest struct {
	GroupID uuid.UUID `json:"group_id"`
}

// LeaveGroupRequest unsubscribes the connection from a group room.
type LeaveGroupRequest struct {
	GroupID uuid.UUID `json:"group_id"`
}

// SendMessageRequest posts a chat message through the stream.
type SendMessageRequest struct {
	GroupID uuid.UUID         `json:"group_id"`
	Content string            `json:"content"`
	Type    model.MessageType `json:"type,omitempty"`
	File    model.FileMeta    `json:"file,omitempty"`
	ReplyTo *uuid.UUID        `json:"reply_to,omitempty"`
}

// AddReactionRequest sets the sender's reaction on a message.
type AddReactionRequest struct {
	GroupID   uuid.UUID `json:"group_id"`
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

// MarkMessagesReadRequest acknowledges a batch of messages.
type MarkMessagesReadRequest struct {
	GroupID    uuid.UUID   `json:"group_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

// TypingRequest signals typing start or stop in a group room.
type TypingRequest struct {
	GroupID uuid.UUID `json:"group_id"`
}

// TimerUpdateRequest asks for the current challenge countdown.
type TimerUpdateRequest struct {
	GroupID uuid.UUID `json:"group_id"`
}

// UpdateStatusRequest announces the sender's presence status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventJoinedGroup       Event = "joined_group"
	EventLeftGroup         Event = "left_group"
	EventNewMessage        Event = "new_message"
	EventMessageEdited     Event = "message_edited"
	EventMessageReaction   Event = "message_reaction"
	EventMessagesRead      Event = "messages_read"
	EventUserTyping        Event = "user_typing"
	EventUserStoppedTyping Event = "user_stopped_typing"
	EventTimerUpdate       Event = "timer_update"
	EventUserStatusUpdate  Event = "user_status_update"
	EventNewNotification   Event = "new_notification"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// JoinedGroupResponse confirms a room subscription to the joining client.
type JoinedGroupResponse struct {
	Event   Event     `json:"event"`
	GroupID uuid.UUID `json:"group_id"`
}

// LeftGroupResponse confirms a room unsubscription.
type LeftGroupResponse struct {
	Event   Event     `json:"event"`
	GroupID uuid.UUID `json:"group_id"`
}

// NewMessageEvent carries an accepted chat message to room members.
type NewMessageEvent struct {
	Event   Event          `json:"event"`
	GroupID uuid.UUID      `json:"group_id"`
	Message *model.Message `json:"message"`
}

// MessageEditedEvent carries the updated message after an edit.
type MessageEditedEvent struct {
	Event   Event          `json:"event"`
	GroupID uuid.UUID      `json:"group_id"`
	Message *model.Message `json:"message"`
}

// MessageReactionEvent carries a reaction after it is recorded.
type MessageReactionEvent struct {
	Event     Event     `json:"event"`
	GroupID   uuid.UUID `json:"group_id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reacted_at"`
}

// MessagesReadEvent carries recorded read receipts.
type MessagesReadEvent struct {
	Event      Event       `json:"event"`
	GroupID    uuid.UUID   `json:"group_id"`
	UserID     uuid.UUID   `json:"user_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
	ReadAt     time.Time   `json:"read_at"`
}

// TypingEvent relays typing indicators. Ephemeral, never persisted.
type TypingEvent struct {
	Event   Event     `json:"event"`
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// TimerUpdateEvent carries the challenge countdown state.
type TimerUpdateEvent struct {
	Event            Event                 `json:"event"`
	GroupID          uuid.UUID             `json:"group_id"`
	Status           model.ChallengeStatus `json:"status"`
	TimeRemainingSec int64                 `json:"time_remaining_sec"`
	ProgressPercent  float64               `json:"progress_percent"`
}

// UserStatusEvent relays a member's presence status to their group rooms.
type UserStatusEvent struct {
	Event   Event     `json:"event"`
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
	Status  string    `json:"status"`
}

// NotificationEvent delivers a notification to its recipient's private room.
type NotificationEvent struct {
	Event        Event               `json:"event"`
	Notification *model.Notification `json:"notification"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
