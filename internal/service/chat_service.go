package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/repository"
	"github.com/studycircle/studycircle-backend/internal/response"
	ws "github.com/studycircle/studycircle-backend/internal/websocket"
)

// Domain Errors
var (
	ErrNotParticipant  = errors.New("user is not a participant of this chat")
	ErrMessageTooLong  = errors.New("message content exceeds the allowed length")
	ErrMessageNotFound = errors.New("message not found in this chat")
)

// ChatService owns the per-group chat: the ordered message log, reactions,
// and read receipts. Accepted mutations are fanned out to the group room
// after commit, so subscribers observe them in log order.
type ChatService struct {
	chatRepo  *repository.ChatRepository
	groupRepo *repository.GroupRepository
	rdb       *redis.Client
	cfg       *config.Config
	log       zerolog.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(
	chatRepo *repository.ChatRepository,
	groupRepo *repository.GroupRepository,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *ChatService {
	return &ChatService{
		chatRepo:  chatRepo,
		groupRepo: groupRepo,
		rdb:       rdb,
		cfg:       cfg,
		log:       log.With().Str("component", "chat_service").Logger(),
	}
}

func (s *ChatService) publish(ctx context.Context, groupID uuid.UUID, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	channel := config.CacheKey.GroupRoomChannel(groupID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish event")
	}
}

// participant resolves the caller's active participation in the group chat.
func (s *ChatService) participant(ctx context.Context, groupID, userID uuid.UUID) (*model.Chat, *model.ChatParticipant, error) {
	chat, err := s.chatRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.chatRepo.GetParticipant(ctx, chat.ID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotParticipant
		}
		return nil, nil, err
	}
	if !p.IsActive {
		return nil, nil, ErrNotParticipant
	}
	return chat, p, nil
}

// History retrieves a page of the message log, latest first, with the
// caller's unread slice computed against their read cursor.
func (s *ChatService) History(ctx context.Context, groupID, userID uuid.UUID, page, perPage int) ([]model.Message, []model.Message, *response.Pagination, error) {
	chat, p, err := s.participant(ctx, groupID, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 200 {
		perPage = 200
	}

	messages, err := s.chatRepo.ListMessages(ctx, chat.ID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}

	total, err := s.chatRepo.CountMessages(ctx, chat.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return messages, model.UnreadFor(messages, p), pagination, nil
}

// Participants lists the active members of the group chat.
func (s *ChatService) Participants(ctx context.Context, groupID, userID uuid.UUID) ([]model.ChatParticipant, error) {
	chat, _, err := s.participant(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	return s.chatRepo.ListParticipants(ctx, chat.ID)
}

// PostMessage appends a message to the chat log and fans it out to the group
// room. Content length is capped; the cap counts runes, not bytes.
func (s *ChatService) PostMessage(ctx context.Context, groupID, senderID uuid.UUID, req *model.PostMessageRequest) (*model.Message, error) {
	chat, _, err := s.participant(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Content) > s.cfg.MaxMessageChars {
		return nil, ErrMessageTooLong
	}

	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageText
	}
	msg := &model.Message{
		ChatID:   chat.ID,
		SenderID: senderID,
		Content:  req.Content,
		Type:     msgType,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileSize: req.FileSize,
		ReplyTo:  req.ReplyTo,
	}
	if err := s.chatRepo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Re-read to pick up the sender display name for fan-out.
	full, err := s.chatRepo.GetMessage(ctx, chat.ID, msg.ID)
	if err != nil {
		full = msg
	}

	s.publish(ctx, groupID, ws.NewMessageEvent{
		Event:   ws.EventNewMessage,
		GroupID: groupID,
		Message: full,
	})
	return full, nil
}

// EditMessage replaces one of the caller's own messages. The log position is
// untouched; only content and the edited flags change.
func (s *ChatService) EditMessage(ctx context.Context, groupID, userID, messageID uuid.UUID, content string) (*model.Message, error) {
	chat, _, err := s.participant(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageChars {
		return nil, ErrMessageTooLong
	}

	if err := s.chatRepo.EditMessage(ctx, chat.ID, messageID, userID, content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	full, err := s.chatRepo.GetMessage(ctx, chat.ID, messageID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, groupID, ws.MessageEditedEvent{
		Event:   ws.EventMessageEdited,
		GroupID: groupID,
		Message: full,
	})
	return full, nil
}

// React records the caller's reaction on a message. One reaction per user
// per message; a newer reaction replaces the older one.
func (s *ChatService) React(ctx context.Context, groupID, userID, messageID uuid.UUID, emoji string) (*model.Reaction, error) {
	chat, _, err := s.participant(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chatRepo.GetMessage(ctx, chat.ID, messageID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	re := &model.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := s.chatRepo.UpsertReaction(ctx, re); err != nil {
		return nil, err
	}

	s.publish(ctx, groupID, ws.MessageReactionEvent{
		Event:     ws.EventMessageReaction,
		GroupID:   groupID,
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		ReactedAt: re.AddedAt,
	})
	return re, nil
}

// MarkRead records read receipts for the given messages and advances the
// caller's read cursor. Re-reading is a no-op, receipts keep their first
// read_at.
func (s *ChatService) MarkRead(ctx context.Context, groupID, userID uuid.UUID, messageIDs []uuid.UUID) error {
	chat, _, err := s.participant(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}

	now := time.Now()
	if err := s.chatRepo.MarkRead(ctx, chat.ID, userID, messageIDs, now); err != nil {
		return err
	}

	s.publish(ctx, groupID, ws.MessagesReadEvent{
		Event:      ws.EventMessagesRead,
		GroupID:    groupID,
		UserID:     userID,
		MessageIDs: messageIDs,
		ReadAt:     now,
	})
	return nil
}
