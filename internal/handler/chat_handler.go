package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/studycircle/studycircle-backend/internal/middleware"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/response"
	"github.com/studycircle/studycircle-backend/internal/service"
	"github.com/studycircle/studycircle-backend/internal/validator"
)

// ChatHandler handles the REST surface of the group chat.
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func failChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotParticipant):
		response.Fail(c, http.StatusForbidden, response.ErrNotMember)
	case errors.Is(err, service.ErrMessageTooLong):
		response.Fail(c, http.StatusBadRequest, response.ErrMessageTooLong)
	case errors.Is(err, service.ErrMessageNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// GetMessages godoc
// GET /api/v1/groups/:groupId/chat/messages
// Pages through the message log, latest first. Includes the caller's unread
// slice.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	messages, unread, pagination, err := h.chatService.History(c.Request.Context(), id, claims.UserID, page, perPage)
	if err != nil {
		failChatError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{
		"messages": messages,
		"unread":   unread,
	}, pagination)
}

// PostMessage godoc
// POST /api/v1/groups/:groupId/chat/messages
// Appends a message to the chat log and fans it out to the room.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req model.PostMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	msg, err := h.chatService.PostMessage(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failChatError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": msg})
}

// GetParticipants godoc
// GET /api/v1/groups/:groupId/chat/participants
// Lists the active chat participants.
func (h *ChatHandler) GetParticipants(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	participants, err := h.chatService.Participants(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failChatError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participants": participants})
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// EditMessage godoc
// PUT /api/v1/groups/:groupId/chat/messages/:messageId
// Replaces the caller's own message content; the message keeps its position
// and is flagged as edited.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req editMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	msg, err := h.chatService.EditMessage(c.Request.Context(), id, claims.UserID, messageID, req.Content)
	if err != nil {
		failChatError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": msg})
}

type reactRequest struct {
	Emoji string `json:"emoji" binding:"required,max=16"`
}

// AddReaction godoc
// POST /api/v1/groups/:groupId/chat/messages/:messageId/reactions
// Sets the caller's reaction on a message. Last write wins per user.
func (h *ChatHandler) AddReaction(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req reactRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	reaction, err := h.chatService.React(c.Request.Context(), id, claims.UserID, messageID, req.Emoji)
	if err != nil {
		failChatError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reaction": reaction})
}

// MarkMessagesRead godoc
// POST /api/v1/groups/:groupId/chat/read
// Records read receipts and advances the caller's read cursor.
func (h *ChatHandler) MarkMessagesRead(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req model.MarkReadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.chatService.MarkRead(c.Request.Context(), id, claims.UserID, req.MessageIDs); err != nil {
		failChatError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"read": len(req.MessageIDs)})
}
