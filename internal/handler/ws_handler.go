package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/middleware"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/realtime"
	"github.com/studycircle/studycircle-backend/internal/service"
	ws "github.com/studycircle/studycircle-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the realtime WebSocket stream.
type WSHandler struct {
	coordinator  *realtime.Coordinator
	chatService  *service.ChatService
	groupService *service.GroupService
	authService  *service.AuthService
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	coordinator *realtime.Coordinator,
	chatService *service.ChatService,
	groupService *service.GroupService,
	authService *service.AuthService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		coordinator:  coordinator,
		chatService:  chatService,
		groupService: groupService,
		authService:  authService,
		log:          log.With().Str("component", "ws_handler").Logger(),
		upgrader:     buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/stream?token=...
// Upgrades to WebSocket. The session auto-joins the user's private room and
// the rooms of every group they belong to; further actions arrive as
// {"action": ..., "payload": ...} envelopes.
func (h *WSHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sess := realtime.NewSession(claims.UserID, conn)
	if err := h.coordinator.Connect(c.Request.Context(), sess); err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID.String()).Msg("failed to connect session")
		sess.WriteError("connection setup failed")
		return
	}
	defer func() {
		// Rooms must still be known for the offline fan-out, so broadcast
		// before deregistering.
		ctx := context.Background()
		for _, gid := range h.coordinator.GroupRoomIDs(sess) {
			h.coordinator.PublishToGroup(ctx, gid, ws.UserStatusEvent{
				Event:   ws.EventUserStatusUpdate,
				GroupID: gid,
				UserID:  sess.UserID,
				Status:  "offline",
			})
		}
		h.coordinator.Disconnect(sess)
		h.authService.TouchLastActive(ctx, claims.UserID)
	}()

	wsLog := h.log.With().
		Str("user_id", claims.UserID.String()).
		Str("session_id", sess.ID.String()).
		Logger()
	wsLog.Info().Msg("client connected")

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			} else {
				wsLog.Debug().Msg("connection closed")
			}
			break
		}
		h.dispatch(c.Request.Context(), sess, wsLog, &msg)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, sess *realtime.Session, wsLog zerolog.Logger, msg *ws.RequestEnvelope) {
	switch msg.Action {
	case ws.ActionJoinGroup:
		var req ws.JoinGroupRequest
		if !decode(sess, msg.Payload, &req) {
			return
		}
		if err := h.coordinator.JoinGroup(ctx, sess, req.GroupID); err != nil {
			wsLog.Error().Err(err).Msg("join_group failed")
			sess.WriteError("join failed")
		}

	case ws.ActionLeaveGroup:
		var req ws.LeaveGroupRequest
		if !decode(sess, msg.Payload, &req) {
			return
		}
		h.coordinator.LeaveGroup(ctx, sess, req.GroupID)

	case ws.ActionSendMessage:
		h.handleSendMessage(ctx, sess, wsLog, msg.Payload)

	case ws.ActionAddReaction:
		var req ws.AddReactionRequest
		if !decode(sess, msg.Payload, &req) {
			return
		}
		if _, err := h.chatService.React(ctx, req.GroupID, sess.UserID, req.MessageID, req.Emoji); err != nil {
			sess.WriteError(wsFailure(err))
		}

	case ws.ActionMarkMessagesRead:
		var req ws.MarkMessagesReadRequest
		if !decode(sess, msg.Payload, &req) {
			return
		}
		if err := h.chatService.MarkRead(ctx, req.GroupID, sess.UserID, req.MessageIDs); err != nil {
			sess.WriteError(wsFailure(err))
		}

	case ws.ActionTypingStart:
		h.handleTyping(ctx, sess, msg.Payload, ws.EventUserTyping)

	case ws.ActionTypingStop:
		h.handleTyping(ctx, sess, msg.Payload, ws.EventUserStoppedTyping)

	case ws.ActionRequestTimerUpdate:
		var req ws.TimerUpdateRequest
		if !decode(sess, msg.Payload, &req) {
			return
		}
		if !h.coordinator.InGroupRoom(sess, req.GroupID) {
			sess.WriteError("not in this group room")
			return
		}
		timer, err := h.groupService.TimerState(ctx, req.GroupID)
		if err != nil {
			sess.WriteError("timer unavailable")
			return
		}
		sess.WriteTyped(timer)

	case ws.ActionUpdateStatus:
		var req ws.UpdateStatusRequest
		if !decode(sess, msg.Payload, &req) {
			return
		}
		for _, gid := range h.coordinator.GroupRoomIDs(sess) {
			h.coordinator.PublishToGroup(ctx, gid, ws.UserStatusEvent{
				Event:   ws.EventUserStatusUpdate,
				GroupID: gid,
				UserID:  sess.UserID,
				Status:  req.Status,
			})
		}

	case ws.ActionPing:
		sess.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("unknown action")
		sess.WriteError("unknown action: " + string(msg.Action))
	}
}

func (h *WSHandler) handleSendMessage(ctx context.Context, sess *realtime.Session, wsLog zerolog.Logger, payload json.RawMessage) {
	var req ws.SendMessageRequest
	if !decode(sess, payload, &req) {
		return
	}

	post := &model.PostMessageRequest{
		Content:  req.Content,
		Type:     req.Type,
		FileURL:  req.File.URL,
		FileName: req.File.Name,
		FileSize: req.File.Size,
		ReplyTo:  req.ReplyTo,
	}
	if _, err := h.chatService.PostMessage(ctx, req.GroupID, sess.UserID, post); err != nil {
		wsLog.Debug().Err(err).Msg("send_message rejected")
		sess.WriteError(wsFailure(err))
	}
	// The accepted message reaches this session through the room fan-out.
}

func (h *WSHandler) handleTyping(ctx context.Context, sess *realtime.Session, payload json.RawMessage, event ws.Event) {
	var req ws.TypingRequest
	if !decode(sess, payload, &req) {
		return
	}
	if !h.coordinator.InGroupRoom(sess, req.GroupID) {
		sess.WriteError("not in this group room")
		return
	}
	// Typing indicators are ephemeral, nothing is persisted.
	h.coordinator.PublishToGroup(ctx, req.GroupID, ws.TypingEvent{
		Event:   event,
		GroupID: req.GroupID,
		UserID:  sess.UserID,
	})
}

func decode(sess *realtime.Session, payload json.RawMessage, dst interface{}) bool {
	if len(payload) == 0 {
		sess.WriteError("payload required")
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		sess.WriteError("malformed payload")
		return false
	}
	return true
}

// wsFailure translates service errors into client-facing stream errors
// without leaking internals.
func wsFailure(err error) string {
	switch {
	case err == nil:
		return ""
	case errorsIsAny(err,
		service.ErrNotParticipant,
		service.ErrNotMember,
	):
		return "not a member of this group"
	case errorsIsAny(err, service.ErrMessageTooLong):
		return "message too long"
	case errorsIsAny(err, service.ErrMessageNotFound):
		return "message not found"
	default:
		return "request failed"
	}
}

func errorsIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
