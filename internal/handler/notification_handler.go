package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/studycircle/studycircle-backend/internal/middleware"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/response"
	"github.com/studycircle/studycircle-backend/internal/service"
	"github.com/studycircle/studycircle-backend/internal/validator"
)

// NotificationHandler handles the per-user notification feed.
type NotificationHandler struct {
	notifService *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifService: notifService}
}

// ListNotifications godoc
// GET /api/v1/notifications
// Pages through the caller's notifications, newest first.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	notifs, pagination, unread, err := h.notifService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{
		"notifications": notifs,
		"unread_count":  unread,
	}, pagination)
}

// MarkNotificationsRead godoc
// POST /api/v1/notifications/read
// Marks the given notifications (or all unread when none given) as read.
func (h *NotificationHandler) MarkNotificationsRead(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.MarkNotificationsReadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.notifService.MarkRead(c.Request.Context(), claims.UserID, req.NotificationIDs)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
