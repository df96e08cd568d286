package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/studycircle/studycircle-backend/internal/middleware"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/response"
	"github.com/studycircle/studycircle-backend/internal/service"
	"github.com/studycircle/studycircle-backend/internal/validator"
)

// GroupHandler handles group lifecycle and membership endpoints.
type GroupHandler struct {
	groupService *service.GroupService
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// failGroupError maps group service errors to API responses.
func failGroupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotMember):
		response.Fail(c, http.StatusForbidden, response.ErrNotMember)
	case errors.Is(err, service.ErrCreatorOnly):
		response.Fail(c, http.StatusForbidden, response.ErrCreatorOnly)
	case errors.Is(err, service.ErrCreatorLocked):
		response.Fail(c, http.StatusConflict, response.ErrCreatorLocked)
	case errors.Is(err, service.ErrChallengeStarted):
		response.Fail(c, http.StatusConflict, response.ErrChallengeStarted)
	case errors.Is(err, service.ErrChallengeClosed):
		response.Fail(c, http.StatusConflict, response.ErrChallengeNotActive)
	case errors.Is(err, service.ErrNoInvitation):
		response.Fail(c, http.StatusNotFound, response.ErrNoInvitation)
	case errors.Is(err, service.ErrInviteExpired):
		response.Fail(c, http.StatusGone, response.ErrInviteExpired)
	case errors.Is(err, service.ErrGroupFull):
		response.Fail(c, http.StatusConflict, response.ErrGroupFull)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// groupID parses the :groupId path param.
func groupID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("groupId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// CreateGroup godoc
// POST /api/v1/groups
// Creates a group with the caller as creator.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateGroupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	group, err := h.groupService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"group": group})
}

// ListGroups godoc
// GET /api/v1/groups
// Lists the caller's groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	groups, err := h.groupService.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"groups": groups})
}

// GetGroup godoc
// GET /api/v1/groups/:groupId
// Retrieves one group. Members only.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	group, err := h.groupService.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}

// DeleteGroup godoc
// DELETE /api/v1/groups/:groupId
// Soft-deletes a group and cancels its challenge. Creator only.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	if err := h.groupService.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// InviteMembers godoc
// POST /api/v1/groups/:groupId/invitations
// Bulk-invites users. Creator only; reports per-invitee outcomes.
func (h *GroupHandler) InviteMembers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req model.InviteRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcomes, err := h.groupService.Invite(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"invitations": outcomes})
}

// ListInvitations godoc
// GET /api/v1/groups/:groupId/invitations
// Lists a group's invitations. Creator only.
func (h *GroupHandler) ListInvitations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	invs, err := h.groupService.ListInvitations(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"invitations": invs})
}

// AcceptInvitation godoc
// POST /api/v1/groups/:groupId/invitations/accept
// Joins the caller through their pending invitation.
func (h *GroupHandler) AcceptInvitation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	group, err := h.groupService.AcceptInvite(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}

// DeclineInvitation godoc
// POST /api/v1/groups/:groupId/invitations/decline
// Declines the caller's pending invitation.
func (h *GroupHandler) DeclineInvitation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	if err := h.groupService.DeclineInvite(c.Request.Context(), id, claims.UserID); err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"declined": true})
}

// LeaveGroup godoc
// POST /api/v1/groups/:groupId/leave
// Withdraws the caller's membership. The creator cannot leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	if err := h.groupService.Leave(c.Request.Context(), id, claims.UserID); err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// RemoveMember godoc
// POST /api/v1/groups/:groupId/members/remove
// Expels a member. Creator only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req model.RemoveMemberRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.groupService.RemoveMember(c.Request.Context(), id, claims.UserID, req.UserID); err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// StartChallenge godoc
// POST /api/v1/groups/:groupId/challenge/start
// Activates the challenge window. Creator only, at most once.
func (h *GroupHandler) StartChallenge(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	group, err := h.groupService.StartChallenge(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}

// UpdateExam godoc
// PUT /api/v1/groups/:groupId/exam
// Sets the exam paper metadata. Creator only.
func (h *GroupHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	group, err := h.groupService.SetExamInfo(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}

// StartExam godoc
// POST /api/v1/groups/:groupId/exam/start
// Opens the exam gate while the challenge is active. Creator only.
func (h *GroupHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	group, err := h.groupService.StartExam(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}

// GetTimer godoc
// GET /api/v1/groups/:groupId/timer
// Returns the current challenge countdown.
func (h *GroupHandler) GetTimer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	if _, err := h.groupService.Get(c.Request.Context(), id, claims.UserID); err != nil {
		failGroupError(c, err)
		return
	}

	timer, err := h.groupService.TimerState(c.Request.Context(), id)
	if err != nil {
		failGroupError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"timer": timer})
}
