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

// SubmissionHandler handles exam submission and grading endpoints.
type SubmissionHandler struct {
	groupService *service.GroupService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(groupService *service.GroupService) *SubmissionHandler {
	return &SubmissionHandler{groupService: groupService}
}

func failSubmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotMember):
		response.Fail(c, http.StatusForbidden, response.ErrNotMember)
	case errors.Is(err, service.ErrCreatorOnly):
		response.Fail(c, http.StatusForbidden, response.ErrCreatorOnly)
	case errors.Is(err, service.ErrExamNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrExamNotStarted)
	case errors.Is(err, service.ErrChallengeClosed):
		response.Fail(c, http.StatusConflict, response.ErrChallengeNotActive)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrAlreadyGraded):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyGraded)
	case errors.Is(err, service.ErrNoSubmission):
		response.Fail(c, http.StatusNotFound, response.ErrNoSubmission)
	case errors.Is(err, service.ErrResultsNotReady):
		response.Fail(c, http.StatusConflict, response.ErrResultsNotReady)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// SubmitExam godoc
// POST /api/v1/groups/:groupId/submissions
// Records the caller's exam submission. At most one per member.
func (h *SubmissionHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.groupService.Submit(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failSubmissionError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"submission": sub})
}

// GetMySubmission godoc
// GET /api/v1/groups/:groupId/submissions/me
// Retrieves the caller's own submission.
func (h *SubmissionHandler) GetMySubmission(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	sub, err := h.groupService.GetSubmission(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failSubmissionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// GradeSubmission godoc
// POST /api/v1/groups/:groupId/submissions/:userId/grade
// Grades one member's submission. Creator only, exactly once.
func (h *SubmissionHandler) GradeSubmission(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	memberID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.GradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.groupService.Grade(c.Request.Context(), id, claims.UserID, memberID, &req)
	if err != nil {
		failSubmissionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// GetResults godoc
// GET /api/v1/groups/:groupId/results
// Returns submissions plus recomputed group statistics. The creator sees
// every submission; members see only their own.
func (h *SubmissionHandler) GetResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}

	subs, stats, err := h.groupService.Results(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failSubmissionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"submissions": subs,
		"stats":       stats,
	})
}
