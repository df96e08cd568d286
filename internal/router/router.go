package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/handler"
	"github.com/studycircle/studycircle-backend/internal/middleware"
	"github.com/studycircle/studycircle-backend/internal/response"
	"github.com/studycircle/studycircle-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Group        *handler.GroupHandler
	Submission   *handler.SubmissionHandler
	Chat         *handler.ChatHandler
	Notification *handler.NotificationHandler
	WS           *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for write-heavy chat endpoints (60 requests per minute per caller).
	chatLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. Groups (JWT) ───────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(authService))
	{
		groups := api.Group("/groups")
		{
			groups.POST("", handlers.Group.CreateGroup)
			groups.GET("", handlers.Group.ListGroups)
			groups.GET("/:groupId", handlers.Group.GetGroup)
			groups.DELETE("/:groupId", handlers.Group.DeleteGroup)

			groups.POST("/:groupId/invitations", handlers.Group.InviteMembers)
			groups.GET("/:groupId/invitations", handlers.Group.ListInvitations)
			groups.POST("/:groupId/invitations/accept", handlers.Group.AcceptInvitation)
			groups.POST("/:groupId/invitations/decline", handlers.Group.DeclineInvitation)

			groups.POST("/:groupId/leave", handlers.Group.LeaveGroup)
			groups.POST("/:groupId/members/remove", handlers.Group.RemoveMember)

			groups.POST("/:groupId/challenge/start", handlers.Group.StartChallenge)
			groups.PUT("/:groupId/exam", handlers.Group.UpdateExam)
			groups.POST("/:groupId/exam/start", handlers.Group.StartExam)
			groups.GET("/:groupId/timer", handlers.Group.GetTimer)

			groups.POST("/:groupId/submissions", handlers.Submission.SubmitExam)
			groups.GET("/:groupId/submissions/me", handlers.Submission.GetMySubmission)
			groups.POST("/:groupId/submissions/:userId/grade", handlers.Submission.GradeSubmission)
			groups.GET("/:groupId/results", handlers.Submission.GetResults)

			chat := groups.Group("/:groupId/chat")
			chat.Use(chatLimiter.Middleware())
			{
				chat.GET("/messages", handlers.Chat.GetMessages)
				chat.POST("/messages", handlers.Chat.PostMessage)
				chat.PUT("/messages/:messageId", handlers.Chat.EditMessage)
				chat.GET("/participants", handlers.Chat.GetParticipants)
				chat.POST("/messages/:messageId/reactions", handlers.Chat.AddReaction)
				chat.POST("/read", handlers.Chat.MarkMessagesRead)
			}
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", handlers.Notification.ListNotifications)
			notifications.POST("/read", handlers.Notification.MarkNotificationsRead)
		}
	}

	// ─── 2. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/stream", handlers.WS.Stream)
	}

	return router
}
