package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/repository"
	"github.com/studycircle/studycircle-backend/internal/response"
)

// NotificationService accepts notification records and serves the per-user
// feed. Enqueue pushes onto a Redis list drained by the notify worker, so a
// slow sink never blocks the mutation that triggered it.
type NotificationService struct {
	notifRepo *repository.NotificationRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(notifRepo *repository.NotificationRepository, rdb *redis.Client, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		notifRepo: notifRepo,
		rdb:       rdb,
		log:       log.With().Str("component", "notification_service").Logger(),
	}
}

// Enqueue hands a notification to the sink. Fire-and-forget: failures are
// logged and swallowed, the caller's mutation has already committed.
func (s *NotificationService) Enqueue(ctx context.Context, n model.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal notification")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.NotifyQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).
			Str("recipient", n.Recipient.String()).
			Str("type", string(n.Type)).
			Msg("failed to enqueue notification")
	}
}

// List retrieves a page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, page, perPage int) ([]model.Notification, *response.Pagination, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	notifs, err := s.notifRepo.ListByRecipient(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, 0, err
	}
	if notifs == nil {
		notifs = []model.Notification{}
	}

	total, unread, err := s.notifRepo.CountByRecipient(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return notifs, pagination, unread, nil
}

// MarkRead flips the given notifications (or all unread when ids is empty)
// to read. Returns how many rows changed.
func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	now := time.Now()
	if len(ids) == 0 {
		return s.notifRepo.MarkAllRead(ctx, userID, now)
	}
	return s.notifRepo.MarkRead(ctx, userID, ids, now)
}
