package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/repository"
	ws "github.com/studycircle/studycircle-backend/internal/websocket"
)

const (
	NotifyBatchSize    = 50
	NotifyBatchTimeout = 2 * time.Second
	NotifyPollTimeout  = 1 * time.Second
)

// NotifyWorker drains the notification queue: each record is persisted and
// then pushed to the recipient's private room. Producers never wait on this
// path; a failed item is requeued and retried.
type NotifyWorker struct {
	notifRepo *repository.NotificationRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewNotifyWorker creates a new NotifyWorker.
func NewNotifyWorker(notifRepo *repository.NotificationRepository, rdb *redis.Client, log zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{
		notifRepo: notifRepo,
		rdb:       rdb,
		log:       log.With().Str("component", "notify_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *NotifyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("NotifyWorker started")

	batch := make([]*model.Notification, 0, NotifyBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= NotifyBatchSize || time.Since(lastFlush) >= NotifyBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, NotifyPollTimeout, config.WorkerKey.NotifyQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var n model.Notification
			if err := json.Unmarshal([]byte(item[1]), &n); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &n)
		}
	}
}

// ----------------------------------------------------------------
// Persist + deliver
// ----------------------------------------------------------------

func (w *NotifyWorker) flushSafe(ctx context.Context, batch []*model.Notification) {
	for _, n := range batch {
		if err := w.notifRepo.Insert(ctx, n); err != nil {
			w.log.Error().Err(err).
				Str("recipient", n.Recipient.String()).
				Str("type", string(n.Type)).
				Msg("persist failed — requeueing")
			raw, _ := json.Marshal(n)
			w.rdb.RPush(ctx, config.WorkerKey.NotifyQueue, raw)
			continue
		}
		w.deliver(ctx, n)
	}
}

// deliver pushes the persisted record to the recipient's private room. An
// offline recipient simply has no subscriber; the record stays in their feed.
func (w *NotifyWorker) deliver(ctx context.Context, n *model.Notification) {
	payload, err := json.Marshal(ws.NotificationEvent{
		Event:        ws.EventNewNotification,
		Notification: n,
	})
	if err != nil {
		w.log.Error().Err(err).Msg("failed to marshal notification event")
		return
	}

	channel := config.CacheKey.UserRoomChannel(n.Recipient.String())
	if err := w.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		w.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish notification event")
	}
}
