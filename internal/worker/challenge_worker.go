package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/service"
)

// ChallengeWorker sweeps active challenges whose window has passed and moves
// them to completed. It is the only writer of that transition; read paths
// treat an elapsed window as closed without waiting for the sweep.
type ChallengeWorker struct {
	groupService *service.GroupService
	interval     time.Duration
	log          zerolog.Logger
}

// NewChallengeWorker creates a new ChallengeWorker.
func NewChallengeWorker(groupService *service.GroupService, interval time.Duration, log zerolog.Logger) *ChallengeWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ChallengeWorker{
		groupService: groupService,
		interval:     interval,
		log:          log.With().Str("component", "challenge_worker").Logger(),
	}
}

func (w *ChallengeWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ChallengeWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ChallengeWorker) sweep(ctx context.Context) {
	n, err := w.groupService.CompleteOverdueChallenges(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("completed", n).Msg("overdue challenges completed")
	}
}
