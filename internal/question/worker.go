package question

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Prefetcher warms the pool cache in the background so the first test start
// of a module does not pay for the full document-store walk.
type Prefetcher struct {
	service *Service
	queue   chan string
	logger  zerolog.Logger
	timeout time.Duration
}

func NewPrefetcher(service *Service, logger zerolog.Logger, timeout time.Duration) *Prefetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prefetcher{
		service: service,
		queue:   make(chan string, 64),
		logger:  logger.With().Str("component", "question_prefetcher").Logger(),
		timeout: timeout,
	}
}

// Enqueue schedules a module for warming. It never blocks; a full queue drops the request.
func (w *Prefetcher) Enqueue(moduleID string) bool {
	select {
	case w.queue <- moduleID:
		return true
	default:
		w.logger.Debug().Str("module_id", moduleID).Msg("prefetch queue full")
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (w *Prefetcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("question prefetcher stopping")
			return ctx.Err()
		case moduleID := <-w.queue:
			w.handle(ctx, moduleID)
		}
	}
}

func (w *Prefetcher) handle(ctx context.Context, moduleID string) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	pool, err := w.service.LoadPool(ctx, moduleID)
	if err != nil {
		w.logger.Warn().Err(err).Str("module_id", moduleID).Msg("prefetch failed")
		return
	}
	w.logger.Debug().Str("module_id", moduleID).Int("questions", len(pool.Questions)).Msg("pool warmed")
}
