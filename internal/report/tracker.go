package report

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tracker holds first views that are still on screen. Both the explicit close
// and the idle sweep go through the view's own once-guard.
type Tracker struct {
	viewer   *Viewer
	idleTTL  time.Duration
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	views map[string]*trackedView
}

type trackedView struct {
	view    *View
	touched time.Time
}

func NewTracker(viewer *Viewer, idleTTL, interval time.Duration, logger zerolog.Logger) *Tracker {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Tracker{
		viewer:   viewer,
		idleTTL:  idleTTL,
		interval: interval,
		logger:   logger.With().Str("component", "report_tracker").Logger(),
		now:      time.Now,
		views:    make(map[string]*trackedView),
	}
}

// Track remembers an available view until it is closed.
func (t *Tracker) Track(v *View) {
	if v == nil || v.Status != StatusAvailable {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.views[v.id] = &trackedView{view: v, touched: t.now()}
}

// Close ends the user's open view of a report and deletes the record.
func (t *Tracker) Close(ctx context.Context, userID, resultID string) (bool, error) {
	t.mu.Lock()
	tv, ok := t.views[resultID]
	if ok && tv.view.userID == userID {
		delete(t.views, resultID)
	}
	t.mu.Unlock()

	if !ok {
		return t.viewer.CloseByID(ctx, userID, resultID)
	}
	if tv.view.userID != userID {
		return false, ErrNotOpen
	}
	return tv.view.Close(ctx)
}

// Open returns how many views are being tracked.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.views)
}

// Run blocks until context cancellation, closing views left idle past the TTL.
// Viewed reports no tracker holds, e.g. after a crash, are purged on start and
// on every tick.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Sweep(ctx)
			t.purge(ctx)
		}
	}
}

func (t *Tracker) purge(ctx context.Context) {
	if _, err := t.PurgeStale(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn().Err(err).Msg("purging stale viewed reports failed")
	}
}

// PurgeStale deletes viewed reports that are not tracked here and were last
// viewed before the idle TTL. It returns how many it deleted.
func (t *Tracker) PurgeStale(ctx context.Context) (int, error) {
	viewed, err := t.viewer.store.ListViewed(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	var stale []string
	for _, r := range viewed {
		if _, tracked := t.views[r.ID]; tracked {
			continue
		}
		if r.LastViewedAt == nil || r.LastViewedAt.Before(cutoff) {
			stale = append(stale, r.ID)
		}
	}
	t.mu.Unlock()

	purged := 0
	for _, id := range stale {
		if err := t.viewer.delete(ctx, id); err != nil {
			t.logger.Warn().Err(err).Str("result_id", id).Msg("deleting stale viewed report failed")
			continue
		}
		purged++
	}
	if purged > 0 {
		t.logger.Info().Int("purged", purged).Msg("stale viewed reports deleted")
	}
	return purged, nil
}

// Sweep closes every view idle past the TTL and returns how many it closed.
func (t *Tracker) Sweep(ctx context.Context) int {
	cutoff := t.now().Add(-t.idleTTL)
	return t.closeWhere(ctx, func(tv *trackedView) bool {
		return tv.touched.Before(cutoff)
	})
}

// CloseAll closes every tracked view, used on shutdown.
func (t *Tracker) CloseAll(ctx context.Context) int {
	return t.closeWhere(ctx, func(*trackedView) bool { return true })
}

func (t *Tracker) closeWhere(ctx context.Context, match func(*trackedView) bool) int {
	t.mu.Lock()
	var expired []*View
	for id, tv := range t.views {
		if match(tv) {
			expired = append(expired, tv.view)
			delete(t.views, id)
		}
	}
	t.mu.Unlock()

	closed := 0
	for _, v := range expired {
		deleted, err := v.Close(ctx)
		if err != nil {
			t.logger.Warn().Err(err).Str("result_id", v.id).Msg("closing idle report view failed")
			continue
		}
		if deleted {
			closed++
		}
	}
	if closed > 0 {
		t.logger.Info().Int("closed", closed).Msg("idle report views closed")
	}
	return closed
}
