package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/metrics"
)

const defaultLockTTL = 30 * time.Minute

// Viewer enforces the single-view policy on test results.
type Viewer struct {
	store   Store
	locker  Locker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// ViewerOptions configures a Viewer. Locker defaults to a LocalLocker.
type ViewerOptions struct {
	Locker  Locker
	LockTTL time.Duration
	Metrics *metrics.Metrics
}

func NewViewer(store Store, opts ViewerOptions, logger zerolog.Logger) *Viewer {
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Viewer{
		store:   store,
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "report_viewer").Logger(),
		now:     time.Now,
	}
}

// View is one open of a report. Only an available view holds content, and
// only an available view deletes the record when closed.
type View struct {
	Status Status
	Result *TestResult

	id       string
	userID   string
	openedAt time.Time
	viewer   *Viewer
	unlock   func()

	once    sync.Once
	deleted bool
	err     error
}

func (v *View) ID() string {
	return v.id
}

// Open resolves a report for its owner. Read failures, foreign owners and a
// failed mark-viewed write all degrade to not found. A report that was already
// viewed is left untouched.
func (vw *Viewer) Open(ctx context.Context, userID, resultID string) *View {
	view := vw.open(ctx, userID, resultID)
	vw.metrics.ReportOpened(string(view.Status))
	return view
}

func (vw *Viewer) open(ctx context.Context, userID, resultID string) *View {
	logger := vw.logger.With().Str("result_id", resultID).Str("user_id", userID).Logger()
	view := &View{Status: StatusNotFound, id: resultID, userID: userID, viewer: vw}

	result, err := vw.store.Get(ctx, resultID)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			logger.Warn().Err(err).Msg("report read failed")
		}
		return view
	}
	if result.UserID != userID {
		return view
	}
	if result.HasBeenViewed {
		view.Status = StatusAlreadyViewed
		return view
	}

	unlock, acquired, err := vw.locker.Acquire(ctx, resultID, vw.lockTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("first view lock unavailable")
		return view
	}
	if !acquired {
		view.Status = StatusAlreadyViewed
		return view
	}

	now := vw.now().UTC()
	if err := vw.store.MarkViewed(ctx, resultID, now); err != nil {
		unlock()
		logger.Warn().Err(err).Msg("mark viewed failed")
		return view
	}

	result.ID = resultID
	result.HasBeenViewed = true
	result.LastViewedAt = &now
	view.Status = StatusAvailable
	view.Result = &result
	view.openedAt = now
	view.unlock = unlock
	return view
}

// Close deletes the record behind a first view. Repeated calls, from any
// path, perform the delete at most once. It reports whether this call deleted.
func (v *View) Close(ctx context.Context) (bool, error) {
	if v.Status != StatusAvailable {
		return false, ErrNotOpen
	}
	first := false
	v.once.Do(func() {
		first = true
		v.err = v.viewer.delete(ctx, v.id)
		v.deleted = v.err == nil
		if v.unlock != nil {
			v.unlock()
		}
	})
	if !first {
		return false, v.err
	}
	return v.deleted, v.err
}

// CloseByID handles a close for a view this process is not tracking, e.g.
// after a restart. Only a report its owner already viewed is deleted.
func (vw *Viewer) CloseByID(ctx context.Context, userID, resultID string) (bool, error) {
	result, err := vw.store.Get(ctx, resultID)
	if err != nil || result.UserID != userID {
		return false, ErrNotOpen
	}
	if !result.HasBeenViewed {
		return false, ErrNotOpen
	}
	if err := vw.delete(ctx, resultID); err != nil {
		return false, err
	}
	return true, nil
}

func (vw *Viewer) delete(ctx context.Context, resultID string) error {
	err := vw.store.Delete(ctx, resultID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		vw.logger.Warn().Err(err).Str("result_id", resultID).Msg("report delete failed")
		return err
	}
	vw.metrics.ReportDeleted()
	return nil
}

// Export always refuses: reports may not be saved outside the single view.
func (vw *Viewer) Export(_ context.Context, _ string, _ string) error {
	return ErrExportDisabled
}

// History lists the owner's results newest first, without question content.
func (vw *Viewer) History(ctx context.Context, userID string, limit int, cursor string) ([]Summary, string, error) {
	results, next, err := vw.store.ListByUser(ctx, userID, limit, cursor)
	if err != nil {
		return nil, "", err
	}
	out := make([]Summary, len(results))
	for i, r := range results {
		out[i] = r.Summary()
	}
	return out, next, nil
}
