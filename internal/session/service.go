package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/metrics"
	"github.com/gokatarajesh/certprep/internal/question"
	"github.com/gokatarajesh/certprep/internal/report"
	"github.com/gokatarajesh/certprep/internal/session/scoring"
	"github.com/gokatarajesh/certprep/pkg/http/ws"
)

const persistTimeout = 10 * time.Second

// PersistWarning is shown when the score could not be saved to history.
const PersistWarning = "Your score was calculated but could not be saved to your history."

// PoolLoader resolves a module's full question pool.
type PoolLoader interface {
	LoadPool(ctx context.Context, moduleID string) (question.Pool, error)
}

// ResultWriter persists finished attempts.
type ResultWriter interface {
	Persist(ctx context.Context, attempt report.Attempt) (string, error)
}

// Notifier pushes events to a user's live connection.
type Notifier interface {
	SendToUser(userID string, msg ws.Message) error
}

// Options configures the session service.
type Options struct {
	TickInterval   time.Duration // default: 1s
	AllowedLengths []int         // default: 10, 25, 40
	Scoring        scoring.Config
	Metrics        *metrics.Metrics
}

// Service runs timed test sessions, one per user.
type Service struct {
	pools    PoolLoader
	selector *question.Selector
	engine   *scoring.Engine
	results  ResultWriter
	notifier Notifier
	metrics  *metrics.Metrics
	tick     time.Duration
	lengths  map[int]bool
	logger   zerolog.Logger

	mu        sync.Mutex
	sessions  map[string]*Session    // session_id -> session
	byUser    map[string]string      // user_id -> active session_id
	completed map[string]*Completion // user_id -> last completion
	closing   bool
	clocks    sync.WaitGroup
}

// NewService creates a session service with all dependencies. notifier may be nil.
func NewService(
	pools PoolLoader,
	selector *question.Selector,
	results ResultWriter,
	notifier Notifier,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if len(opts.AllowedLengths) == 0 {
		opts.AllowedLengths = []int{10, 25, 40}
	}
	lengths := make(map[int]bool, len(opts.AllowedLengths))
	for _, n := range opts.AllowedLengths {
		lengths[n] = true
	}

	return &Service{
		pools:     pools,
		selector:  selector,
		engine:    scoring.NewEngine(opts.Scoring),
		results:   results,
		notifier:  notifier,
		metrics:   opts.Metrics,
		tick:      opts.TickInterval,
		lengths:   lengths,
		logger:    logger.With().Str("component", "session_service").Logger(),
		sessions:  make(map[string]*Session),
		byUser:    make(map[string]string),
		completed: make(map[string]*Completion),
	}
}

// Start loads the module pool, selects the questions and starts the clock.
// A session the user still had running is abandoned first.
func (s *Service) Start(ctx context.Context, userID, moduleID string, length int) (*Session, error) {
	if !s.lengths[length] {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}

	pool, err := s.pools.LoadPool(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}

	sess := New(uuid.NewString(), userID, pool.Module, length, s.engine)
	if err := sess.Activate(s.selector.Select(pool.Questions, length)); err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if prevID, ok := s.byUser[userID]; ok {
		if prev := s.sessions[prevID]; prev != nil && prev.Abandon() {
			s.metrics.SessionFinished(string(ReasonAbandoned))
			s.logger.Info().Str("session_id", prevID).Str("user_id", userID).Msg("previous session abandoned")
		}
		delete(s.sessions, prevID)
	}
	s.sessions[sess.ID()] = sess
	s.byUser[userID] = sess.ID()
	delete(s.completed, userID)
	s.clocks.Add(1)
	s.mu.Unlock()

	s.metrics.SessionStarted()
	go s.runClock(sess)

	s.logger.Info().
		Str("session_id", sess.ID()).
		Str("user_id", userID).
		Str("module_id", moduleID).
		Int("requested", length).
		Int("questions", sess.Len()).
		Msg("session started")

	return sess, nil
}

// runClock drives one session until it leaves the active state.
func (s *Service) runClock(sess *Session) {
	defer s.clocks.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Done():
			return
		case <-ticker.C:
			remaining, outcome, finished := sess.Tick()
			if finished {
				ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
				s.complete(ctx, sess, outcome, ReasonTimeout)
				cancel()
				return
			}
			s.notify(sess.UserID(), ws.TypeSessionTick, ws.SessionTickPayload{
				SessionID:        sess.ID(),
				RemainingSeconds: remaining,
			})
		}
	}
}

// complete persists the finished attempt and releases the session. A failed
// write only adds a warning; the summary is always returned.
func (s *Service) complete(ctx context.Context, sess *Session, outcome scoring.Outcome, reason Reason) Completion {
	c := Completion{
		SessionID:        sess.ID(),
		Reason:           reason,
		Summary:          outcome.Summary,
		TimeTakenSeconds: outcome.TimeTakenSeconds,
	}

	resultID, err := s.results.Persist(ctx, report.Attempt{
		UserID:  sess.UserID(),
		Module:  sess.Module(),
		Outcome: outcome,
	})
	if err != nil {
		c.Warning = PersistWarning
		s.metrics.ResultPersisted(false)
		s.logger.Warn().Err(err).Str("session_id", sess.ID()).Str("user_id", sess.UserID()).Msg("result not persisted")
	} else {
		c.ResultID = resultID
		s.metrics.ResultPersisted(true)
	}

	s.mu.Lock()
	delete(s.sessions, sess.ID())
	if s.byUser[sess.UserID()] == sess.ID() {
		delete(s.byUser, sess.UserID())
		s.completed[sess.UserID()] = &c
	}
	s.mu.Unlock()

	s.metrics.SessionFinished(string(reason))
	s.logger.Info().
		Str("session_id", sess.ID()).
		Str("reason", string(reason)).
		Int("score", c.Summary.Score).
		Msg("session finished")

	summary, _ := json.Marshal(c.Summary)
	s.notify(sess.UserID(), ws.TypeSessionFinished, ws.SessionFinishedPayload{
		SessionID: c.SessionID,
		Reason:    string(reason),
		ResultID:  c.ResultID,
		Summary:   summary,
		Warning:   c.Warning,
	})
	return c
}

func (s *Service) notify(userID, msgType string, payload any) {
	if s.notifier == nil {
		return
	}
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", msgType).Msg("encode ws message")
		return
	}
	if err := s.notifier.SendToUser(userID, msg); err != nil && !errors.Is(err, ws.ErrConnectionNotFound) {
		s.logger.Debug().Err(err).Str("user_id", userID).Str("type", msgType).Msg("ws send failed")
	}
}

// Get returns the user's running session.
func (s *Service) Get(userID, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID() != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// View returns the session snapshot, or the completion of the user's most
// recently finished session with that id.
func (s *Service) View(userID, sessionID string) (View, error) {
	if sess, err := s.Get(userID, sessionID); err == nil {
		return sess.Snapshot(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.completed[userID]; ok && c.SessionID == sessionID {
		done := *c
		return View{ID: sessionID, State: StateFinished, Completion: &done}, nil
	}
	return View{}, ErrNotFound
}

// Active returns the user's running session, if any.
func (s *Service) Active(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Service) SelectAnswer(userID, sessionID, questionID string, optionIndex int) (int, error) {
	sess, err := s.Get(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.SelectAnswer(questionID, optionIndex)
}

func (s *Service) Next(userID, sessionID string) (int, error) {
	sess, err := s.Get(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.Next()
}

func (s *Service) Previous(userID, sessionID string) (int, error) {
	sess, err := s.Get(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.Previous()
}

func (s *Service) GoTo(userID, sessionID string, index int) (int, error) {
	sess, err := s.Get(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.GoTo(index)
}

// Submit finishes the session on the user's request. If the clock got there
// first the caller sees ErrNotActive and the timeout completion stands.
func (s *Service) Submit(ctx context.Context, userID, sessionID string) (Completion, error) {
	sess, err := s.Get(userID, sessionID)
	if err != nil {
		return Completion{}, err
	}
	outcome, err := sess.Submit()
	if err != nil {
		return Completion{}, err
	}
	return s.complete(context.WithoutCancel(ctx), sess, outcome, ReasonSubmitted), nil
}

// Abandon discards the session without persisting anything.
func (s *Service) Abandon(userID, sessionID string) error {
	sess, err := s.Get(userID, sessionID)
	if err != nil {
		return err
	}
	if !sess.Abandon() {
		return ErrNotActive
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	if s.byUser[userID] == sessionID {
		delete(s.byUser, userID)
	}
	s.mu.Unlock()

	s.metrics.SessionFinished(string(ReasonAbandoned))
	s.logger.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("session abandoned")
	return nil
}

// Shutdown abandons every running session and waits for their clocks to stop.
// Start is refused from then on.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	running := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		running = append(running, sess)
	}
	s.mu.Unlock()

	for _, sess := range running {
		_ = s.Abandon(sess.UserID(), sess.ID())
	}

	done := make(chan struct{})
	go func() {
		s.clocks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount reports how many sessions are running.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
