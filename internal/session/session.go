package session

import (
	"context"
	"sync"
	"time"

	"github.com/gokatarajesh/certprep/internal/question"
	"github.com/gokatarajesh/certprep/internal/session/scoring"
)

// Session is one in-memory timed attempt at a module test.
// It moves loading -> active -> finished (or abandoned) and never back.
type Session struct {
	mu sync.Mutex

	id        string
	userID    string
	module    question.Module
	requested int
	startedAt time.Time

	questions []question.Question
	index     map[string]struct{}
	answers   map[string]int
	current   int
	budget    int
	remaining int
	state     State
	reason    Reason
	outcome   *scoring.Outcome

	engine *scoring.Engine
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a session in the loading state.
func New(id, userID string, module question.Module, requested int, engine *scoring.Engine) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		userID:    userID,
		module:    module,
		requested: requested,
		answers:   make(map[string]int),
		state:     StateLoading,
		engine:    engine,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Activate fixes the question list and starts the countdown budget from the
// actual number of questions.
func (s *Session) Activate(questions []question.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return ErrNotActive
	}
	if len(questions) == 0 {
		return question.ErrEmptyPool
	}

	s.questions = questions
	s.index = make(map[string]struct{}, len(questions))
	for _, q := range questions {
		s.index[q.ID] = struct{}{}
	}
	s.budget = s.engine.Budget(len(questions))
	s.remaining = s.budget
	s.current = 0
	s.startedAt = time.Now().UTC()
	s.state = StateActive
	return nil
}

// SelectAnswer records or overwrites the chosen option for a question.
// It returns the number of answered questions.
func (s *Session) SelectAnswer(questionID string, optionIndex int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return 0, ErrNotActive
	}
	if _, ok := s.index[questionID]; !ok {
		return 0, ErrUnknownQuestion
	}
	s.answers[questionID] = optionIndex
	return len(s.answers), nil
}

// Next moves forward one question, staying put on the last one.
func (s *Session) Next() (int, error) {
	return s.move(func(i int) int { return i + 1 })
}

// Previous moves back one question, staying put on the first one.
func (s *Session) Previous() (int, error) {
	return s.move(func(i int) int { return i - 1 })
}

// GoTo jumps to index, clamped to the question range.
func (s *Session) GoTo(index int) (int, error) {
	return s.move(func(int) int { return index })
}

func (s *Session) move(step func(int) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return s.current, ErrNotActive
	}
	next := step(s.current)
	if next < 0 {
		next = 0
	}
	if last := len(s.questions) - 1; next > last {
		next = last
	}
	s.current = next
	return s.current, nil
}

// Tick takes one second off the clock. When the clock reaches zero the session
// finishes with the answers it has and finished is true.
func (s *Session) Tick() (remaining int, outcome scoring.Outcome, finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return s.remaining, scoring.Outcome{}, false
	}
	s.remaining--
	if s.remaining > 0 {
		return s.remaining, scoring.Outcome{}, false
	}
	s.remaining = 0
	return 0, s.finishLocked(ReasonTimeout), true
}

// Submit finishes the session now, whatever has been answered.
func (s *Session) Submit() (scoring.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return scoring.Outcome{}, ErrNotActive
	}
	return s.finishLocked(ReasonSubmitted), nil
}

// Abandon discards the session without scoring. It reports whether the
// session was still running.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateLoading {
		return false
	}
	s.state = StateAbandoned
	s.reason = ReasonAbandoned
	s.cancel()
	return true
}

// finishLocked stops the clock before scoring so a racing tick or submit
// finds the session already finished.
func (s *Session) finishLocked(reason Reason) scoring.Outcome {
	s.state = StateFinished
	s.reason = reason
	s.cancel()

	outcome := s.engine.Score(s.questions, s.answers, s.budget, s.remaining)
	s.outcome = &outcome
	return outcome
}

// Done is closed once the session leaves the active state.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) Module() question.Module {
	return s.module
}

func (s *Session) RequestedLength() int {
	return s.requested
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// Answer returns the recorded option for a question.
func (s *Session) Answer(questionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.answers[questionID]
	return idx, ok
}

// Outcome returns the scored result once finished.
func (s *Session) Outcome() (scoring.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return scoring.Outcome{}, false
	}
	return *s.outcome, true
}

// Snapshot renders the session for clients. Correctness flags are stripped.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := View{
		ID:               s.id,
		ModuleID:         s.module.ID,
		ModuleTitle:      s.module.Title,
		RequestedLength:  s.requested,
		State:            s.state,
		CurrentIndex:     s.current,
		RemainingSeconds: s.remaining,
		BudgetSeconds:    s.budget,
		Questions:        make([]QuestionView, len(s.questions)),
		Answers:          make(map[string]int, len(s.answers)),
	}
	for i, q := range s.questions {
		opts := make([]string, len(q.Options))
		for j, o := range q.Options {
			opts[j] = o.Text
		}
		view.Questions[i] = QuestionView{ID: q.ID, Text: q.Text, Options: opts, Difficulty: q.Difficulty}
	}
	for id, idx := range s.answers {
		view.Answers[id] = idx
	}
	return view
}
