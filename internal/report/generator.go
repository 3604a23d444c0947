package report

import (
	"context"
	"fmt"
	"time"

	"github.com/gokatarajesh/certprep/internal/question"
	"github.com/gokatarajesh/certprep/internal/session/scoring"
)

// Store is the durable home of test results.
type Store interface {
	Create(ctx context.Context, result TestResult) (string, error)
	Get(ctx context.Context, id string) (TestResult, error)
	MarkViewed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]TestResult, string, error)
	ListViewed(ctx context.Context) ([]TestResult, error)
}

// Attempt is a finished session handed over for persistence.
type Attempt struct {
	UserID  string
	Module  question.Module
	Outcome scoring.Outcome
}

// Generator turns finished sessions into TestResult records.
type Generator struct {
	store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Build denormalizes an attempt. The record never points back at live questions.
func (g *Generator) Build(a Attempt) TestResult {
	reports := make([]scoring.QuestionReport, len(a.Outcome.Reports))
	copy(reports, a.Outcome.Reports)

	completed := a.Outcome.FinishedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	return TestResult{
		UserID:           a.UserID,
		ModuleID:         a.Module.ID,
		ModuleTitle:      a.Module.Title,
		QuestionsCount:   a.Outcome.Summary.TotalQuestions,
		CorrectAnswers:   a.Outcome.Summary.Correct,
		IncorrectAnswers: a.Outcome.Summary.Incorrect,
		SkippedAnswers:   a.Outcome.Summary.Skipped,
		Score:            a.Outcome.Summary.Score,
		TimeTakenSeconds: a.Outcome.TimeTakenSeconds,
		// whole seconds keep the stored timestamp fixed-width, so it sorts as text
		CompletedAt:     completed.UTC().Truncate(time.Second),
		QuestionReports: reports,
	}
}

// Persist writes one new unviewed result and returns its id.
func (g *Generator) Persist(ctx context.Context, a Attempt) (string, error) {
	id, err := g.store.Create(ctx, g.Build(a))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return id, nil
}
