package report

import (
	"errors"
	"time"

	"github.com/gokatarajesh/certprep/internal/session/scoring"
)

var (
	ErrPersist        = errors.New("persist test result")
	ErrExportDisabled = errors.New("saving or exporting reports is disabled")
	ErrNotOpen        = errors.New("report has no open view")
)

// Status is the terminal state a report open resolves to.
type Status string

const (
	StatusAvailable     Status = "available"
	StatusAlreadyViewed Status = "already_viewed"
	StatusNotFound      Status = "not_found"
)

// TestResult is the durable record of one completed session. It is written
// once, flipped to viewed once and then deleted.
type TestResult struct {
	ID               string                   `json:"id,omitempty"`
	UserID           string                   `json:"userId"`
	ModuleID         string                   `json:"moduleId"`
	ModuleTitle      string                   `json:"moduleTitle"`
	QuestionsCount   int                      `json:"questionsCount"`
	CorrectAnswers   int                      `json:"correctAnswers"`
	IncorrectAnswers int                      `json:"incorrectAnswers"`
	SkippedAnswers   int                      `json:"skippedAnswers"`
	Score            int                      `json:"score"`
	TimeTakenSeconds int                      `json:"timeTakenSeconds"`
	CompletedAt      time.Time                `json:"completedAt"`
	QuestionReports  []scoring.QuestionReport `json:"questionReports"`
	HasBeenViewed    bool                     `json:"hasBeenViewed"`
	LastViewedAt     *time.Time               `json:"lastViewedAt,omitempty"`
}

// Summary is a history entry: the score line without any question content.
type Summary struct {
	ID               string    `json:"id"`
	ModuleID         string    `json:"moduleId"`
	ModuleTitle      string    `json:"moduleTitle"`
	QuestionsCount   int       `json:"questionsCount"`
	CorrectAnswers   int       `json:"correctAnswers"`
	IncorrectAnswers int       `json:"incorrectAnswers"`
	SkippedAnswers   int       `json:"skippedAnswers"`
	Score            int       `json:"score"`
	TimeTakenSeconds int       `json:"timeTakenSeconds"`
	CompletedAt      time.Time `json:"completedAt"`
	HasBeenViewed    bool      `json:"hasBeenViewed"`
}

func (r TestResult) Summary() Summary {
	return Summary{
		ID:               r.ID,
		ModuleID:         r.ModuleID,
		ModuleTitle:      r.ModuleTitle,
		QuestionsCount:   r.QuestionsCount,
		CorrectAnswers:   r.CorrectAnswers,
		IncorrectAnswers: r.IncorrectAnswers,
		SkippedAnswers:   r.SkippedAnswers,
		Score:            r.Score,
		TimeTakenSeconds: r.TimeTakenSeconds,
		CompletedAt:      r.CompletedAt,
		HasBeenViewed:    r.HasBeenViewed,
	}
}
