package scoring

import (
	"time"

	"github.com/gokatarajesh/certprep/internal/question"
)

// Config holds configurable scoring constants (defaults match requirements).
type Config struct {
	SecondsPerQuestion int // default: 60
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{SecondsPerQuestion: 60}
}

// Engine scores finished sessions.
type Engine struct {
	config Config
	now    func() time.Time
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	if config.SecondsPerQuestion <= 0 {
		config.SecondsPerQuestion = DefaultConfig().SecondsPerQuestion
	}
	return &Engine{config: config, now: time.Now}
}

// Budget is the countdown, in seconds, for a test of n questions.
func (e *Engine) Budget(n int) int {
	return n * e.config.SecondsPerQuestion
}

// Summary is the short breakdown shown right after a test finishes.
type Summary struct {
	TotalQuestions int `json:"totalQuestions"`
	Correct        int `json:"correctAnswers"`
	Incorrect      int `json:"incorrectAnswers"`
	Skipped        int `json:"skippedAnswers"`
	Score          int `json:"score"`
}

// QuestionReport snapshots one presented question and how it was answered.
type QuestionReport struct {
	QuestionID          string              `json:"questionId"`
	QuestionText        string              `json:"questionText"`
	Options             []question.Option   `json:"options"`
	SelectedOptionIndex *int                `json:"selectedOptionIndex,omitempty"`
	CorrectOptionIndex  int                 `json:"correctOptionIndex"`
	WasCorrect          bool                `json:"wasCorrect"`
	WasSkipped          bool                `json:"wasSkipped"`
	Explanation         string              `json:"explanation"`
	Difficulty          question.Difficulty `json:"difficulty"`
}

// Outcome is everything derived from a finished session.
type Outcome struct {
	Summary          Summary          `json:"summary"`
	Reports          []QuestionReport `json:"questionReports"`
	TimeTakenSeconds int              `json:"timeTakenSeconds"`
	FinishedAt       time.Time        `json:"finishedAt"`
}

// Score classifies every question in presented order.
// Unanswered is skipped; an answer is correct when the chosen option is flagged
// correct, however many other options are flagged. Out of range answers are incorrect.
func (e *Engine) Score(questions []question.Question, answers map[string]int, budget, remaining int) Outcome {
	out := Outcome{
		Reports:    make([]QuestionReport, 0, len(questions)),
		FinishedAt: e.now().UTC(),
	}

	for _, q := range questions {
		report := QuestionReport{
			QuestionID:         q.ID,
			QuestionText:       q.Text,
			Options:            append([]question.Option(nil), q.Options...),
			CorrectOptionIndex: q.CorrectIndex(),
			Explanation:        q.Explanation,
			Difficulty:         q.Difficulty,
		}

		selected, answered := answers[q.ID]
		switch {
		case !answered:
			report.WasSkipped = true
			out.Summary.Skipped++
		case selected >= 0 && selected < len(q.Options) && q.Options[selected].IsCorrect:
			report.SelectedOptionIndex = intPtr(selected)
			report.WasCorrect = true
			out.Summary.Correct++
		default:
			report.SelectedOptionIndex = intPtr(selected)
			out.Summary.Incorrect++
		}
		out.Reports = append(out.Reports, report)
	}

	out.Summary.TotalQuestions = len(questions)
	out.Summary.Score = Percent(out.Summary.Correct, out.Summary.TotalQuestions)

	if remaining < 0 {
		remaining = 0
	}
	if remaining > budget {
		remaining = budget
	}
	out.TimeTakenSeconds = budget - remaining
	return out
}

// Percent returns round(correct/total*100) with halves rounded up.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

func intPtr(v int) *int {
	return &v
}
