package question

import (
	"errors"
	"time"
)

// Difficulty is the declared tier of a question.
type Difficulty string

// Difficulty constants for readability.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	// DifficultyUnrated marks questions authored without a tier.
	DifficultyUnrated Difficulty = ""
)

// ErrEmptyPool blocks a test start for a module with no questions.
var ErrEmptyPool = errors.New("module has no questions")

// Option is one answer choice.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is a bank entry as stored in the questions collection.
type Question struct {
	ID              string     `json:"id,omitempty"`
	Text            string     `json:"text"`
	Options         []Option   `json:"options"`
	Explanation     string     `json:"explanation"`
	ModuleID        string     `json:"moduleId"`
	CertificationID string     `json:"certificationId"`
	Difficulty      Difficulty `json:"difficulty,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CorrectIndex returns the first option flagged correct, or -1.
func (q Question) CorrectIndex() int {
	for i, o := range q.Options {
		if o.IsCorrect {
			return i
		}
	}
	return -1
}

// Module is a topical subdivision of a certification.
type Module struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	CertificationID string `json:"certificationId"`
}

// Pool is a module together with its full question bank.
type Pool struct {
	Module    Module     `json:"module"`
	Questions []Question `json:"questions"`
}
