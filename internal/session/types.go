package session

import (
	"errors"

	"github.com/gokatarajesh/certprep/internal/question"
	"github.com/gokatarajesh/certprep/internal/session/scoring"
)

// State is a session lifecycle state.
type State string

const (
	StateLoading   State = "loading"
	StateActive    State = "active"
	StateFinished  State = "finished"
	StateAbandoned State = "abandoned"
)

// Reason records why a session left the active state.
type Reason string

const (
	ReasonSubmitted Reason = "submitted"
	ReasonTimeout   Reason = "timeout"
	ReasonAbandoned Reason = "abandoned"
)

var (
	ErrNotActive       = errors.New("session is not active")
	ErrNotFound        = errors.New("session not found")
	ErrInvalidLength   = errors.New("test length not offered")
	ErrUnknownQuestion = errors.New("question is not part of this session")
	ErrShuttingDown    = errors.New("session service is shutting down")
)

// QuestionView is a presented question without correctness flags.
type QuestionView struct {
	ID         string              `json:"id"`
	Text       string              `json:"text"`
	Options    []string            `json:"options"`
	Difficulty question.Difficulty `json:"difficulty,omitempty"`
}

// View is the client-facing snapshot of a session.
type View struct {
	ID               string         `json:"id"`
	ModuleID         string         `json:"moduleId"`
	ModuleTitle      string         `json:"moduleTitle"`
	RequestedLength  int            `json:"requestedLength"`
	State            State          `json:"state"`
	CurrentIndex     int            `json:"currentIndex"`
	RemainingSeconds int            `json:"timeRemainingSeconds"`
	BudgetSeconds    int            `json:"budgetSeconds"`
	Questions        []QuestionView `json:"questions"`
	Answers          map[string]int `json:"answers"`
	Completion       *Completion    `json:"completion,omitempty"`
}

// Completion is what the user sees right after a test ends. ResultID is empty
// and Warning set when the durable history entry could not be written.
type Completion struct {
	SessionID        string          `json:"sessionId"`
	ResultID         string          `json:"resultId,omitempty"`
	Reason           Reason          `json:"reason"`
	Summary          scoring.Summary `json:"summary"`
	TimeTakenSeconds int             `json:"timeTakenSeconds"`
	Warning          string          `json:"warning,omitempty"`
}
