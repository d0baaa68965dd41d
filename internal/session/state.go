package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/abhisek/mathcoach/internal/problemgen"
)

var (
	// ErrNotReady is returned when an operation needs a loaded question.
	ErrNotReady = errors.New("session: no question is ready")

	// ErrHintPending is returned by RequestHint while a hint fetch is in flight.
	ErrHintPending = errors.New("session: hint request already pending")
)

// Feedback strings shown after an answer is scored.
const (
	FeedbackCorrect         = "✅ Correct!"
	feedbackIncorrectFormat = "❌ Incorrect. Correct answer: %s"
)

// IncorrectFeedback returns the feedback line for a wrong answer.
func IncorrectFeedback(expected string) string {
	return fmt.Sprintf(feedbackIncorrectFormat, expected)
}

// QuestionState is the lifecycle of the current question.
type QuestionState int

const (
	QuestionIdle QuestionState = iota
	QuestionLoading
	QuestionReady
)

func (s QuestionState) String() string {
	switch s {
	case QuestionIdle:
		return "idle"
	case QuestionLoading:
		return "loading"
	case QuestionReady:
		return "ready"
	default:
		return fmt.Sprintf("QuestionState(%d)", int(s))
	}
}

// SlotState is the lifecycle of a hint or explanation.
type SlotState int

const (
	SlotUnrequested SlotState = iota
	SlotPending
	SlotAvailable
	SlotFailed
)

func (s SlotState) String() string {
	switch s {
	case SlotUnrequested:
		return "unrequested"
	case SlotPending:
		return "pending"
	case SlotAvailable:
		return "available"
	case SlotFailed:
		return "failed"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Slot holds a fetched text together with its fetch state. Text is only
// set when State is SlotAvailable.
type Slot struct {
	State SlotState
	Text  string
}

// Stats is the running score for the lifetime of a Session.
type Stats struct {
	Streak          int
	TotalAttempts   int
	CorrectAttempts int
}

// Accuracy returns the share of correct attempts as a whole percentage,
// rounding halves up. Zero when nothing has been attempted.
func (s Stats) Accuracy() int {
	if s.TotalAttempts == 0 {
		return 0
	}
	return int(math.Floor(float64(s.CorrectAttempts)*100/float64(s.TotalAttempts) + 0.5))
}

// String renders the stats line shown under the quiz.
func (s Stats) String() string {
	return fmt.Sprintf("Streak: %d | Accuracy: %d%%", s.Streak, s.Accuracy())
}

// Verdict is the outcome of one SubmitAnswer call.
type Verdict struct {
	Correct  bool
	Feedback string
	Expected string
}

// Snapshot is a read-only copy of the session state for rendering.
type Snapshot struct {
	Level         problemgen.Level
	Topic         string
	QuestionState QuestionState
	QuestionBody  string
	Input         string
	Feedback      string

	HintText    string
	HintVisible bool
	HintState   SlotState

	ExplanationText  string
	ExplanationState SlotState

	Stats Stats
}

// Ready reports whether the snapshot has an answerable question.
func (s Snapshot) Ready() bool {
	return s.QuestionState == QuestionReady
}
