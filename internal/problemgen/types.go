package problemgen

import (
	"fmt"
	"strings"
)

// Level is the exam cycle a question is pitched at.
type Level string

const (
	LevelJunior  Level = "junior"
	LevelLeaving Level = "leaving"
)

// Levels lists every supported level in display order.
var Levels = []Level{LevelJunior, LevelLeaving}

// Label returns the human-readable name of the level.
func (l Level) Label() string {
	switch l {
	case LevelJunior:
		return "Junior Cycle"
	case LevelLeaving:
		return "Leaving Cert"
	default:
		return string(l)
	}
}

// Valid reports whether l is one of the supported levels.
func (l Level) Valid() bool {
	return l == LevelJunior || l == LevelLeaving
}

// Next returns the other level. Used by the shell's level toggle.
func (l Level) Next() Level {
	if l == LevelJunior {
		return LevelLeaving
	}
	return LevelJunior
}

// ParseLevel accepts the level id or its label, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "junior", "junior cycle", "jc":
		return LevelJunior, nil
	case "leaving", "leaving cert", "lc":
		return LevelLeaving, nil
	default:
		return "", fmt.Errorf("unknown level %q (want junior or leaving)", s)
	}
}

var topicPools = map[Level][]string{
	LevelJunior:  {"Algebra", "Geometry", "Probability"},
	LevelLeaving: {"Functions", "Trigonometry", "Calculus"},
}

// Topics returns a copy of the topic pool for level, or nil for an unknown
// level.
func Topics(level Level) []string {
	pool := topicPools[level]
	if pool == nil {
		return nil
	}
	out := make([]string, len(pool))
	copy(out, pool)
	return out
}

// Question is a parsed question as shown to the student.
type Question struct {
	Topic string
	Level Level

	// Body is the question text with the answer section removed.
	Body string

	// Answer is the expected answer. Empty when the completion carried no
	// answer delimiter.
	Answer string
}

// HasAnswer reports whether the question came with an expected answer.
func (q Question) HasAnswer() bool {
	return q.Answer != ""
}

// IsEmpty reports whether q is the empty sentinel left behind by a failed
// load.
func (q Question) IsEmpty() bool {
	return q.Body == "" && q.Answer == ""
}
