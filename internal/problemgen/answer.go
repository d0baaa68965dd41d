package problemgen

import "strings"

// CheckAnswer compares the student's input against the expected answer.
//
// Both sides are trimmed and then compared byte for byte: "4" and "4.0"
// differ, as do "x=2" and "x = 2". No numeric or algebraic normalisation
// is attempted.
func CheckAnswer(candidate string, q Question) bool {
	return strings.TrimSpace(candidate) == strings.TrimSpace(q.Answer)
}
