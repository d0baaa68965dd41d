package problemgen

import "fmt"

// BuildQuestionPrompt asks for one question on topic at level, with the
// correct answer after the answer delimiter and a hint.
func BuildQuestionPrompt(topic string, level Level) string {
	return fmt.Sprintf(
		"Generate a math question for an Irish secondary student studying %s level %s. "+
			"Format it clearly and include the correct answer and a hint. "+
			"Put the correct answer on its own line starting with %q.",
		level.Label(), topic, AnswerDelimiter)
}

// BuildExplanationPrompt asks for an exam-style worked solution of body.
func BuildExplanationPrompt(body string, level Level) string {
	return fmt.Sprintf(
		"Explain how to solve this math question for an Irish secondary student at %s level: %q. "+
			"Use step-by-step exam-style language.",
		level.Label(), body)
}

// BuildHintPrompt asks for a hint on body that does not give the answer away.
func BuildHintPrompt(body string, level Level) string {
	return fmt.Sprintf(
		"Give a helpful hint for solving this math question without revealing the answer. "+
			"Question: %q. Level: %s.",
		body, level.Label())
}
