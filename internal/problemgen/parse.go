package problemgen

import "strings"

// AnswerDelimiter separates the question body from its answer in a
// question completion.
const AnswerDelimiter = "Answer:"

// Parsed is the result of splitting a question completion.
type Parsed struct {
	Body   string
	Answer string
}

// Parse splits raw at the first AnswerDelimiter. Text before it is the body
// and text after it is the answer, both trimmed. Without a delimiter the
// whole trimmed input is the body and the answer is empty.
func Parse(raw string) Parsed {
	body, answer, found := strings.Cut(raw, AnswerDelimiter)
	if !found {
		return Parsed{Body: strings.TrimSpace(raw)}
	}
	return Parsed{
		Body:   strings.TrimSpace(body),
		Answer: strings.TrimSpace(answer),
	}
}

// NewQuestion parses raw into a Question for topic and level.
func NewQuestion(topic string, level Level, raw string) Question {
	p := Parse(raw)
	return Question{
		Topic:  topic,
		Level:  level,
		Body:   p.Body,
		Answer: p.Answer,
	}
}
