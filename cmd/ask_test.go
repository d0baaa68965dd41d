package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mathcoach/internal/llm"
	"github.com/abhisek/mathcoach/internal/problemgen"
	"github.com/abhisek/mathcoach/internal/session"
)

func newAskSession(responses ...llm.MockResponse) (*session.Session, *llm.MockProvider) {
	mock := llm.NewMockProvider(responses...)
	s := session.New(llm.NewGateway(mock),
		session.WithLevel(problemgen.LevelLeaving),
		session.WithSeed(3))
	return s, mock
}

func TestRunAsk_Correct(t *testing.T) {
	s, mock := newAskSession(
		llm.MockResponse{Text: "Differentiate x^2.\nAnswer: 2x"},
		llm.MockResponse{Text: "  Bring the power down.  "},
	)
	var out bytes.Buffer

	err := runAsk(context.Background(), s, strings.NewReader("2x\n"), &out, false)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Level: Leaving Cert")
	assert.Contains(t, got, "Differentiate x^2.")
	assert.NotContains(t, got, "Answer: 2x")
	assert.Contains(t, got, session.FeedbackCorrect)
	assert.Contains(t, got, "AI Explanation:\nBring the power down.\n")
	assert.Contains(t, got, "Streak: 1 | Accuracy: 100%")
	assert.Equal(t, 2, mock.CallCount())
}

func TestRunAsk_IncorrectWithHint(t *testing.T) {
	s, mock := newAskSession(
		llm.MockResponse{Text: "Solve 3x = 12.\nAnswer: 4"},
		llm.MockResponse{Text: "Divide both sides by 3."},
		llm.MockResponse{Text: "x = 12 / 3 = 4."},
	)
	var out bytes.Buffer

	err := runAsk(context.Background(), s, strings.NewReader("5\r\n"), &out, true)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Hint: Divide both sides by 3.")
	assert.Contains(t, got, session.IncorrectFeedback("4"))
	assert.Contains(t, got, "Streak: 0 | Accuracy: 0%")
	require.Equal(t, 3, mock.CallCount())
	assert.Contains(t, mock.Calls[1].Messages[0].Content, "without revealing the answer")
}

func TestRunAsk_ExplanationUnavailable(t *testing.T) {
	s, _ := newAskSession(llm.MockResponse{Text: "What is 7 x 8?\nAnswer: 56"})
	var out bytes.Buffer

	err := runAsk(context.Background(), s, strings.NewReader("56\n"), &out, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "(explanation unavailable)")
}

func TestRunAsk_NoQuestion(t *testing.T) {
	s, _ := newAskSession()
	var out bytes.Buffer

	err := runAsk(context.Background(), s, strings.NewReader("1\n"), &out, false)
	assert.ErrorIs(t, err, errNoQuestion)
	assert.Contains(t, out.String(), "Topic: ")
}

func TestRunAsk_NoInput(t *testing.T) {
	s, _ := newAskSession(llm.MockResponse{Text: "Q\nAnswer: 1"})
	var out bytes.Buffer

	err := runAsk(context.Background(), s, strings.NewReader(""), &out, false)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Snapshot().Stats.TotalAttempts)
}
