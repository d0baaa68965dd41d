package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abhisek/mathcoach/internal/llm"
	"github.com/abhisek/mathcoach/internal/problemgen"
)

// pendingCall is one Complete call held open until the test replies.
type pendingCall struct {
	prompt    string
	purpose   string
	sessionID string
	reply     chan reply
}

type reply struct {
	text string
	err  error
}

func (c *pendingCall) respond(text string) { c.reply <- reply{text: text} }
func (c *pendingCall) fail(err error)      { c.reply <- reply{err: err} }

// heldCompleter blocks every Complete call until the test answers it.
type heldCompleter struct {
	calls chan *pendingCall
}

func newHeldCompleter() *heldCompleter {
	return &heldCompleter{calls: make(chan *pendingCall, 16)}
}

func (h *heldCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c := &pendingCall{
		prompt:    prompt,
		purpose:   llm.PurposeFrom(ctx),
		sessionID: llm.SessionIDFrom(ctx),
		reply:     make(chan reply, 1),
	}
	h.calls <- c
	r := <-c.reply
	return r.text, r.err
}

func (h *heldCompleter) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case c := <-h.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a gateway call")
		return nil
	}
}

func (h *heldCompleter) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-h.calls:
		t.Fatalf("unexpected gateway call (purpose %s)", c.purpose)
	case <-time.After(20 * time.Millisecond):
	}
}

var errDown = &llm.Failure{Kind: llm.GatewayUnavailable, Err: errors.New("connection refused")}

// readySession returns a session with a loaded question whose answer is 12.
func readySession(t *testing.T, opts ...Option) (*Session, *heldCompleter) {
	t.Helper()
	h := newHeldCompleter()
	s := New(h, append([]Option{WithSeed(1)}, opts...)...)

	s.LoadQuestion(context.Background())
	h.next(t).respond("Find the area of a 3 by 4 rectangle.\nHint: length times width.\nAnswer: 12")
	s.Wait()

	require.Equal(t, QuestionReady, s.Snapshot().QuestionState)
	return s, h
}

func TestNew_Defaults(t *testing.T) {
	s := New(newHeldCompleter())
	snap := s.Snapshot()

	assert.Equal(t, problemgen.LevelJunior, snap.Level)
	assert.Equal(t, QuestionIdle, snap.QuestionState)
	assert.Equal(t, SlotUnrequested, snap.HintState)
	assert.Equal(t, SlotUnrequested, snap.ExplanationState)
	assert.Equal(t, Stats{}, snap.Stats)
	assert.NotEmpty(t, s.ID())

	s2 := New(newHeldCompleter(), WithLevel(problemgen.LevelLeaving), WithID("fixed"))
	assert.Equal(t, problemgen.LevelLeaving, s2.Snapshot().Level)
	assert.Equal(t, "fixed", s2.ID())
}

func TestLoadQuestion_TopicFromLevelPool(t *testing.T) {
	for _, level := range problemgen.Levels {
		t.Run(string(level), func(t *testing.T) {
			mock := llm.NewMockProvider()
			s := New(llm.NewGateway(mock), WithLevel(level), WithSeed(42))
			pool := problemgen.Topics(level)
			seen := map[string]bool{}

			for i := 0; i < 60; i++ {
				mock.AddResponse(llm.MockResponse{Text: "Q\nAnswer: 1"})
				s.LoadQuestion(context.Background())
				s.Wait()

				topic := s.Snapshot().Topic
				assert.Contains(t, pool, topic)
				seen[topic] = true
			}
			assert.Len(t, seen, len(pool), "every topic in the pool should come up")
		})
	}
}

func TestLoadQuestion_LoadingThenReady(t *testing.T) {
	h := newHeldCompleter()
	s := New(h, WithSeed(7))

	s.LoadQuestion(context.Background())
	snap := s.Snapshot()
	assert.Equal(t, QuestionLoading, snap.QuestionState)
	assert.Contains(t, problemgen.Topics(problemgen.LevelJunior), snap.Topic, "topic is visible while loading")

	call := h.next(t)
	assert.Equal(t, llm.PurposeQuestion, call.purpose)
	assert.Equal(t, s.ID(), call.sessionID)
	assert.Equal(t, problemgen.BuildQuestionPrompt(snap.Topic, problemgen.LevelJunior), call.prompt)

	_, err := s.SubmitAnswer(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.RequestHint(context.Background()), ErrNotReady)

	call.respond("  What is 3 + 4?\nAnswer: 7\n")
	s.Wait()

	snap = s.Snapshot()
	assert.Equal(t, QuestionReady, snap.QuestionState)
	assert.Equal(t, "What is 3 + 4?", snap.QuestionBody)
}

func TestLoadQuestion_ClearsPerQuestionState(t *testing.T) {
	s, h := readySession(t)

	s.SetInput("13")
	_, err := s.SubmitAnswer(context.Background(), "13")
	require.NoError(t, err)
	h.next(t).respond("Multiply length by width: 3 x 4 = 12.")
	require.NoError(t, s.RequestHint(context.Background()))
	h.next(t).respond("Think about rows and columns.")
	s.Wait()

	before := s.Snapshot()
	require.Equal(t, SlotAvailable, before.HintState)
	require.Equal(t, SlotAvailable, before.ExplanationState)

	s.LoadQuestion(context.Background())
	h.next(t).respond("What is 5 x 5?\nAnswer: 25")
	s.Wait()

	snap := s.Snapshot()
	assert.Empty(t, snap.Input)
	assert.Empty(t, snap.Feedback)
	assert.Equal(t, Slot{}, Slot{State: snap.HintState, Text: snap.HintText})
	assert.False(t, snap.HintVisible)
	assert.Equal(t, SlotUnrequested, snap.ExplanationState)
	assert.Empty(t, snap.ExplanationText)
	assert.Equal(t, before.Stats, snap.Stats, "stats survive question changes")
}

func TestLoadQuestion_FailureLeavesEmptyIdleQuestion(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s, h := readySession(t, WithLogger(zap.New(core)))

	s.LoadQuestion(context.Background())
	h.next(t).fail(errDown)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, QuestionIdle, snap.QuestionState, "never stuck in loading")
	assert.Empty(t, snap.QuestionBody)
	assert.Equal(t, SlotUnrequested, snap.HintState)
	assert.Equal(t, SlotUnrequested, snap.ExplanationState)
	assert.Equal(t, 1, logs.FilterMessage("question load failed").Len())

	_, err := s.SubmitAnswer(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotReady, "the empty sentinel is not answerable")

	// Recoverable: the next load works normally.
	s.LoadQuestion(context.Background())
	h.next(t).respond("Q\nAnswer: 2")
	s.Wait()
	assert.Equal(t, QuestionReady, s.Snapshot().QuestionState)
}

func TestLoadQuestion_NoAnswerDelimiter(t *testing.T) {
	h := newHeldCompleter()
	s := New(h)

	s.LoadQuestion(context.Background())
	h.next(t).respond("Prove that the angles of a triangle sum to 180 degrees.")
	s.Wait()

	snap := s.Snapshot()
	require.Equal(t, QuestionReady, snap.QuestionState)
	assert.Equal(t, "Prove that the angles of a triangle sum to 180 degrees.", snap.QuestionBody)

	v, err := s.SubmitAnswer(context.Background(), "180")
	require.NoError(t, err)
	assert.False(t, v.Correct)
	assert.Equal(t, "❌ Incorrect. Correct answer: ", v.Feedback)
	h.next(t).respond("ok")
	s.Wait()
}

func TestSetLevel_SupersededLoadDiscarded(t *testing.T) {
	h := newHeldCompleter()
	s := New(h, WithSeed(3))
	ctx := context.Background()

	s.LoadQuestion(ctx)
	first := h.next(t)

	require.NoError(t, s.SetLevel(ctx, problemgen.LevelLeaving))
	second := h.next(t)
	assert.Contains(t, second.prompt, "Leaving Cert")

	// The newer request answers first; the stale one arrives afterwards.
	second.respond("Differentiate x^2.\nAnswer: 2x")
	first.respond("Solve x + 1 = 3.\nAnswer: 2")
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, problemgen.LevelLeaving, snap.Level)
	assert.Contains(t, problemgen.Topics(problemgen.LevelLeaving), snap.Topic)
	assert.Equal(t, "Differentiate x^2.", snap.QuestionBody)
	assert.Equal(t, QuestionReady, snap.QuestionState)
}

func TestSetLevel_StaleFailureDiscarded(t *testing.T) {
	h := newHeldCompleter()
	s := New(h)
	ctx := context.Background()

	s.LoadQuestion(ctx)
	first := h.next(t)
	require.NoError(t, s.SetLevel(ctx, problemgen.LevelLeaving))
	second := h.next(t)

	second.respond("Q2\nAnswer: B")
	first.fail(errDown)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, QuestionReady, snap.QuestionState)
	assert.Equal(t, "Q2", snap.QuestionBody)
}

func TestSetLevel_RejectsUnknownLevel(t *testing.T) {
	h := newHeldCompleter()
	s := New(h)

	err := s.SetLevel(context.Background(), problemgen.Level("primary"))
	require.Error(t, err)
	assert.Equal(t, problemgen.LevelJunior, s.Snapshot().Level)
	h.assertIdle(t)
}

func TestSubmitAnswer_Correct(t *testing.T) {
	s, h := readySession(t)

	v, err := s.SubmitAnswer(context.Background(), "  12 ")
	require.NoError(t, err)
	assert.True(t, v.Correct)
	assert.Equal(t, "✅ Correct!", v.Feedback)
	assert.Equal(t, "12", v.Expected)

	snap := s.Snapshot()
	assert.Equal(t, "✅ Correct!", snap.Feedback)
	assert.Equal(t, Stats{Streak: 1, TotalAttempts: 1, CorrectAttempts: 1}, snap.Stats)
	assert.Equal(t, SlotPending, snap.ExplanationState)

	call := h.next(t)
	assert.Equal(t, llm.PurposeExplanation, call.purpose)
	assert.Equal(t, problemgen.BuildExplanationPrompt("Find the area of a 3 by 4 rectangle.\nHint: length times width.", problemgen.LevelJunior), call.prompt)
	call.respond("Step 1: area = length x width.\n")
	s.Wait()

	snap = s.Snapshot()
	assert.Equal(t, SlotAvailable, snap.ExplanationState)
	assert.Equal(t, "Step 1: area = length x width.", snap.ExplanationText)
}

func TestSubmitAnswer_IncorrectResetsStreak(t *testing.T) {
	s, h := readySession(t)
	ctx := context.Background()

	_, err := s.SubmitAnswer(ctx, "12")
	require.NoError(t, err)
	h.next(t).respond("e1")
	_, err = s.SubmitAnswer(ctx, "12")
	require.NoError(t, err)
	h.next(t).respond("e2")
	s.Wait()
	require.Equal(t, 2, s.Snapshot().Stats.Streak)

	v, err := s.SubmitAnswer(ctx, "12.0")
	require.NoError(t, err)
	assert.False(t, v.Correct)
	assert.Equal(t, "❌ Incorrect. Correct answer: 12", v.Feedback)
	h.next(t).respond("e3")
	s.Wait()

	assert.Equal(t, Stats{Streak: 0, TotalAttempts: 3, CorrectAttempts: 2}, s.Snapshot().Stats)
}

func TestSubmitAnswer_ScoringInvariantOverSequence(t *testing.T) {
	s, h := readySession(t)
	ctx := context.Background()

	answers := []string{"12", "11", "12", "12", "x", "12", "12", "12", "0", "12"}
	wantStreak := 0
	wantCorrect := 0
	for i, a := range answers {
		v, err := s.SubmitAnswer(ctx, a)
		require.NoError(t, err)
		h.next(t).respond("explanation")
		s.Wait()

		if a == "12" {
			wantStreak++
			wantCorrect++
		} else {
			wantStreak = 0
		}
		assert.Equal(t, a == "12", v.Correct)

		st := s.Snapshot().Stats
		assert.Equal(t, i+1, st.TotalAttempts)
		assert.Equal(t, wantCorrect, st.CorrectAttempts)
		assert.Equal(t, wantStreak, st.Streak)
		assert.LessOrEqual(t, st.CorrectAttempts, st.TotalAttempts)
	}
	assert.Equal(t, 70, s.Snapshot().Stats.Accuracy())
}

func TestSubmitAnswer_ExplanationFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s, h := readySession(t, WithLogger(zap.New(core)))

	_, err := s.SubmitAnswer(context.Background(), "3")
	require.NoError(t, err)
	h.next(t).fail(&llm.Failure{Kind: llm.MalformedResponse, Err: errors.New("empty completion text")})
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, SlotFailed, snap.ExplanationState)
	assert.Empty(t, snap.ExplanationText)
	assert.Equal(t, QuestionReady, snap.QuestionState, "question is unaffected")
	assert.Equal(t, 1, snap.Stats.TotalAttempts, "scoring happened before the fetch")

	entries := logs.FilterMessage("explanation fetch failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "malformed response", entries[0].ContextMap()["kind"])
}

func TestSubmitAnswer_ResubmissionSupersedesExplanation(t *testing.T) {
	s, h := readySession(t)
	ctx := context.Background()

	_, err := s.SubmitAnswer(ctx, "11")
	require.NoError(t, err)
	first := h.next(t)

	_, err = s.SubmitAnswer(ctx, "12")
	require.NoError(t, err)
	second := h.next(t)

	second.respond("newer explanation")
	first.respond("older explanation")
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, "newer explanation", snap.ExplanationText)
	assert.Equal(t, 2, snap.Stats.TotalAttempts)
	assert.Equal(t, "✅ Correct!", snap.Feedback)
}

func TestSubmitAnswer_ExplanationForOldQuestionDropped(t *testing.T) {
	s, h := readySession(t)
	ctx := context.Background()

	_, err := s.SubmitAnswer(ctx, "12")
	require.NoError(t, err)
	explain := h.next(t)

	s.LoadQuestion(ctx)
	load := h.next(t)
	load.respond("What is 9 - 4?\nAnswer: 5")
	explain.respond("explanation of the rectangle question")
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, "What is 9 - 4?", snap.QuestionBody)
	assert.Equal(t, SlotUnrequested, snap.ExplanationState)
	assert.Empty(t, snap.ExplanationText)
}

func TestRequestHint_Idempotent(t *testing.T) {
	s, h := readySession(t)
	ctx := context.Background()

	require.NoError(t, s.RequestHint(ctx))
	assert.ErrorIs(t, s.RequestHint(ctx), ErrHintPending)
	assert.ErrorIs(t, s.RequestHint(ctx), ErrHintPending)

	call := h.next(t)
	assert.Equal(t, llm.PurposeHint, call.purpose)
	assert.True(t, strings.Contains(call.prompt, "without revealing the answer"))
	h.assertIdle(t)

	snap := s.Snapshot()
	assert.Equal(t, SlotPending, snap.HintState)
	assert.False(t, snap.HintVisible)

	call.respond("Multiply the two side lengths.")
	s.Wait()

	snap = s.Snapshot()
	assert.Equal(t, SlotAvailable, snap.HintState)
	assert.True(t, snap.HintVisible)
	assert.Equal(t, "Multiply the two side lengths.", snap.HintText)

	// Once settled, a new request is allowed.
	require.NoError(t, s.RequestHint(ctx))
	h.next(t).respond("Area is length times width.")
	s.Wait()
	assert.Equal(t, "Area is length times width.", s.Snapshot().HintText)
}

func TestRequestHint_Failure(t *testing.T) {
	s, h := readySession(t)

	require.NoError(t, s.RequestHint(context.Background()))
	h.next(t).fail(errDown)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, SlotFailed, snap.HintState)
	assert.Empty(t, snap.HintText)
	assert.False(t, snap.HintVisible)

	// A failed hint can be retried by the user.
	require.NoError(t, s.RequestHint(context.Background()))
	h.next(t).respond("try again")
	s.Wait()
	assert.Equal(t, SlotAvailable, s.Snapshot().HintState)
}

func TestRequestHint_IndependentOfExplanation(t *testing.T) {
	s, h := readySession(t)
	ctx := context.Background()

	_, err := s.SubmitAnswer(ctx, "12")
	require.NoError(t, err)
	require.NoError(t, s.RequestHint(ctx))

	calls := map[string]*pendingCall{}
	for i := 0; i < 2; i++ {
		c := h.next(t)
		calls[c.purpose] = c
	}
	require.Contains(t, calls, llm.PurposeHint)
	require.Contains(t, calls, llm.PurposeExplanation)

	calls[llm.PurposeHint].respond("hint text")
	calls[llm.PurposeExplanation].fail(errDown)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, SlotAvailable, snap.HintState)
	assert.Equal(t, SlotFailed, snap.ExplanationState)
}

func TestSetInput(t *testing.T) {
	s := New(newHeldCompleter())
	s.SetInput("4")
	assert.Equal(t, "4", s.Snapshot().Input)
}

func TestChanges_Notifies(t *testing.T) {
	s, h := readySession(t)

	// Drain anything left over from the load.
	select {
	case <-s.Changes():
	default:
	}

	require.NoError(t, s.RequestHint(context.Background()))
	select {
	case <-s.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a notification for the pending hint")
	}

	h.next(t).respond("hint")
	select {
	case <-s.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a notification for the hint result")
	}
	s.Wait()
}

func TestEndToEnd_ThroughGateway(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Text: "Solve 2x + 3 = 7.\nAnswer: x = 2"},
		llm.MockResponse{Text: "Subtract 3 from both sides, then divide by 2."},
		llm.MockResponse{Text: "What could you do to both sides first?"},
	)
	s := New(llm.NewGateway(mock), WithSeed(9))
	ctx := context.Background()

	s.LoadQuestion(ctx)
	s.Wait()
	snap := s.Snapshot()
	require.Equal(t, QuestionReady, snap.QuestionState)
	assert.Equal(t, "Solve 2x + 3 = 7.", snap.QuestionBody)

	v, err := s.SubmitAnswer(ctx, "x = 2")
	require.NoError(t, err)
	assert.True(t, v.Correct)
	s.Wait()

	require.NoError(t, s.RequestHint(ctx))
	s.Wait()

	snap = s.Snapshot()
	assert.Equal(t, "✅ Correct!", snap.Feedback)
	assert.Equal(t, "Subtract 3 from both sides, then divide by 2.", snap.ExplanationText)
	assert.Equal(t, "What could you do to both sides first?", snap.HintText)
	assert.True(t, snap.HintVisible)
	assert.Equal(t, "Streak: 1 | Accuracy: 100%", snap.Stats.String())

	assert.Equal(t, 3, mock.CallCount())
	for _, req := range mock.Calls {
		assert.Equal(t, llm.DefaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
	}
}

func TestEndToEnd_GatewayDown(t *testing.T) {
	s := New(llm.NewGateway(llm.NewMockProvider()))

	s.LoadQuestion(context.Background())
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, QuestionIdle, snap.QuestionState)
	assert.Empty(t, snap.QuestionBody)
	assert.NotEmpty(t, snap.Topic)
}
