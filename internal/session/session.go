package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/mathcoach/internal/llm"
	"github.com/abhisek/mathcoach/internal/problemgen"
)

// Session owns the quiz state for one student: the current question, the
// hint and explanation slots and the running stats.
//
// Operations apply their synchronous transition and return. Completions
// are fetched on background goroutines and applied when they arrive; each
// fetch is tagged so that a result for a superseded request is dropped.
// Listen on Changes to learn when to re-read Snapshot.
type Session struct {
	gateway llm.Completer
	logger  *zap.Logger
	id      string

	mu       sync.Mutex
	rng      *rand.Rand
	level    problemgen.Level
	topic    string
	state    QuestionState
	question problemgen.Question
	input    string
	feedback string

	hint        Slot
	hintVisible bool
	explanation Slot
	stats       Stats

	// questionGen is bumped by every load. hintSeq and explainSeq are
	// bumped by every fetch of their slot.
	questionGen uint64
	hintSeq     uint64
	explainSeq  uint64

	inflight sync.WaitGroup
	changes  chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for degradations and state changes.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRand sets the source used to pick topics.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithSeed makes topic selection reproducible.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// WithLevel sets the starting level. Invalid levels are ignored.
func WithLevel(level problemgen.Level) Option {
	return func(s *Session) {
		if level.Valid() {
			s.level = level
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// New creates an idle session at the Junior Cycle level. Call LoadQuestion
// to fetch the first question.
func New(gateway llm.Completer, opts ...Option) *Session {
	s := &Session{
		gateway: gateway,
		logger:  zap.NewNop(),
		id:      uuid.New().String(),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		level:   problemgen.LevelJunior,
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session id attached to every gateway call.
func (s *Session) ID() string {
	return s.id
}

// Changes delivers a notification after state changes. Notifications
// coalesce: one receive may stand for several changes.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Wait blocks until every fetch started so far has been applied or
// discarded.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Level:            s.level,
		Topic:            s.topic,
		QuestionState:    s.state,
		QuestionBody:     s.question.Body,
		Input:            s.input,
		Feedback:         s.feedback,
		HintText:         s.hint.Text,
		HintVisible:      s.hintVisible,
		HintState:        s.hint.State,
		ExplanationText:  s.explanation.Text,
		ExplanationState: s.explanation.State,
		Stats:            s.stats,
	}
}

// SetInput records the answer text being typed.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	if s.input == text {
		s.mu.Unlock()
		return
	}
	s.input = text
	s.mu.Unlock()
	s.notify()
}

// SetLevel switches the level and loads a question for it. Results of
// loads issued before the switch are dropped.
func (s *Session) SetLevel(ctx context.Context, level problemgen.Level) error {
	if !level.Valid() {
		return fmt.Errorf("set level: unknown level %q", level)
	}

	s.mu.Lock()
	s.level = level
	s.mu.Unlock()

	s.logger.Debug("level changed", zap.String("level", string(level)))
	s.LoadQuestion(ctx)
	return nil
}

// LoadQuestion picks a random topic for the current level and requests a
// question for it. The topic is visible immediately; the question state
// stays Loading until the completion arrives.
func (s *Session) LoadQuestion(ctx context.Context) {
	s.mu.Lock()
	s.questionGen++
	gen := s.questionGen
	level := s.level
	pool := problemgen.Topics(level)
	topic := pool[s.rng.IntN(len(pool))]
	s.topic = topic
	s.state = QuestionLoading
	s.mu.Unlock()
	s.notify()

	prompt := problemgen.BuildQuestionPrompt(topic, level)
	s.fetch(ctx, llm.PurposeQuestion, prompt, func(text string, err error) bool {
		return s.applyQuestion(gen, topic, level, text, err)
	})
}

func (s *Session) applyQuestion(gen uint64, topic string, level problemgen.Level, text string, err error) bool {
	if gen != s.questionGen {
		s.logger.Debug("discarding superseded question",
			zap.Uint64("gen", gen), zap.Uint64("current", s.questionGen))
		return false
	}

	s.input = ""
	s.feedback = ""
	s.hint = Slot{}
	s.hintVisible = false
	s.explanation = Slot{}

	if err != nil {
		s.logger.Warn("question load failed",
			zap.String("topic", topic),
			zap.Stringer("kind", llm.KindOf(err)),
			zap.Error(err))
		s.question = problemgen.Question{Topic: topic, Level: level}
		s.state = QuestionIdle
		return true
	}

	s.question = problemgen.NewQuestion(topic, level, text)
	if !s.question.HasAnswer() {
		s.logger.Info("question has no answer section", zap.String("topic", topic))
	}
	s.state = QuestionReady
	return true
}

// SubmitAnswer scores candidate against the current question and starts
// fetching an explanation, whatever the verdict. A repeated submission
// scores again and its explanation replaces any still in flight.
func (s *Session) SubmitAnswer(ctx context.Context, candidate string) (Verdict, error) {
	s.mu.Lock()
	if s.state != QuestionReady {
		s.mu.Unlock()
		return Verdict{}, ErrNotReady
	}

	q := s.question
	v := Verdict{
		Correct:  problemgen.CheckAnswer(candidate, q),
		Expected: q.Answer,
	}

	s.stats.TotalAttempts++
	if v.Correct {
		s.stats.CorrectAttempts++
		s.stats.Streak++
		v.Feedback = FeedbackCorrect
	} else {
		s.stats.Streak = 0
		v.Feedback = IncorrectFeedback(q.Answer)
	}
	s.feedback = v.Feedback

	s.explainSeq++
	gen, seq := s.questionGen, s.explainSeq
	s.explanation = Slot{State: SlotPending}
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("answer scored",
		zap.Bool("correct", v.Correct),
		zap.String("candidate", strings.TrimSpace(candidate)))

	prompt := problemgen.BuildExplanationPrompt(q.Body, q.Level)
	s.fetch(ctx, llm.PurposeExplanation, prompt, func(text string, err error) bool {
		if gen != s.questionGen || seq != s.explainSeq {
			return false
		}
		if err != nil {
			s.logger.Warn("explanation fetch failed",
				zap.Stringer("kind", llm.KindOf(err)), zap.Error(err))
			s.explanation = Slot{State: SlotFailed}
			return true
		}
		s.explanation = Slot{State: SlotAvailable, Text: strings.TrimSpace(text)}
		return true
	})
	return v, nil
}

// RequestHint fetches a hint for the current question. Only one hint
// request may be in flight.
func (s *Session) RequestHint(ctx context.Context) error {
	s.mu.Lock()
	if s.state != QuestionReady {
		s.mu.Unlock()
		return ErrNotReady
	}
	if s.hint.State == SlotPending {
		s.mu.Unlock()
		return ErrHintPending
	}

	s.hintSeq++
	gen, seq := s.questionGen, s.hintSeq
	q := s.question
	s.hint = Slot{State: SlotPending}
	s.hintVisible = false
	s.mu.Unlock()
	s.notify()

	prompt := problemgen.BuildHintPrompt(q.Body, q.Level)
	s.fetch(ctx, llm.PurposeHint, prompt, func(text string, err error) bool {
		if gen != s.questionGen || seq != s.hintSeq {
			return false
		}
		if err != nil {
			s.logger.Warn("hint fetch failed",
				zap.Stringer("kind", llm.KindOf(err)), zap.Error(err))
			s.hint = Slot{State: SlotFailed}
			return true
		}
		s.hint = Slot{State: SlotAvailable, Text: strings.TrimSpace(text)}
		s.hintVisible = true
		return true
	})
	return nil
}

// fetch calls the gateway on a new goroutine and hands the outcome to
// apply with the session lock held. apply reports whether it changed state.
func (s *Session) fetch(ctx context.Context, purpose, prompt string, apply func(text string, err error) bool) {
	ctx = llm.WithSessionID(llm.WithPurpose(ctx, purpose), s.id)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		text, err := s.gateway.Complete(ctx, prompt)

		s.mu.Lock()
		changed := apply(text, err)
		s.mu.Unlock()

		if changed {
			s.notify()
		}
	}()
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
