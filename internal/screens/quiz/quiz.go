package quiz

import (
	"context"
	"errors"
	"strings"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/zap"

	"github.com/abhisek/mathcoach/internal/router"
	"github.com/abhisek/mathcoach/internal/screen"
	sess "github.com/abhisek/mathcoach/internal/session"
	"github.com/abhisek/mathcoach/internal/ui/components"
	"github.com/abhisek/mathcoach/internal/ui/layout"
)

// Key bindings.
const (
	keySubmit   = "enter"
	keyLevel    = "tab"
	keyNext     = "ctrl+n"
	keyHint     = "ctrl+t"
	keyCallLog  = "ctrl+l"
	answerLimit = 80
)

// QuizScreen is the single-question practice view. It renders session
// snapshots and turns key presses into session operations.
type QuizScreen struct {
	ctx     context.Context
	session *sess.Session
	logger  *zap.Logger
	callLog func() screen.Screen

	input components.TextInput
	snap  sess.Snapshot
}

var _ screen.Screen = (*QuizScreen)(nil)
var _ screen.KeyHintProvider = (*QuizScreen)(nil)
var _ screen.StatusProvider = (*QuizScreen)(nil)

// Option configures a QuizScreen.
type Option func(*QuizScreen)

// WithCallLog enables the call log screen, built on demand by factory.
func WithCallLog(factory func() screen.Screen) Option {
	return func(q *QuizScreen) { q.callLog = factory }
}

// WithLogger sets the screen's logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *QuizScreen) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a QuizScreen driving s. ctx bounds every gateway call the
// screen starts and the change listener.
func New(ctx context.Context, s *sess.Session, opts ...Option) *QuizScreen {
	q := &QuizScreen{
		ctx:     ctx,
		session: s,
		logger:  zap.NewNop(),
		input:   components.NewTextInput("Your answer", answerLimit),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.refresh()
	return q
}

func (q *QuizScreen) Init() tea.Cmd {
	return tea.Batch(
		q.input.Init(),
		q.loadQuestion(),
		q.waitForChange(),
	)
}

func (q *QuizScreen) Title() string {
	return q.snap.Level.Label()
}

// Status shows the running score in the header.
func (q *QuizScreen) Status() string {
	return q.snap.Stats.String()
}

func (q *QuizScreen) KeyHints() []layout.KeyHint {
	hints := []layout.KeyHint{
		{Key: "Enter", Description: "Check"},
		{Key: "Ctrl+T", Description: "Why?"},
		{Key: "Ctrl+N", Description: "Try Another"},
		{Key: "Tab", Description: "Level"},
	}
	if q.callLog != nil {
		hints = append(hints, layout.KeyHint{Key: "Ctrl+L", Description: "Calls"})
	}
	return append(hints, layout.KeyHint{Key: "Ctrl+C", Description: "Quit"})
}

func (q *QuizScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionChangedMsg:
		q.refresh()
		return q, q.waitForChange()

	case sessionClosedMsg:
		return q, nil

	case tea.KeyMsg:
		return q.handleKey(msg)

	case tea.PasteMsg:
		return q, q.edit(msg)
	}

	var cmd tea.Cmd
	q.input, cmd = q.input.Update(msg)
	return q, cmd
}

func (q *QuizScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	switch msg.String() {
	case keySubmit:
		q.submit()
		return q, nil

	case keyHint:
		if err := q.session.RequestHint(q.ctx); err != nil && !isPrecondition(err) {
			q.logger.Warn("hint request rejected", zap.Error(err))
		}
		q.refresh()
		return q, nil

	case keyNext:
		return q, q.loadQuestion()

	case keyLevel:
		level := q.snap.Level.Next()
		if err := q.session.SetLevel(q.ctx, level); err != nil {
			q.logger.Warn("level change rejected", zap.Error(err))
		}
		q.refresh()
		return q, nil

	case keyCallLog:
		if q.callLog == nil {
			return q, nil
		}
		factory := q.callLog
		return q, func() tea.Msg { return router.PushScreenMsg{Screen: factory()} }
	}

	return q, q.edit(msg)
}

// edit feeds msg to the text input and records any change on the session,
// which owns the typed answer.
func (q *QuizScreen) edit(msg tea.Msg) tea.Cmd {
	before := q.input.Value()
	var cmd tea.Cmd
	q.input, cmd = q.input.Update(msg)
	if v := q.input.Value(); v != before {
		q.session.SetInput(v)
		q.snap.Input = v
	}
	return cmd
}

// submit scores the typed answer. Blank input is ignored so a stray Enter
// doesn't cost the student their streak.
func (q *QuizScreen) submit() {
	answer := q.input.Value()
	if strings.TrimSpace(answer) == "" {
		return
	}

	v, err := q.session.SubmitAnswer(q.ctx, answer)
	if err != nil {
		if !isPrecondition(err) {
			q.logger.Warn("answer rejected", zap.Error(err))
		}
		return
	}
	q.logger.Debug("answer submitted", zap.Bool("correct", v.Correct))
	q.refresh()
}

func (q *QuizScreen) loadQuestion() tea.Cmd {
	s, ctx := q.session, q.ctx
	return func() tea.Msg {
		s.LoadQuestion(ctx)
		return nil
	}
}

// waitForChange blocks until the session reports a change or ctx ends.
func (q *QuizScreen) waitForChange() tea.Cmd {
	changes, ctx := q.session.Changes(), q.ctx
	return func() tea.Msg {
		select {
		case <-changes:
			return sessionChangedMsg{}
		case <-ctx.Done():
			return sessionClosedMsg{}
		}
	}
}

// refresh copies the session state and brings the text input in line
// with it.
func (q *QuizScreen) refresh() {
	q.snap = q.session.Snapshot()
	if q.input.Value() != q.snap.Input {
		q.input.SetValue(q.snap.Input)
	}
	q.input.SetLocked(!q.snap.Ready())
}

func isPrecondition(err error) bool {
	return errors.Is(err, sess.ErrNotReady) || errors.Is(err, sess.ErrHintPending)
}
