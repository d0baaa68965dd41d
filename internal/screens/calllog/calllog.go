package calllog

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/mathcoach/internal/llm"
	"github.com/abhisek/mathcoach/internal/router"
	"github.com/abhisek/mathcoach/internal/screen"
	"github.com/abhisek/mathcoach/internal/store"
	"github.com/abhisek/mathcoach/internal/ui/layout"
	"github.com/abhisek/mathcoach/internal/ui/theme"
)

const pageSize = 50

type callsLoadedMsg struct {
	Events []store.LLMEvent
	Err    error
}

// CallLogScreen lists the gateway calls made by one quiz session.
type CallLogScreen struct {
	eventRepo store.EventRepo
	sessionID string
	events    []store.LLMEvent
	selected  int
	expanded  map[int]bool
	loaded    bool
	errMsg    string
}

var _ screen.Screen = (*CallLogScreen)(nil)
var _ screen.KeyHintProvider = (*CallLogScreen)(nil)

// New creates a CallLogScreen for sessionID.
func New(eventRepo store.EventRepo, sessionID string) *CallLogScreen {
	return &CallLogScreen{
		eventRepo: eventRepo,
		sessionID: sessionID,
		expanded:  make(map[int]bool),
	}
}

func (s *CallLogScreen) Init() tea.Cmd {
	repo, id := s.eventRepo, s.sessionID
	return func() tea.Msg {
		events, err := repo.QueryLLMEvents(context.Background(), store.QueryOpts{
			SessionID: id,
			Limit:     pageSize,
		})
		return callsLoadedMsg{Events: events, Err: err}
	}
}

func (s *CallLogScreen) Title() string {
	return "AI Calls"
}

func (s *CallLogScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Details"},
		{Key: "↑↓", Description: "Navigate"},
		{Key: "R", Description: "Refresh"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *CallLogScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case callsLoadedMsg:
		s.loaded = true
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
			return s, nil
		}
		s.errMsg = ""
		s.events = msg.Events
		if s.selected >= len(s.events) {
			s.selected = 0
		}
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
		case "down", "j":
			if s.selected < len(s.events)-1 {
				s.selected++
			}
		case "enter":
			s.expanded[s.selected] = !s.expanded[s.selected]
		case "r":
			s.expanded = make(map[int]bool)
			return s, s.Init()
		}
	}
	return s, nil
}

func (s *CallLogScreen) View(width, height int) string {
	if s.errMsg != "" {
		return layout.Centered(lipgloss.NewStyle().Foreground(theme.Error), width,
			fmt.Sprintf("\n\nError: %s", s.errMsg))
	}
	if !s.loaded {
		return layout.Centered(theme.Pending, width, "\n\n  Loading calls...")
	}
	if len(s.events) == 0 {
		return layout.Centered(theme.Pending, width, "\n\n  No AI calls yet this session.")
	}

	var b strings.Builder
	b.WriteString("\n")

	for i, e := range s.events {
		prefix := "  "
		if i == s.selected {
			prefix = "> "
		}

		status := "ok"
		if !e.Success {
			status = "failed"
		}

		line := fmt.Sprintf("%s%s  %-12s %-24s %5dms  %4d/%-4d tok  %s",
			prefix, e.Timestamp.Format("15:04:05"), e.Purpose, e.Model,
			e.LatencyMs, e.InputTokens, e.OutputTokens, status)

		style := theme.Unselected
		if i == s.selected {
			style = theme.Selected
		}
		if !e.Success {
			style = style.Foreground(theme.Error)
		}
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, style.Render(line)))
		b.WriteString("\n")

		if s.expanded[i] {
			b.WriteString(layout.Wrap(theme.Label, width, 80, details(e)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(layout.Centered(theme.Label, width, totals(s.events)))
	return b.String()
}

// details is the expanded view of one call.
func details(e store.LLMEvent) string {
	if !e.Success {
		return "Error: " + e.ErrorMessage
	}
	resp := e.ResponseBody
	const maxLen = 300
	if len(resp) > maxLen {
		resp = resp[:maxLen] + "..."
	}
	return resp
}

// totals summarises token use and estimated cost for the listed calls.
func totals(events []store.LLMEvent) string {
	var in, out int
	var cost float64
	for _, e := range events {
		in += e.InputTokens
		out += e.OutputTokens
		if c := llm.LookupCost(e.Model); c != nil {
			cost += c.Cost(e.InputTokens, e.OutputTokens)
		}
	}
	return fmt.Sprintf("%d calls   %d in / %d out tokens   ~$%.4f", len(events), in, out, cost)
}
