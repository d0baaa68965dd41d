package quiz

import (
	"strings"

	"charm.land/lipgloss/v2"

	sess "github.com/abhisek/mathcoach/internal/session"
	"github.com/abhisek/mathcoach/internal/ui/components"
	"github.com/abhisek/mathcoach/internal/ui/layout"
	"github.com/abhisek/mathcoach/internal/ui/theme"
)

const textWidth = 72

func (q *QuizScreen) View(width, height int) string {
	snap := q.snap
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(q.renderLevelLine(width))
	b.WriteString("\n\n")

	switch {
	case snap.QuestionState == sess.QuestionLoading:
		b.WriteString(layout.Centered(theme.Pending, width, "Loading question..."))
		return b.String()

	case snap.QuestionState == sess.QuestionIdle && snap.QuestionBody == "":
		msg := "Press Ctrl+N to get a question."
		if snap.Topic != "" {
			msg = "No question this time. Press Ctrl+N to try another."
		}
		b.WriteString(layout.Centered(theme.Pending, width, msg))
		return b.String()
	}

	b.WriteString(layout.Wrap(theme.Body.Bold(true), width, textWidth, snap.QuestionBody))
	b.WriteString("\n\n")

	b.WriteString(layout.Centered(lipgloss.NewStyle(), width, "Answer: "+q.input.View()))
	b.WriteString("\n\n")
	b.WriteString(q.renderButtons(width))
	b.WriteString("\n")

	if snap.Feedback != "" {
		b.WriteString("\n")
		b.WriteString(layout.Centered(feedbackStyle(snap.Feedback), width, snap.Feedback))
		b.WriteString("\n")
	}

	if hint := renderHint(snap); hint != "" {
		b.WriteString("\n")
		b.WriteString(layout.Wrap(theme.Hint, width, textWidth, hint))
		b.WriteString("\n")
	}

	if exp := renderExplanation(snap, width); exp != "" {
		b.WriteString("\n")
		b.WriteString(exp)
	}

	return b.String()
}

func (q *QuizScreen) renderLevelLine(width int) string {
	level := theme.Label.Render("Level: ") + theme.Selected.Render(q.snap.Level.Label())
	line := level
	if q.snap.Topic != "" {
		line += theme.Label.Render("   Topic: ") + theme.Body.Render(q.snap.Topic)
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, line)
}

func (q *QuizScreen) renderButtons(width int) string {
	ready := q.snap.Ready()
	hintIdle := q.snap.HintState != sess.SlotPending

	row := lipgloss.JoinHorizontal(lipgloss.Top,
		components.NewButton("Check", "Enter", ready && strings.TrimSpace(q.input.Value()) != "").View(),
		"  ",
		components.NewButton("Why?", "Ctrl+T", ready && hintIdle).View(),
		"  ",
		components.NewButton("Try Another", "Ctrl+N", true).View(),
	)
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, row)
}

// renderHint shows nothing for unrequested or failed hints.
func renderHint(snap sess.Snapshot) string {
	switch {
	case snap.HintState == sess.SlotPending:
		return "Thinking of a hint..."
	case snap.HintVisible && snap.HintText != "":
		return "Hint: " + snap.HintText
	default:
		return ""
	}
}

func renderExplanation(snap sess.Snapshot, width int) string {
	switch snap.ExplanationState {
	case sess.SlotPending:
		return layout.Centered(theme.Pending, width, "Working out an explanation...")
	case sess.SlotAvailable:
		if snap.ExplanationText == "" {
			return ""
		}
		return layout.Wrap(theme.Heading, width, textWidth, "AI Explanation:") + "\n" +
			layout.Wrap(theme.Body, width, textWidth, snap.ExplanationText)
	default:
		return ""
	}
}

func feedbackStyle(feedback string) lipgloss.Style {
	if feedback == sess.FeedbackCorrect {
		return theme.Correct
	}
	return theme.Incorrect
}
