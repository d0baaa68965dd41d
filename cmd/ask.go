package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathcoach/internal/session"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a single question without the full-screen UI",
	Long: "Fetches one question, reads an answer from stdin, then prints the\n" +
		"verdict and an explanation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer d.Close()

		level, err := startLevel(cmd, d.cfg)
		if err != nil {
			return err
		}
		withHint, _ := cmd.Flags().GetBool("hint")

		s := session.New(d.gateway,
			session.WithLogger(d.logger),
			session.WithLevel(level))
		return runAsk(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout(), withHint)
	},
}

var errNoQuestion = errors.New("no question available; check the provider settings and the log file")

// runAsk drives one question through s. Each step waits for its fetch to
// land before printing.
func runAsk(ctx context.Context, s *session.Session, in io.Reader, out io.Writer, withHint bool) error {
	s.LoadQuestion(ctx)
	s.Wait()

	snap := s.Snapshot()
	fmt.Fprintf(out, "Level: %s   Topic: %s\n\n", snap.Level.Label(), snap.Topic)
	if !snap.Ready() {
		return errNoQuestion
	}
	fmt.Fprintln(out, snap.QuestionBody)
	fmt.Fprintln(out)

	if withHint {
		if err := s.RequestHint(ctx); err != nil {
			return fmt.Errorf("request hint: %w", err)
		}
		s.Wait()
		if h := s.Snapshot(); h.HintState == session.SlotAvailable {
			fmt.Fprintf(out, "Hint: %s\n\n", h.HintText)
		} else {
			fmt.Fprintln(out, "(no hint available)")
			fmt.Fprintln(out)
		}
	}

	fmt.Fprint(out, "Answer: ")
	answer, err := readLine(in)
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}

	v, err := s.SubmitAnswer(ctx, answer)
	if err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, v.Feedback)

	s.Wait()
	snap = s.Snapshot()
	switch snap.ExplanationState {
	case session.SlotAvailable:
		fmt.Fprintln(out)
		fmt.Fprintln(out, "AI Explanation:")
		fmt.Fprintln(out, snap.ExplanationText)
	case session.SlotFailed:
		fmt.Fprintln(out)
		fmt.Fprintln(out, "(explanation unavailable)")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, snap.Stats.String())
	return nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return strings.TrimRight(sc.Text(), "\r"), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", io.ErrUnexpectedEOF
}

func init() {
	askCmd.Flags().String("level", "", "Level: junior or leaving")
	askCmd.Flags().Bool("hint", false, "Show a hint before reading the answer")
	askCmd.Flags().BoolP("verbose", "v", false, "Log to stderr at debug level")
}
