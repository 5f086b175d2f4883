package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vietgrow/askgate/internal/repl"
	"github.com/vietgrow/askgate/internal/types"
)

var (
	askIP   string
	askUser string
	history string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask a single question through the same path as the HTTP API: the caller's
daily quota is charged, the similarity cache is consulted and a new answer is
generated on a miss. --user only charges a user registered with
"askgate users add"; unknown ids fall back to the --ip counter.

The data directory is locked while the command runs, so ask fails while
"askgate serve" or another shell holds it.

Example:
  askgate ask "how much urea per hectare of rice"
  askgate ask --user u1 "when to plant mango"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gate.requireAnswers(); err != nil {
			return err
		}
		release, err := gate.lockDataDir("askgate ask")
		if err != nil {
			return err
		}
		defer release()

		err = gate.ask(cmd.Context(), os.Stdout, strings.Join(args, " "), askIP, askUser)
		if errors.Is(err, types.ErrQuotaExceeded) {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s %v\n", yellow("Limit:"), err)
		}
		return err
	},
}

// ask charges the caller's quota and prints one answer
func (a *app) ask(ctx context.Context, out io.Writer, question, ip, userID string) error {
	id := a.identities.Identify(ctx, ip, userID)
	if err := a.admission.Check(ctx, id); err != nil {
		return err
	}

	result, err := a.answers.Answer(ctx, question, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, result.Answer)
	gray := color.New(color.FgHiBlack).SprintFunc()
	if result.Source == types.SourceCache {
		fmt.Fprintln(out, gray(fmt.Sprintf("(cached answer for %q, score %.2f)", result.MatchedQuestion, result.Score)))
	}
	fmt.Fprintln(out, gray(fmt.Sprintf("%d questions left today for %s", a.admission.Remaining(id), id.Key())))
	return nil
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive question shell",
	Long: `Start an interactive shell. Every line that is not a /command is asked as a
question and charged to the shell's identity.

The data directory is locked for the lifetime of the shell.

Type /help in the shell for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gate.requireAnswers(); err != nil {
			return err
		}
		release, err := gate.lockDataDir("askgate repl")
		if err != nil {
			return err
		}
		defer release()
		ctx := cmd.Context()

		r, err := repl.New(&repl.Config{
			Admission:   gate.admission,
			Answers:     gate.answers,
			Topics:      gate.topics,
			Identity:    gate.identities.Identify(ctx, askIP, askUser),
			HistoryFile: history,
		})
		if err != nil {
			return fmt.Errorf("failed to create REPL: %w", err)
		}
		return r.Run(ctx)
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, replCmd} {
		c.Flags().StringVar(&askIP, "ip", "127.0.0.1", "IP address to charge when no user is given")
		c.Flags().StringVar(&askUser, "user", "", "registered user id to charge")
		rootCmd.AddCommand(c)
	}
	replCmd.Flags().StringVar(&history, "history", "", "readline history file")
}
