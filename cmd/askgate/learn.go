package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vietgrow/askgate/internal/learning"
	"github.com/vietgrow/askgate/internal/types"
)

var learnLatest bool

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Summarize recent feedback and topics",
	Long: `Summarize the latest feedback and topics into a learning summary and save it.
With --latest, print the most recent saved summary instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if learnLatest {
			latest, err := gate.learning.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if latest == nil {
				fmt.Println("No learning summary yet")
				return nil
			}
			printSummary(latest)
			return nil
		}

		if err := gate.requireAnswers(); err != nil {
			return err
		}
		summary, err := gate.learning.Run(cmd.Context())
		if errors.Is(err, learning.ErrNothingToLearn) {
			fmt.Println("Nothing to learn: no feedback or topics yet")
			return nil
		}
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	},
}

var (
	feedbackQuestionID string
	feedbackNote       string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <helpful|not_helpful> <question>",
	Short: "Record feedback on an answer",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := gate.feedback.Record(cmd.Context(), types.Feedback{
			QuestionID: feedbackQuestionID,
			Question:   strings.Join(args[1:], " "),
			Rating:     types.Rating(args[0]),
			Note:       feedbackNote,
		})
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Recorded feedback %s\n", green("✓"), saved.ID)
		return nil
	},
}

func printSummary(s *types.LearningSummary) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\n%s %s\n\n", cyan("Learning Summary"), gray(s.CreatedAt.Format("2006-01-02 15:04")))
	fmt.Println(s.Summary)
	fmt.Printf("\n%s\n\n", gray(fmt.Sprintf("from %d feedback entries and %d topics", s.FeedbackCount, s.TopicCount)))
}

func init() {
	learnCmd.Flags().BoolVar(&learnLatest, "latest", false, "print the latest saved summary")
	feedbackCmd.Flags().StringVar(&feedbackQuestionID, "id", "", "answer record id")
	feedbackCmd.Flags().StringVar(&feedbackNote, "note", "", "free-form note")
	rootCmd.AddCommand(learnCmd, feedbackCmd)
}
