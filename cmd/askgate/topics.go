package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var topicsLimit int

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Build and list question topics",
}

var topicsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Cluster recorded questions into new topics",
	Long: `Run one clustering pass over every recorded question. Clusters that
duplicate a recent topic are dropped, so running this twice in a row
creates nothing the second time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := gate.topics.Run(cmd.Context())
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Created %d topics\n", green("✓"), len(created))
		for _, t := range created {
			fmt.Printf("  - %s (%d questions)\n", t.Title, t.QuestionCount)
		}
		return nil
	},
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the most popular topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		top, err := gate.topics.Top(cmd.Context(), topicsLimit)
		if err != nil {
			return err
		}
		if len(top) == 0 {
			fmt.Println("No topics yet. Run 'askgate topics build' first.")
			return nil
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("Popular Topics"))
		for i, t := range top {
			fmt.Printf("%2d. %s %s\n", i+1, t.Title,
				gray(fmt.Sprintf("(popularity %d, %d questions)", t.Popularity, t.QuestionCount)))
			for _, s := range t.Samples {
				fmt.Printf("      %s\n", gray(s))
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	topicsListCmd.Flags().IntVarP(&topicsLimit, "limit", "n", 0, "number of topics to show (default 5)")
	topicsCmd.AddCommand(topicsBuildCmd, topicsListCmd)
	rootCmd.AddCommand(topicsCmd)
}
