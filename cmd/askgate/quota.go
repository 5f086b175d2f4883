package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vietgrow/askgate/internal/types"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's quota usage per identity",
	Long:  `Display the daily limit and how much of it every tracked identity has used today.`,
	Run: func(cmd *cobra.Command, args []string) {
		stats := gate.admission.Stats()
		keys := gate.admission.Keys()
		today := time.Now().UTC().Format(types.DateLayout)
		limit := cfg.Quota.DailyLimit

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Daily Quota ==="))
		fmt.Printf("%s\n", yellow("Configuration:"))
		fmt.Printf("  Daily Limit:     %d\n", limit)
		fmt.Printf("  Retention:       %d days\n", cfg.Quota.RetentionDays)
		fmt.Printf("  Debounce:        %v\n", cfg.Quota.DebounceWindow)
		if cfg.RedisAddr != "" {
			fmt.Printf("  Shared Counter:  %s\n", cfg.RedisAddr)
		}
		fmt.Println()

		if len(keys) == 0 {
			fmt.Println(gray("No identities tracked yet"))
			fmt.Println()
			return
		}

		fmt.Printf("%s\n", yellow(fmt.Sprintf("Identities (%d):", len(keys))))
		width := 0
		for _, k := range keys {
			width = max(width, len(k))
		}
		for _, k := range keys {
			rec := stats[k]
			used := rec.Count
			if rec.Date != today {
				used = 0
			}
			percent := float64(used) / float64(limit) * 100
			fmt.Printf("  %-*s  %d/%d  %s  %s\n", width, k, used, limit,
				renderProgressBar(percent, 20), gray(rec.Date))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}

// renderProgressBar renders a text-based progress bar
func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100.0 * float64(width))

	var barColor *color.Color
	if percent >= 100 {
		barColor = color.New(color.FgRed, color.Bold)
	} else if percent >= 80 {
		barColor = color.New(color.FgYellow)
	} else {
		barColor = color.New(color.FgGreen)
	}

	return "[" + barColor.Sprint(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled) + "]"
}
