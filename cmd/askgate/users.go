package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vietgrow/askgate/internal/types"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var userEmail string

var usersAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a user",
	Long: `Register a user id so that "ask --user" and requests carrying the same uid
are charged to user:<id> instead of the caller's IP. Adding an existing user
keeps its usage so far and only updates the email when one is given.

Example:
  askgate users add u1 --email farmer@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := gate.identities.Register(cmd.Context(), args[0], userEmail)
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Registered %s\n", green("✓"), types.Identity{User: user}.Key())
		return nil
	},
}

var usersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a registered user and today's remaining quota",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user := gate.identities.Resolve(cmd.Context(), args[0])
		if user == nil {
			return fmt.Errorf("user %q is not registered", args[0])
		}
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s\n", types.Identity{User: user}.Key())
		if user.Email != "" {
			fmt.Printf("  Email:      %s\n", user.Email)
		}
		fmt.Printf("  Remaining:  %d/%d\n", gate.admission.Remaining(types.Identity{User: user}), cfg.Quota.DailyLimit)
		if user.LastResetDate != "" {
			fmt.Printf("  %s\n", gray("last charged "+user.LastResetDate))
		}
		return nil
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&userEmail, "email", "", "contact email")
	usersCmd.AddCommand(usersAddCmd, usersShowCmd)
	rootCmd.AddCommand(usersCmd)
}
