package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/quartetops/quartet/internal/orchestrator"
	"github.com/quartetops/quartet/internal/tui"
)

var rootUser string

var rootCmd = &cobra.Command{
	Use:   "quartet",
	Short: "Multi-agent task coordinator",
	Long: `Quartet routes natural-language requests to specialised agents:
planning, GitHub, Jira and coding, with a general agent as fallback.

With no arguments, launches interactive mode with a persistent TUI where
you type tasks and watch them execute.

Requests that mention both a dependency update and an audit trigger the
dependency-audit workflow: plan, apply and verify the update, open a
GitHub issue with the findings and file a Jira ticket to track follow-up.

Each user authorizes GitHub and Jira access separately; agents only ever
act with the requesting user's credentials. Run 'quartet auth <provider>'
to connect an account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&rootUser, "user", "", "User to run as (defaults to config or $USER)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// runInteractive starts the TUI and feeds orchestrator events into it.
func runInteractive() error {
	var program *tea.Program

	sys, err := buildSystem(func(e orchestrator.Event) {
		if program != nil {
			program.Send(tui.EventMsg{Event: e})
		}
	})
	if err != nil {
		return err
	}
	defer sys.Close()

	app := tui.New(sys.cfg.UserID(rootUser), sys.orch.Handle)
	program = tui.Start(app)
	_, err = program.Run()
	return err
}
