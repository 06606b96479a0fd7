package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quartetops/quartet/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connected accounts and recent runs",
	Long: `Display stored credentials and the most recent runs.

Shows:
  - Which (provider, user) pairs have credentials and when they expire
  - The last runs: agent or workflow, outcome and duration`,
	RunE: runStatusCmd,
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	dbPath := state.GlobalDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No state yet. Run 'quartet run <task>' or 'quartet auth <provider>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	creds, err := db.ListCredentials()
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	fmt.Println(color.New(color.Bold).Sprint("Connected accounts"))
	if len(creds) == 0 {
		fmt.Println("  (none; run 'quartet auth <provider>')")
	}
	now := time.Now()
	for _, c := range creds {
		health := color.GreenString("valid")
		if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
			health = color.YellowString("expired, will refresh")
		}
		line := fmt.Sprintf("  %-8s %-12s %s", c.Provider, c.UserID, health)
		if c.CloudID != "" {
			line += fmt.Sprintf("  tenant %s", c.CloudID)
		}
		fmt.Println(line)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	fmt.Println()
	fmt.Println(color.New(color.Bold).Sprint("Recent runs"))
	if len(runs) == 0 {
		fmt.Println("  (none)")
		return nil
	}
	for _, r := range runs {
		mark := color.GreenString("✓")
		if !r.OK {
			mark = color.RedString("✗")
		}
		target := r.Agent
		if r.Workflow != "" {
			target = "workflow " + r.Workflow
		}
		fmt.Printf("  %s %s  %s  %s\n", mark, r.StartedAt.Format("2006-01-02 15:04"), target, truncate(r.Request, 60))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
