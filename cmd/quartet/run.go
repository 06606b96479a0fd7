package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quartetops/quartet/internal/orchestrator"
)

var runUser string

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task through the agent coordinator",
	Long: `Run a single task and print the result.

The task is matched against the routing table and dispatched to one
agent, or to a multi-step workflow when it matches a workflow rule.
Workflows execute sequentially and stop at the first failed step;
completed steps are kept and are not rolled back.

Examples:
  quartet run "plan the v2 migration"
  quartet run "list my open github issues"
  quartet run --user alice "update the lodash dependency and audit it"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "", "User to run as (defaults to config or $USER)")
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := buildSystem(printEvent)
	if err != nil {
		return err
	}
	defer sys.Close()

	userID := sys.cfg.UserID(runUser)
	task := strings.Join(args, " ")

	result, err := sys.orch.Handle(ctx, userID, task)
	if err != nil {
		return err
	}

	fmt.Println()
	for _, step := range result.Steps {
		mark := color.GreenString("✓")
		if !step.Result.Success {
			mark = color.RedString("✗")
		}
		fmt.Printf("%s %s (%s, %s)\n", mark, step.Step, step.Agent, step.Duration.Round(time.Millisecond))
	}
	fmt.Println()
	fmt.Println(result.Summary)

	in, out := sys.client.Tracker().Total()
	fmt.Printf("\nTokens: %d in / %d out across %d API calls\n", in, out, sys.client.Tracker().Calls())

	if !result.OK {
		return fmt.Errorf("task did not complete successfully")
	}
	return nil
}

// printEvent writes orchestrator progress to stdout for headless runs.
func printEvent(e orchestrator.Event) {
	switch e.Phase {
	case orchestrator.PhaseClassifying:
		fmt.Printf("%s classifying request...\n", color.CyanString("→"))
	case orchestrator.PhaseSingleAgentDispatch:
		fmt.Printf("%s dispatching to %s agent\n", color.CyanString("→"), e.Agent)
	case orchestrator.PhaseWorkflowExecuting:
		if e.Step == "" {
			fmt.Printf("%s running workflow %s\n", color.CyanString("→"), e.Message)
			return
		}
		fmt.Printf("%s step %s (%s)\n", color.CyanString("→"), e.Step, e.Agent)
	case orchestrator.PhaseAggregating, orchestrator.PhaseDone:
		// Results are printed once the run returns.
	}
}
