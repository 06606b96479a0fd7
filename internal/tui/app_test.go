package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/quartetops/quartet/internal/orchestrator"
	"github.com/quartetops/quartet/pkg/models"
)

func TestQuitCancelsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	done := make(chan error, 1)
	app := New("alice", func(ctx context.Context, userID, request string) (*models.RunResult, error) {
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
		return nil, ctx.Err()
	})

	cmd := app.submit("audit the lodash dependency")
	go cmd()

	<-started
	app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("run context err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("quitting did not cancel the in-flight run")
	}
}

func TestRecordResultSurfacesAuthorizationURL(t *testing.T) {
	app := New("alice", nil)

	result := &models.RunResult{
		Request: "list my github issues",
		Agent:   models.AgentGitHub,
		Steps: []models.StepResult{
			{
				Agent: models.AgentGitHub,
				Result: models.Failf(
					"github authorization required for user alice: visit https://github.com/login/device"),
			},
		},
	}
	result.Aggregate()
	app.recordResult(result)

	if len(app.authURLs) != 1 {
		t.Fatalf("authURLs = %v", app.authURLs)
	}
	if !strings.Contains(app.authURLs[0], "https://github.com/login/device") {
		t.Errorf("authURLs[0] = %q", app.authURLs[0])
	}

	view := app.View()
	if !strings.Contains(view, "https://github.com/login/device") {
		t.Error("view does not show the authorization URL")
	}
}

func TestRecordEventTracksWorkflowSteps(t *testing.T) {
	app := New("alice", nil)
	app.running = true

	app.recordEvent(orchestrator.Event{Phase: orchestrator.PhaseClassifying})
	app.recordEvent(orchestrator.Event{
		Phase: orchestrator.PhaseWorkflowExecuting,
		Step:  "plan",
		Agent: models.AgentPlanning,
	})

	if len(app.steps) != 2 {
		t.Fatalf("steps = %v", app.steps)
	}
	if !strings.Contains(app.steps[1], "plan") {
		t.Errorf("steps[1] = %q", app.steps[1])
	}
}

func TestViewShowsRunHistory(t *testing.T) {
	app := New("alice", nil)

	result := &models.RunResult{
		Request:  "dependency audit",
		Workflow: "dependency-audit",
		Steps: []models.StepResult{
			{Step: "plan", Agent: models.AgentPlanning, Result: models.Ok("planned", nil)},
		},
	}
	result.Aggregate()
	app.recordResult(result)

	view := app.View()
	if !strings.Contains(view, "workflow dependency-audit") {
		t.Errorf("view lacks the workflow label:\n%s", view)
	}
	if !strings.Contains(view, "planned") {
		t.Errorf("view lacks the step message:\n%s", view)
	}
}
