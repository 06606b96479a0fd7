package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quartetops/quartet/internal/agent"
	"github.com/quartetops/quartet/internal/state"
	"github.com/quartetops/quartet/pkg/models"
)

// fakeAgent is a scriptable AgentRunner.
type fakeAgent struct {
	name   models.AgentName
	calls  int
	inputs []string
	users  []string
	output string
	err    error
}

func (f *fakeAgent) Name() string { return string(f.name) }

func (f *fakeAgent) Run(_ context.Context, userID, input string) (*agent.Result, error) {
	f.calls++
	f.users = append(f.users, userID)
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	output := f.output
	if output == "" {
		output = string(f.name) + " output"
	}
	return &agent.Result{Output: output, TokensIn: 10, TokensOut: 5}, nil
}

func fakeAgents() map[models.AgentName]AgentRunner {
	agents := make(map[models.AgentName]AgentRunner)
	for _, name := range []models.AgentName{
		models.AgentPlanning, models.AgentGitHub, models.AgentJira,
		models.AgentCoding, models.AgentGeneral,
	} {
		agents[name] = &fakeAgent{name: name}
	}
	return agents
}

func testOrchestrator(t *testing.T, agents map[models.AgentName]AgentRunner) *Orchestrator {
	t.Helper()
	workflows, err := LoadWorkflows("")
	if err != nil {
		t.Fatalf("load workflows: %v", err)
	}
	o, err := New(Config{
		Agents:      agents,
		Workflows:   workflows,
		StepTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestHandleSingleAgentDispatch(t *testing.T) {
	agents := fakeAgents()
	o := testOrchestrator(t, agents)

	res, err := o.Handle(t.Context(), "alice", "list my github issues")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Agent != models.AgentGitHub || res.Workflow != "" {
		t.Errorf("routed to agent=%q workflow=%q", res.Agent, res.Workflow)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(res.Steps))
	}
	if !res.OK {
		t.Errorf("OK = false: %s", res.Summary)
	}

	gh := agents[models.AgentGitHub].(*fakeAgent)
	if gh.calls != 1 || gh.users[0] != "alice" {
		t.Errorf("github agent calls=%d users=%v", gh.calls, gh.users)
	}
}

func TestHandleDefaultsToGeneral(t *testing.T) {
	agents := fakeAgents()
	o := testOrchestrator(t, agents)

	res, err := o.Handle(t.Context(), "alice", "tell me something")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Agent != models.AgentGeneral {
		t.Errorf("Agent = %q", res.Agent)
	}
}

func TestHandleWorkflowBindsStepOutputs(t *testing.T) {
	agents := fakeAgents()
	planning := agents[models.AgentPlanning].(*fakeAgent)
	planning.output = "THE-PLAN"
	coding := agents[models.AgentCoding].(*fakeAgent)

	o := testOrchestrator(t, agents)

	res, err := o.Handle(t.Context(), "alice", "dependency audit please")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Workflow != WorkflowDependencyAudit {
		t.Fatalf("Workflow = %q", res.Workflow)
	}
	if len(res.Steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(res.Steps))
	}
	if !res.OK {
		t.Errorf("OK = false: %s", res.Summary)
	}

	// The planning output feeds the coding step by name.
	if !strings.Contains(coding.inputs[0], "THE-PLAN") {
		t.Errorf("coding input lost the plan binding: %q", coding.inputs[0])
	}
	// The original task is bound into templates that name it.
	if !strings.Contains(planning.inputs[0], "dependency audit please") {
		t.Errorf("planning input lost the task binding: %q", planning.inputs[0])
	}
}

func TestHandleWorkflowAbortsOnStepFailure(t *testing.T) {
	agents := fakeAgents()
	coding := agents[models.AgentCoding].(*fakeAgent)
	coding.err = fmt.Errorf("sandbox exploded")
	github := agents[models.AgentGitHub].(*fakeAgent)
	jira := agents[models.AgentJira].(*fakeAgent)

	o := testOrchestrator(t, agents)

	res, err := o.Handle(t.Context(), "alice", "dependency audit please")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// Step 2 of 4 failed: exactly 2 step results, second marked failed,
	// steps 3 and 4 never ran.
	if len(res.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(res.Steps))
	}
	if res.Steps[0].Result.Success != true {
		t.Error("step 1 should have succeeded")
	}
	if res.Steps[1].Result.Success {
		t.Error("step 2 should have failed")
	}
	if github.calls != 0 || jira.calls != 0 {
		t.Errorf("aborted steps still ran: github=%d jira=%d", github.calls, jira.calls)
	}
	if res.OK {
		t.Error("OK = true for a failed workflow")
	}
	if !strings.Contains(res.Summary, "manual follow-up") {
		t.Errorf("summary lacks the no-rollback note: %q", res.Summary)
	}
	if !strings.Contains(res.Summary, "sandbox exploded") {
		t.Errorf("summary lacks the failure cause: %q", res.Summary)
	}
}

func TestHandleRequiresUserID(t *testing.T) {
	o := testOrchestrator(t, fakeAgents())
	if _, err := o.Handle(t.Context(), "", "anything"); err == nil {
		t.Fatal("Handle without user id succeeded")
	}
}

func TestHandleRecordsRun(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "quartet.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	workflows, err := LoadWorkflows("")
	if err != nil {
		t.Fatalf("load workflows: %v", err)
	}
	o, err := New(Config{
		Agents:      fakeAgents(),
		Workflows:   workflows,
		DB:          db,
		StepTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Handle(t.Context(), "alice", "plan the quarter")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].ID != res.RunID || runs[0].UserID != "alice" {
		t.Errorf("recorded run = %+v", runs[0])
	}
}

func TestHandleEmitsPhases(t *testing.T) {
	workflows, err := LoadWorkflows("")
	if err != nil {
		t.Fatalf("load workflows: %v", err)
	}

	var phases []Phase
	o, err := New(Config{
		Agents:      fakeAgents(),
		Workflows:   workflows,
		StepTimeout: 5 * time.Second,
		OnEvent: func(e Event) {
			if len(phases) == 0 || phases[len(phases)-1] != e.Phase {
				phases = append(phases, e.Phase)
			}
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := o.Handle(t.Context(), "alice", "plan the quarter"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := []Phase{PhaseClassifying, PhaseSingleAgentDispatch, PhaseAggregating, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestNewRejectsMissingWorkflowAgent(t *testing.T) {
	workflows, err := LoadWorkflows("")
	if err != nil {
		t.Fatalf("load workflows: %v", err)
	}

	// The routing table reaches the dependency-audit workflow, which
	// needs the jira agent.
	agents := fakeAgents()
	delete(agents, models.AgentJira)

	if _, err := New(Config{Agents: agents, Workflows: workflows}); err == nil {
		t.Fatal("New accepted a workflow with a missing agent")
	}
}
