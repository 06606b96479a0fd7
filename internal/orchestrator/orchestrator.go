package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/quartetops/quartet/internal/agent"
	"github.com/quartetops/quartet/internal/state"
	"github.com/quartetops/quartet/pkg/models"
)

// Phase is one state of the run state machine.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseClassifying         Phase = "classifying"
	PhaseSingleAgentDispatch Phase = "single_agent_dispatch"
	PhaseWorkflowExecuting   Phase = "workflow_executing"
	PhaseAggregating         Phase = "aggregating"
	PhaseDone                Phase = "done"
)

// Event is emitted as a run progresses, for the TUI and logs.
type Event struct {
	Phase   Phase
	Step    string
	Agent   models.AgentName
	Message string
}

// AgentRunner executes one agent invocation. *agent.Unit satisfies it.
type AgentRunner interface {
	Name() string
	Run(ctx context.Context, userID, input string) (*agent.Result, error)
}

// Config assembles an Orchestrator.
type Config struct {
	Agents    map[models.AgentName]AgentRunner
	Workflows map[string]*models.Workflow
	Table     RouteTable
	// DB records runs when set.
	DB *state.DB
	// Signals is checked between workflow steps when set.
	Signals *SignalWatcher
	// StepTimeout bounds one agent invocation.
	StepTimeout time.Duration
	OnEvent     func(Event)
}

// Orchestrator classifies requests and drives single-agent dispatches
// and fixed multi-step workflows.
type Orchestrator struct {
	agents      map[models.AgentName]AgentRunner
	workflows   map[string]*models.Workflow
	table       RouteTable
	db          *state.DB
	signals     *SignalWatcher
	stepTimeout time.Duration
	onEvent     func(Event)
	now         func() time.Time
}

// New creates an orchestrator. Every workflow the routing table can
// reach must resolve to agents in the agent map; that is verified here
// so a bad deployment fails at startup, not mid-run.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("orchestrator: no agents configured")
	}
	if cfg.Agents[models.AgentGeneral] == nil {
		return nil, fmt.Errorf("orchestrator: the default %q agent is required", models.AgentGeneral)
	}

	table := cfg.Table
	if table == nil {
		table = DefaultRouteTable()
	}

	for _, route := range table {
		if route.Workflow != "" {
			wf := cfg.Workflows[route.Workflow]
			if wf == nil {
				return nil, fmt.Errorf("orchestrator: route references unknown workflow %q", route.Workflow)
			}
			for _, step := range wf.Steps {
				if cfg.Agents[step.Agent] == nil {
					return nil, fmt.Errorf("orchestrator: workflow %q step %q needs agent %q, which is not configured",
						wf.Name, step.Name, step.Agent)
				}
			}
		} else if cfg.Agents[route.Agent] == nil {
			return nil, fmt.Errorf("orchestrator: route references unknown agent %q", route.Agent)
		}
	}

	stepTimeout := cfg.StepTimeout
	if stepTimeout == 0 {
		stepTimeout = 5 * time.Minute
	}

	return &Orchestrator{
		agents:      cfg.Agents,
		workflows:   cfg.Workflows,
		table:       table,
		db:          cfg.DB,
		signals:     cfg.Signals,
		stepTimeout: stepTimeout,
		onEvent:     cfg.OnEvent,
		now:         time.Now,
	}, nil
}

func (o *Orchestrator) emit(e Event) {
	if o.onEvent != nil {
		o.onEvent(e)
	}
}

// Handle runs one request end to end and returns the aggregated result.
// The error is non-nil only for faults outside the run itself; step
// failures are reported inside the result.
func (o *Orchestrator) Handle(ctx context.Context, userID, request string) (*models.RunResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("orchestrator: user id is required")
	}

	result := &models.RunResult{
		RunID:   uuid.NewString(),
		UserID:  userID,
		Request: request,
	}

	if o.db != nil {
		if err := o.db.CreateRun(result.RunID, userID, request, o.now()); err != nil {
			log.Printf("orchestrator: record run start: %v", err)
		}
	}

	o.emit(Event{Phase: PhaseClassifying, Message: request})
	cls := o.table.Classify(request)

	if cls.IsWorkflow() {
		result.Workflow = cls.Workflow
		o.emit(Event{Phase: PhaseWorkflowExecuting, Message: cls.Workflow})
		o.runWorkflow(ctx, userID, request, o.workflows[cls.Workflow], result)
	} else {
		result.Agent = cls.Agent
		o.emit(Event{Phase: PhaseSingleAgentDispatch, Agent: cls.Agent})
		step := o.runStep(ctx, userID, "", cls.Agent, request)
		result.Steps = append(result.Steps, step)
	}

	o.emit(Event{Phase: PhaseAggregating})
	result.Aggregate()
	if result.Workflow != "" && !result.OK && len(result.Steps) < len(o.workflows[result.Workflow].Steps) {
		// Earlier side effects are not rolled back.
		result.Summary += "Remaining steps were skipped; completed steps are not rolled back and may need manual follow-up.\n"
	}

	if o.db != nil {
		if err := o.db.FinishRun(result, o.now()); err != nil {
			log.Printf("orchestrator: record run finish: %v", err)
		}
	}

	o.emit(Event{Phase: PhaseDone, Message: result.Summary})
	return result, nil
}

// runWorkflow executes steps strictly in order, feeding each step's
// output to later templates by name. The first failure aborts the rest;
// already executed steps stay in the result.
func (o *Orchestrator) runWorkflow(ctx context.Context, userID, task string, wf *models.Workflow, result *models.RunResult) {
	outputs := make(map[string]string, len(wf.Steps))

	for _, step := range wf.Steps {
		if o.signals != nil {
			o.waitWhilePaused(ctx)
			if o.signals.Cancelled() || ctx.Err() != nil {
				result.Steps = append(result.Steps, models.StepResult{
					Step:   step.Name,
					Agent:  step.Agent,
					Result: models.Failf("cancelled before step started"),
				})
				return
			}
		}

		o.emit(Event{Phase: PhaseWorkflowExecuting, Step: step.Name, Agent: step.Agent, Message: "running"})
		input := models.ExpandInput(step.Input, task, outputs)
		sr := o.runStep(ctx, userID, step.Name, step.Agent, input)
		result.Steps = append(result.Steps, sr)

		if !sr.Result.Success {
			return
		}
		outputs[step.Name] = sr.Result.Message
	}
}

// runStep executes one agent invocation under the step timeout.
func (o *Orchestrator) runStep(ctx context.Context, userID, stepName string, agentName models.AgentName, input string) models.StepResult {
	runner := o.agents[agentName]
	if runner == nil {
		return models.StepResult{
			Step:   stepName,
			Agent:  agentName,
			Result: models.Failf("agent %q is not configured", agentName),
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	start := o.now()
	res, err := runner.Run(stepCtx, userID, input)
	duration := o.now().Sub(start)

	if err != nil {
		if stepCtx.Err() == context.DeadlineExceeded {
			return models.StepResult{
				Step:     stepName,
				Agent:    agentName,
				Result:   models.Failf("step timed out after %s", o.stepTimeout),
				Duration: duration,
			}
		}
		return models.StepResult{
			Step:     stepName,
			Agent:    agentName,
			Result:   models.Failf("%v", err),
			Duration: duration,
		}
	}

	return models.StepResult{
		Step:  stepName,
		Agent: agentName,
		Result: models.ToolResult{
			Success: true,
			Message: res.Output,
			Data: map[string]any{
				"tokens_in":  res.TokensIn,
				"tokens_out": res.TokensOut,
				"tool_calls": res.ToolCalls,
			},
		},
		Duration: duration,
	}
}

// waitWhilePaused blocks between steps while the pause signal is set.
func (o *Orchestrator) waitWhilePaused(ctx context.Context) {
	for o.signals.Paused() && ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}
