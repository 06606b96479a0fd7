package models

import (
	"fmt"
	"regexp"
	"time"
)

// AgentName identifies one of the single-purpose agents.
type AgentName string

const (
	// AgentPlanning decomposes work and drafts plans.
	AgentPlanning AgentName = "planning"
	// AgentGitHub operates on GitHub repositories and issues.
	AgentGitHub AgentName = "github"
	// AgentJira operates on Jira tickets and sprints.
	AgentJira AgentName = "jira"
	// AgentCoding runs code, tests and shell commands in a working directory.
	AgentCoding AgentName = "coding"
	// AgentGeneral is the fallback when no keyword matches.
	AgentGeneral AgentName = "general"
)

// Valid returns true if the agent name is a known value.
func (a AgentName) Valid() bool {
	switch a {
	case AgentPlanning, AgentGitHub, AgentJira, AgentCoding, AgentGeneral:
		return true
	default:
		return false
	}
}

// WorkflowStep is one ordered step of a fixed workflow. Input is a template
// that may reference {task} (the original request) and {<step>} for the
// output of any earlier step, by that step's name.
type WorkflowStep struct {
	// Name is the binding name under which this step's output is exposed
	// to later steps.
	Name string `yaml:"name"`
	// Agent is the agent that executes this step.
	Agent AgentName `yaml:"agent"`
	// Input is the input template for the step.
	Input string `yaml:"input"`
}

// Workflow is a fixed, statically defined ordered sequence of steps.
// It has no cycles and no conditional branching; each step runs to
// completion before the next starts.
type Workflow struct {
	// Name is the workflow identifier used by the router.
	Name string `yaml:"name"`
	// Description explains what the workflow does.
	Description string `yaml:"description"`
	// Steps are executed strictly in order.
	Steps []WorkflowStep `yaml:"steps"`
}

var bindingRe = regexp.MustCompile(`\{([a-z][a-z0-9_-]*)\}`)

// Validate checks the workflow definition. Malformed definitions are a
// deployment-time fault and abort startup.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow has no name")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", w.Name)
	}

	seen := map[string]bool{"task": true}
	for i, step := range w.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %q: step %d has no name", w.Name, i+1)
		}
		if seen[step.Name] {
			return fmt.Errorf("workflow %q: duplicate step name %q", w.Name, step.Name)
		}
		if !step.Agent.Valid() {
			return fmt.Errorf("workflow %q: step %q references unknown agent %q", w.Name, step.Name, step.Agent)
		}
		if step.Input == "" {
			return fmt.Errorf("workflow %q: step %q has no input template", w.Name, step.Name)
		}

		// Bindings may only reference {task} or earlier steps.
		for _, m := range bindingRe.FindAllStringSubmatch(step.Input, -1) {
			if !seen[m[1]] {
				return fmt.Errorf("workflow %q: step %q references %q which is not an earlier step", w.Name, step.Name, m[1])
			}
		}
		seen[step.Name] = true
	}
	return nil
}

// ExpandInput fills a step's input template from the original task text and
// the named outputs of earlier steps.
func ExpandInput(tmpl, task string, outputs map[string]string) string {
	return bindingRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if name == "task" {
			return task
		}
		if out, ok := outputs[name]; ok {
			return out
		}
		return m
	})
}

// StepResult is the recorded outcome of a single step (or of a
// single-agent dispatch, which is modeled as a one-step run).
type StepResult struct {
	// Step is the step name (empty for single-agent runs).
	Step string `json:"step,omitempty"`
	// Agent is the agent that executed the step.
	Agent AgentName `json:"agent"`
	// Result is the uniform tool-result envelope for this step.
	Result ToolResult `json:"result"`
	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
}

// RunResult aggregates one orchestrated run: the ordered step results plus
// an overall flag that is true only if every executed step succeeded.
type RunResult struct {
	// RunID is the unique id of this run.
	RunID string `json:"run_id"`
	// UserID is the user this run acted on behalf of.
	UserID string `json:"user_id"`
	// Request is the original free-text request.
	Request string `json:"request"`
	// Agent is set for single-agent dispatches.
	Agent AgentName `json:"agent,omitempty"`
	// Workflow is set for multi-step workflow runs.
	Workflow string `json:"workflow,omitempty"`
	// Steps holds the executed steps, in order. Aborted steps are absent.
	Steps []StepResult `json:"steps"`
	// OK is true only if every executed step succeeded.
	OK bool `json:"ok"`
	// Summary is the concatenated human-readable outcome.
	Summary string `json:"summary"`
}

// Aggregate computes OK and Summary from the recorded steps.
func (r *RunResult) Aggregate() {
	r.OK = len(r.Steps) > 0
	summary := ""
	for _, s := range r.Steps {
		if !s.Result.Success {
			r.OK = false
		}
		status := "ok"
		if !s.Result.Success {
			status = "failed"
		}
		label := string(s.Agent)
		if s.Step != "" {
			label = s.Step + " (" + label + ")"
		}
		summary += fmt.Sprintf("[%s] %s: %s\n", status, label, s.Result.Message)
	}
	r.Summary = summary
}
