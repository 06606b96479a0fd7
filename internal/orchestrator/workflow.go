package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quartetops/quartet/pkg/models"
)

// WorkflowDependencyAudit is the built-in multi-step workflow triggered
// by the compound dependency+audit route.
const WorkflowDependencyAudit = "dependency-audit"

// BuiltinWorkflows returns the statically defined workflows. Each step's
// input template binds {task} and the outputs of earlier steps by name.
func BuiltinWorkflows() map[string]*models.Workflow {
	return map[string]*models.Workflow{
		WorkflowDependencyAudit: {
			Name:        WorkflowDependencyAudit,
			Description: "Plan a dependency security audit, run it in the workspace, file the findings on GitHub and track them in Jira.",
			Steps: []models.WorkflowStep{
				{
					Name:  "plan",
					Agent: models.AgentPlanning,
					Input: "Draft a short dependency security audit plan for this request: {task}",
				},
				{
					Name:  "findings",
					Agent: models.AgentCoding,
					Input: "Execute this audit plan in the workspace and report vulnerable or outdated dependencies with versions:\n\n{plan}",
				},
				{
					Name:  "report",
					Agent: models.AgentGitHub,
					Input: "File the audit findings below as a GitHub issue (or report that no issue is needed). Original request: {task}\n\nFindings:\n{findings}",
				},
				{
					Name:  "tracking",
					Agent: models.AgentJira,
					Input: "Create or update a Jira ticket tracking this dependency audit and summarize the outcome:\n\n{report}",
				},
			},
		},
	}
}

// workflowFile is the on-disk shape of a workflow override file.
type workflowFile struct {
	Workflows []*models.Workflow `yaml:"workflows"`
}

// LoadWorkflows returns the built-in workflows merged with overrides from
// path (optional). Every definition is validated here: a malformed
// workflow is a deployment fault and aborts startup rather than failing
// mid-run.
func LoadWorkflows(path string) (map[string]*models.Workflow, error) {
	workflows := BuiltinWorkflows()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return validateWorkflows(workflows)
			}
			return nil, fmt.Errorf("read workflows file %s: %w", path, err)
		}

		var file workflowFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse workflows file %s: %w", path, err)
		}
		for _, wf := range file.Workflows {
			workflows[wf.Name] = wf
		}
	}

	return validateWorkflows(workflows)
}

func validateWorkflows(workflows map[string]*models.Workflow) (map[string]*models.Workflow, error) {
	for name, wf := range workflows {
		if wf.Name == "" {
			return nil, fmt.Errorf("workflow under key %q has no name", name)
		}
		if err := wf.Validate(); err != nil {
			return nil, err
		}
	}
	return workflows, nil
}
