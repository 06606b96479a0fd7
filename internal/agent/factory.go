package agent

import (
	"github.com/quartetops/quartet/internal/tools"
	"github.com/quartetops/quartet/pkg/models"
)

// BuildUnits constructs the agent units behind the orchestrator. Each unit
// shares the client and its token tracker but sees only the tools its role
// needs; the planning agent runs with none.
func BuildUnits(client *Client, registry *tools.Registry, maxIterations int) map[models.AgentName]*Unit {
	base := UnitConfig{
		Messenger:     client,
		Model:         client.Model(),
		Tracker:       client.Tracker(),
		MaxIterations: maxIterations,
	}

	build := func(name models.AgentName, prompt string, reg *tools.Registry) *Unit {
		cfg := base
		cfg.Name = string(name)
		cfg.SystemPrompt = prompt
		cfg.Tools = reg
		return NewUnit(cfg)
	}

	return map[models.AgentName]*Unit{
		models.AgentPlanning: build(models.AgentPlanning, PlanningPrompt, tools.NewRegistry()),
		models.AgentGitHub:   build(models.AgentGitHub, GitHubPrompt, registry.Subset("github", "auth_status")),
		models.AgentJira:     build(models.AgentJira, JiraPrompt, registry.Subset("jira", "auth_status")),
		models.AgentCoding:   build(models.AgentCoding, CodingPrompt, registry.Subset("file", "command")),
		models.AgentGeneral:  build(models.AgentGeneral, GeneralPrompt, registry),
	}
}
