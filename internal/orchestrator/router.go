// Package orchestrator routes free-text requests to agents and drives
// multi-step workflows across them.
package orchestrator

import (
	"strings"

	"github.com/quartetops/quartet/pkg/models"
)

// Route is one entry in the routing table: a keyword set mapped to a
// single agent or a named workflow.
type Route struct {
	// Keywords trigger this route. With MatchAll false any one keyword
	// matches; with MatchAll true every keyword must appear.
	Keywords []string
	MatchAll bool
	// Agent is the target for single-agent routes.
	Agent models.AgentName
	// Workflow names a multi-step workflow instead of an agent.
	Workflow string
}

// RouteTable is an ordered routing table: the first matching route wins.
type RouteTable []Route

// DefaultRouteTable returns the routing table. Order matters: the
// compound workflow trigger sits first so that a request naming both
// "dependency" and "audit" runs the full workflow instead of landing on
// a single agent.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		{Keywords: []string{"dependency", "audit"}, MatchAll: true, Workflow: WorkflowDependencyAudit},
		{Keywords: []string{"plan", "breakdown"}, Agent: models.AgentPlanning},
		{Keywords: []string{"github", "issue", "pr"}, Agent: models.AgentGitHub},
		{Keywords: []string{"jira", "ticket", "sprint"}, Agent: models.AgentJira},
		{Keywords: []string{"code", "test", "run"}, Agent: models.AgentCoding},
	}
}

// Classification is the outcome of routing one request.
type Classification struct {
	// Agent is the selected agent for single-agent routes.
	Agent models.AgentName
	// Workflow is the selected workflow name, empty for single-agent
	// routes.
	Workflow string
	// Confidence is how confident the selection is (0.0-1.0). Low
	// confidence means the request hit the default route.
	Confidence float64
	// Reason explains why this route was selected.
	Reason string
	// MatchedKeywords are the keywords that triggered the selection.
	MatchedKeywords []string
}

// IsWorkflow reports whether the classification selected a workflow.
func (c Classification) IsWorkflow() bool {
	return c.Workflow != ""
}

// Classify matches the request against the table in order and returns
// the first hit. No match falls back to the general agent; ambiguity is
// never an error.
func (t RouteTable) Classify(request string) Classification {
	lower := strings.ToLower(request)

	for _, route := range t {
		matched := matchKeywords(lower, route.Keywords, route.MatchAll)
		if len(matched) == 0 {
			continue
		}

		if route.Workflow != "" {
			return Classification{
				Workflow:        route.Workflow,
				Confidence:      0.90,
				Reason:          "matched workflow trigger",
				MatchedKeywords: matched,
			}
		}
		return Classification{
			Agent:           route.Agent,
			Confidence:      0.80,
			Reason:          "matched agent keyword",
			MatchedKeywords: matched,
		}
	}

	return Classification{
		Agent:      models.AgentGeneral,
		Confidence: 0.60,
		Reason:     "no keyword match, defaulting to general agent",
	}
}

// matchKeywords returns the keywords found in text. A MatchAll route
// yields matches only when every keyword is present.
func matchKeywords(text string, keywords []string, matchAll bool) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	if matchAll && len(matched) != len(keywords) {
		return nil
	}
	return matched
}
