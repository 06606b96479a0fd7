package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/quartetops/quartet/internal/auth"
	"github.com/quartetops/quartet/pkg/models"
)

// GitHubTool exposes GitHub issue, pull-request and repository operations.
// Every call authenticates as the requesting user.
type GitHubTool struct {
	store *auth.Store
	// apiBase overrides the REST base for GitHub Enterprise and tests.
	apiBase string
}

func NewGitHubTool(store *auth.Store, apiBase string) *GitHubTool {
	return &GitHubTool{store: store, apiBase: apiBase}
}

func (g *GitHubTool) Name() string { return "github" }

func (g *GitHubTool) Description() string {
	return "Interact with GitHub: list and create issues, inspect repositories, list pull requests, comment on issues and PRs."
}

func (g *GitHubTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"list_issues", "create_issue", "get_repo", "list_prs", "comment",
				},
				"description": "The GitHub operation to perform.",
			},
			"owner": map[string]any{
				"type":        "string",
				"description": "Repository owner (user or organization).",
			},
			"repo": map[string]any{
				"type":        "string",
				"description": "Repository name.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Issue title (create_issue).",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Issue or comment body.",
			},
			"number": map[string]any{
				"type":        "integer",
				"description": "Issue or pull request number (comment).",
			},
			"state": map[string]any{
				"type":        "string",
				"description": "Filter: open, closed or all (list actions, default open).",
			},
		},
		"required": []string{"action", "owner", "repo"},
	}
}

type githubArgs struct {
	Action string `json:"action"`
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Number int    `json:"number"`
	State  string `json:"state"`
}

func (g *GitHubTool) client(cred *models.UserCredential) (*github.Client, error) {
	client := github.NewClient(nil).WithAuthToken(cred.AccessToken)
	if g.apiBase != "" {
		return client.WithEnterpriseURLs(g.apiBase, g.apiBase)
	}
	return client, nil
}

func (g *GitHubTool) Execute(ctx context.Context, userID string, input json.RawMessage) models.ToolResult {
	var args githubArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return models.Failf("github: invalid input: %v", err)
	}
	if args.Owner == "" || args.Repo == "" {
		return models.Failf("github: owner and repo are required")
	}

	cred, fail := credentialFor(ctx, g.store, models.ProviderGitHub, userID)
	if fail != nil {
		return *fail
	}
	client, err := g.client(cred)
	if err != nil {
		return models.Failf("github: configure client: %v", err)
	}

	switch args.Action {
	case "list_issues":
		return g.listIssues(ctx, client, userID, args)
	case "create_issue":
		return g.createIssue(ctx, client, userID, args)
	case "get_repo":
		return g.getRepo(ctx, client, userID, args)
	case "list_prs":
		return g.listPRs(ctx, client, userID, args)
	case "comment":
		return g.comment(ctx, client, userID, args)
	default:
		return models.Failf("github: unknown action %q", args.Action)
	}
}

// fail maps an API error to a result, invalidating the credential on
// auth rejections.
func (g *GitHubTool) fail(userID string, resp *github.Response, err error, action string) models.ToolResult {
	if resp != nil {
		return apiFailure(g.store, models.ProviderGitHub, userID, resp.StatusCode, action)
	}
	return models.Failf("%s: %v", action, err)
}

func (g *GitHubTool) listIssues(ctx context.Context, client *github.Client, userID string, args githubArgs) models.ToolResult {
	state := args.State
	if state == "" {
		state = "open"
	}
	issues, resp, err := client.Issues.ListByRepo(ctx, args.Owner, args.Repo, &github.IssueListByRepoOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return g.fail(userID, resp, err, fmt.Sprintf("list issues in %s/%s", args.Owner, args.Repo))
	}

	list := make([]map[string]any, 0, len(issues))
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		list = append(list, map[string]any{
			"number": is.GetNumber(),
			"title":  is.GetTitle(),
			"state":  is.GetState(),
			"url":    is.GetHTMLURL(),
		})
	}
	return models.Ok(fmt.Sprintf("%d %s issues in %s/%s", len(list), state, args.Owner, args.Repo), map[string]any{
		"issues": list,
	})
}

func (g *GitHubTool) createIssue(ctx context.Context, client *github.Client, userID string, args githubArgs) models.ToolResult {
	if args.Title == "" {
		return models.Failf("github: create_issue requires a title")
	}
	req := &github.IssueRequest{Title: github.Ptr(args.Title)}
	if args.Body != "" {
		req.Body = github.Ptr(args.Body)
	}
	issue, resp, err := client.Issues.Create(ctx, args.Owner, args.Repo, req)
	if err != nil {
		return g.fail(userID, resp, err, fmt.Sprintf("create issue in %s/%s", args.Owner, args.Repo))
	}
	return models.Ok(fmt.Sprintf("created issue #%d: %s", issue.GetNumber(), issue.GetHTMLURL()), map[string]any{
		"number": issue.GetNumber(),
		"url":    issue.GetHTMLURL(),
	})
}

func (g *GitHubTool) getRepo(ctx context.Context, client *github.Client, userID string, args githubArgs) models.ToolResult {
	repo, resp, err := client.Repositories.Get(ctx, args.Owner, args.Repo)
	if err != nil {
		return g.fail(userID, resp, err, fmt.Sprintf("get repository %s/%s", args.Owner, args.Repo))
	}
	return models.Ok(repo.GetFullName(), map[string]any{
		"full_name":      repo.GetFullName(),
		"description":    repo.GetDescription(),
		"default_branch": repo.GetDefaultBranch(),
		"open_issues":    repo.GetOpenIssuesCount(),
		"language":       repo.GetLanguage(),
		"url":            repo.GetHTMLURL(),
	})
}

func (g *GitHubTool) listPRs(ctx context.Context, client *github.Client, userID string, args githubArgs) models.ToolResult {
	state := args.State
	if state == "" {
		state = "open"
	}
	prs, resp, err := client.PullRequests.List(ctx, args.Owner, args.Repo, &github.PullRequestListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return g.fail(userID, resp, err, fmt.Sprintf("list pull requests in %s/%s", args.Owner, args.Repo))
	}

	list := make([]map[string]any, 0, len(prs))
	for _, pr := range prs {
		list = append(list, map[string]any{
			"number": pr.GetNumber(),
			"title":  pr.GetTitle(),
			"state":  pr.GetState(),
			"url":    pr.GetHTMLURL(),
		})
	}
	return models.Ok(fmt.Sprintf("%d %s pull requests in %s/%s", len(list), state, args.Owner, args.Repo), map[string]any{
		"pull_requests": list,
	})
}

func (g *GitHubTool) comment(ctx context.Context, client *github.Client, userID string, args githubArgs) models.ToolResult {
	if args.Number <= 0 {
		return models.Failf("github: comment requires an issue or PR number")
	}
	if strings.TrimSpace(args.Body) == "" {
		return models.Failf("github: comment requires a body")
	}
	c, resp, err := client.Issues.CreateComment(ctx, args.Owner, args.Repo, args.Number, &github.IssueComment{
		Body: github.Ptr(args.Body),
	})
	if err != nil {
		return g.fail(userID, resp, err, fmt.Sprintf("comment on %s/%s#%d", args.Owner, args.Repo, args.Number))
	}
	return models.Ok(fmt.Sprintf("commented on #%d", args.Number), map[string]any{
		"url": c.GetHTMLURL(),
	})
}
