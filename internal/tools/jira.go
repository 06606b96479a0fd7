package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quartetops/quartet/internal/auth"
	"github.com/quartetops/quartet/pkg/models"
)

// JiraTool exposes Jira issue operations over the Cloud REST v3 API. The
// request base comes from the auth provider: tenant-scoped once a cloud id
// has been resolved, the direct site otherwise.
type JiraTool struct {
	store  *auth.Store
	client *http.Client
}

func NewJiraTool(store *auth.Store, httpTimeout time.Duration) *JiraTool {
	return &JiraTool{
		store:  store,
		client: &http.Client{Timeout: httpTimeout},
	}
}

func (j *JiraTool) Name() string { return "jira" }

func (j *JiraTool) Description() string {
	return "Interact with Jira: get, create and search issues, comment, and transition issues between workflow states."
}

func (j *JiraTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"get_issue", "create_issue", "search", "comment", "transition",
				},
				"description": "The Jira operation to perform.",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Issue key, e.g. PROJ-123 (get_issue, comment, transition).",
			},
			"project": map[string]any{
				"type":        "string",
				"description": "Project key (create_issue).",
			},
			"summary": map[string]any{
				"type":        "string",
				"description": "Issue summary (create_issue).",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Issue description (create_issue).",
			},
			"issue_type": map[string]any{
				"type":        "string",
				"description": "Issue type name, default Task (create_issue).",
			},
			"jql": map[string]any{
				"type":        "string",
				"description": "JQL query (search).",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Comment body (comment).",
			},
			"status": map[string]any{
				"type":        "string",
				"description": "Target workflow state name, matched case-insensitively (transition).",
			},
		},
		"required": []string{"action"},
	}
}

type jiraArgs struct {
	Action      string `json:"action"`
	Key         string `json:"key"`
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	IssueType   string `json:"issue_type"`
	JQL         string `json:"jql"`
	Body        string `json:"body"`
	Status      string `json:"status"`
}

func (j *JiraTool) Execute(ctx context.Context, userID string, input json.RawMessage) models.ToolResult {
	var args jiraArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return models.Failf("jira: invalid input: %v", err)
	}

	cred, fail := credentialFor(ctx, j.store, models.ProviderJira, userID)
	if fail != nil {
		return *fail
	}
	provider, err := j.store.Provider(models.ProviderJira)
	if err != nil {
		return models.Failf("jira: %v", err)
	}
	base := provider.APIBase(cred)

	call := &jiraCall{tool: j, base: base, token: cred.AccessToken, userID: userID}
	switch args.Action {
	case "get_issue":
		return call.getIssue(ctx, args)
	case "create_issue":
		return call.createIssue(ctx, args)
	case "search":
		return call.search(ctx, args)
	case "comment":
		return call.comment(ctx, args)
	case "transition":
		return call.transition(ctx, args)
	default:
		return models.Failf("jira: unknown action %q", args.Action)
	}
}

// jiraCall carries the per-invocation request state.
type jiraCall struct {
	tool   *JiraTool
	base   string
	token  string
	userID string
}

// do issues one API request. A nil out discards the response body. The
// returned status is 0 when the request never reached the server.
func (c *jiraCall) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.tool.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("jira returned HTTP %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// fail maps a request failure to a tool result.
func (c *jiraCall) fail(status int, err error, action string) models.ToolResult {
	if status > 0 {
		return apiFailure(c.tool.store, models.ProviderJira, c.userID, status, action)
	}
	return models.Failf("%s: %v", action, err)
}

// adfDoc wraps plain text in the Atlassian document format rich-text
// fields require.
func adfDoc(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []map[string]any{
			{
				"type": "paragraph",
				"content": []map[string]any{
					{"type": "text", "text": text},
				},
			},
		},
	}
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
	} `json:"fields"`
}

func issueData(is jiraIssue) map[string]any {
	data := map[string]any{
		"key":     is.Key,
		"summary": is.Fields.Summary,
		"status":  is.Fields.Status.Name,
		"type":    is.Fields.IssueType.Name,
	}
	if is.Fields.Assignee != nil {
		data["assignee"] = is.Fields.Assignee.DisplayName
	}
	return data
}

func (c *jiraCall) getIssue(ctx context.Context, args jiraArgs) models.ToolResult {
	if args.Key == "" {
		return models.Failf("jira: get_issue requires an issue key")
	}
	var is jiraIssue
	status, err := c.do(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(args.Key), nil, &is)
	if err != nil {
		return c.fail(status, err, "get issue "+args.Key)
	}
	return models.Ok(fmt.Sprintf("%s: %s [%s]", is.Key, is.Fields.Summary, is.Fields.Status.Name), issueData(is))
}

func (c *jiraCall) createIssue(ctx context.Context, args jiraArgs) models.ToolResult {
	if args.Project == "" || args.Summary == "" {
		return models.Failf("jira: create_issue requires project and summary")
	}
	issueType := args.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	fields := map[string]any{
		"project":   map[string]any{"key": args.Project},
		"summary":   args.Summary,
		"issuetype": map[string]any{"name": issueType},
	}
	if args.Description != "" {
		fields["description"] = adfDoc(args.Description)
	}

	var created struct {
		Key string `json:"key"`
	}
	status, err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", map[string]any{"fields": fields}, &created)
	if err != nil {
		return c.fail(status, err, "create issue in "+args.Project)
	}
	return models.Ok("created "+created.Key, map[string]any{"key": created.Key})
}

func (c *jiraCall) search(ctx context.Context, args jiraArgs) models.ToolResult {
	if strings.TrimSpace(args.JQL) == "" {
		return models.Failf("jira: search requires a jql query")
	}
	var out struct {
		Issues []jiraIssue `json:"issues"`
	}
	path := "/rest/api/3/search/jql?maxResults=30&fields=summary,status,issuetype,assignee&jql=" + url.QueryEscape(args.JQL)
	status, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return c.fail(status, err, "search issues")
	}

	list := make([]map[string]any, 0, len(out.Issues))
	for _, is := range out.Issues {
		list = append(list, issueData(is))
	}
	return models.Ok(fmt.Sprintf("%d issues matched", len(list)), map[string]any{"issues": list})
}

func (c *jiraCall) comment(ctx context.Context, args jiraArgs) models.ToolResult {
	if args.Key == "" || strings.TrimSpace(args.Body) == "" {
		return models.Failf("jira: comment requires an issue key and a body")
	}
	path := "/rest/api/3/issue/" + url.PathEscape(args.Key) + "/comment"
	status, err := c.do(ctx, http.MethodPost, path, map[string]any{"body": adfDoc(args.Body)}, nil)
	if err != nil {
		return c.fail(status, err, "comment on "+args.Key)
	}
	return models.Ok("commented on "+args.Key, nil)
}

// transition moves an issue to a named workflow state. The legal
// transitions are fetched first and matched case-insensitively; on a
// mismatch the valid names are reported and no transition is issued.
func (c *jiraCall) transition(ctx context.Context, args jiraArgs) models.ToolResult {
	if args.Key == "" || strings.TrimSpace(args.Status) == "" {
		return models.Failf("jira: transition requires an issue key and a target status")
	}

	path := "/rest/api/3/issue/" + url.PathEscape(args.Key) + "/transitions"
	var out struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"transitions"`
	}
	status, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return c.fail(status, err, "list transitions for "+args.Key)
	}

	want := strings.ToLower(strings.TrimSpace(args.Status))
	var id, name string
	names := make([]string, 0, len(out.Transitions))
	for _, tr := range out.Transitions {
		names = append(names, tr.Name)
		if strings.ToLower(tr.Name) == want {
			id, name = tr.ID, tr.Name
		}
	}
	if id == "" {
		return models.Failf("jira: %q is not a legal transition for %s; valid transitions: %s",
			args.Status, args.Key, strings.Join(names, ", "))
	}

	body := map[string]any{"transition": map[string]any{"id": id}}
	status, err = c.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return c.fail(status, err, "transition "+args.Key)
	}
	return models.Ok(fmt.Sprintf("transitioned %s to %s", args.Key, name), map[string]any{
		"key":    args.Key,
		"status": name,
	})
}
