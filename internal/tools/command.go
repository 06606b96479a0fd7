package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/quartetops/quartet/pkg/models"
)

// CommandRunner executes shell commands. The default runs through
// sh -c; tests substitute a fake.
type CommandRunner interface {
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)
}

// maxCommandOutput bounds what a command can feed back into a result.
const maxCommandOutput = 64 * 1024

// CommandTool runs bounded shell commands in the workspace directory.
type CommandTool struct {
	workspace string
	runner    CommandRunner
	timeout   time.Duration
}

func NewCommandTool(workspace string, runner CommandRunner, timeout time.Duration) *CommandTool {
	return &CommandTool{workspace: workspace, runner: runner, timeout: timeout}
}

func (c *CommandTool) Name() string { return "command" }

func (c *CommandTool) Description() string {
	return "Execute a shell command in the workspace directory and return its combined output."
}

func (c *CommandTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute.",
			},
		},
		"required": []string{"command"},
	}
}

func (c *CommandTool) Execute(ctx context.Context, _ string, input json.RawMessage) models.ToolResult {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return models.Failf("command: invalid input: %v", err)
	}
	if strings.TrimSpace(args.Command) == "" {
		return models.Failf("command: empty command")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.runner.RunShell(runCtx, c.workspace, args.Command)
	text := strings.TrimSpace(string(output))
	if len(text) > maxCommandOutput {
		text = text[:maxCommandOutput] + "\n... (output truncated)"
	}
	if text == "" {
		text = "(no output)"
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return models.Failf("command timed out after %s\n%s", c.timeout, text)
	}
	if err != nil {
		return models.Failf("command failed: %v\n%s", err, text)
	}
	return models.Ok("command succeeded", map[string]any{
		"output": text,
	})
}
