package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quartetops/quartet/pkg/models"
)

// maxFileBytes bounds what the file tool will read back into a result.
const maxFileBytes = 256 * 1024

// FileTool reads, writes and lists files inside a single workspace
// directory. Paths are relative to the workspace; escaping it is rejected.
type FileTool struct {
	workspace string
}

func NewFileTool(workspace string) *FileTool {
	return &FileTool{workspace: workspace}
}

func (f *FileTool) Name() string { return "file" }

func (f *FileTool) Description() string {
	return "Read, write and list files in the workspace directory. Paths are relative to the workspace."
}

func (f *FileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list"},
				"description": "The file operation to perform.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace. For list, a directory (default workspace root).",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write (write).",
			},
		},
		"required": []string{"action"},
	}
}

type fileArgs struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// resolve joins a relative path onto the workspace, rejecting escapes.
func (f *FileTool) resolve(rel string) (string, error) {
	abs := filepath.Join(f.workspace, filepath.Clean("/"+rel))
	root := filepath.Clean(f.workspace)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return abs, nil
}

func (f *FileTool) Execute(_ context.Context, _ string, input json.RawMessage) models.ToolResult {
	var args fileArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return models.Failf("file: invalid input: %v", err)
	}

	switch args.Action {
	case "read":
		return f.read(args)
	case "write":
		return f.write(args)
	case "list":
		return f.list(args)
	default:
		return models.Failf("file: unknown action %q", args.Action)
	}
}

func (f *FileTool) read(args fileArgs) models.ToolResult {
	if args.Path == "" {
		return models.Failf("file: read requires a path")
	}
	abs, err := f.resolve(args.Path)
	if err != nil {
		return models.Failf("file: %v", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Failf("file: %s does not exist", args.Path)
		}
		return models.Failf("file: stat %s: %v", args.Path, err)
	}
	if info.Size() > maxFileBytes {
		return models.Failf("file: %s is %d bytes, larger than the %d byte limit", args.Path, info.Size(), maxFileBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return models.Failf("file: read %s: %v", args.Path, err)
	}
	return models.Ok(fmt.Sprintf("read %s (%d bytes)", args.Path, len(data)), map[string]any{
		"content": string(data),
	})
}

func (f *FileTool) write(args fileArgs) models.ToolResult {
	if args.Path == "" {
		return models.Failf("file: write requires a path")
	}
	abs, err := f.resolve(args.Path)
	if err != nil {
		return models.Failf("file: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return models.Failf("file: create directories for %s: %v", args.Path, err)
	}
	if err := os.WriteFile(abs, []byte(args.Content), 0o644); err != nil {
		return models.Failf("file: write %s: %v", args.Path, err)
	}
	return models.Ok(fmt.Sprintf("wrote %s (%d bytes)", args.Path, len(args.Content)), nil)
}

func (f *FileTool) list(args fileArgs) models.ToolResult {
	abs, err := f.resolve(args.Path)
	if err != nil {
		return models.Failf("file: %v", err)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Failf("file: %s does not exist", args.Path)
		}
		return models.Failf("file: list %s: %v", args.Path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return models.Ok(fmt.Sprintf("%d entries", len(names)), map[string]any{
		"entries": names,
	})
}
