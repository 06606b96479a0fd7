package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileWriteReadList(t *testing.T) {
	ws := t.TempDir()
	tool := NewFileTool(ws)

	res := tool.Execute(t.Context(), "alice", rawInput(t, map[string]any{
		"action":  "write",
		"path":    "notes/todo.md",
		"content": "audit deps",
	}))
	if !res.Success {
		t.Fatalf("write failed: %s", res.Message)
	}

	res = tool.Execute(t.Context(), "alice", rawInput(t, map[string]any{
		"action": "read",
		"path":   "notes/todo.md",
	}))
	if !res.Success {
		t.Fatalf("read failed: %s", res.Message)
	}
	if res.Data["content"] != "audit deps" {
		t.Errorf("content = %v", res.Data["content"])
	}

	res = tool.Execute(t.Context(), "alice", rawInput(t, map[string]any{
		"action": "list",
		"path":   "notes",
	}))
	if !res.Success {
		t.Fatalf("list failed: %s", res.Message)
	}
	entries, _ := res.Data["entries"].([]string)
	if len(entries) != 1 || entries[0] != "todo.md" {
		t.Errorf("entries = %v", entries)
	}
}

func TestFileRejectsWorkspaceEscape(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(filepath.Dir(ws), "outside.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := NewFileTool(ws)

	res := tool.Execute(t.Context(), "alice", rawInput(t, map[string]any{
		"action": "read",
		"path":   "../outside.txt",
	}))
	if res.Success {
		t.Fatal("read escaped the workspace")
	}
}

func TestFileReadMissing(t *testing.T) {
	tool := NewFileTool(t.TempDir())
	res := tool.Execute(t.Context(), "alice", rawInput(t, map[string]any{
		"action": "read",
		"path":   "nope.txt",
	}))
	if res.Success {
		t.Fatal("reading a missing file succeeded")
	}
	if !strings.Contains(res.Message, "does not exist") {
		t.Errorf("message = %q", res.Message)
	}
}
