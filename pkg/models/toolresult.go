package models

import "fmt"

// ToolResult is the uniform envelope returned by every tool operation.
// Data is empty on failure; Message is always human-readable.
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message"`
}

// Ok builds a successful result.
func Ok(message string, data map[string]any) ToolResult {
	return ToolResult{Success: true, Data: data, Message: message}
}

// Failf builds a failed result with a formatted message.
func Failf(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
