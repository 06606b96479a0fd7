package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/quartetops/quartet/internal/tools"
)

// Messenger makes one model call. *Client satisfies it; tests substitute
// a fake.
type Messenger interface {
	Messages(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// Event is emitted during a unit run for streaming to the UI.
type Event struct {
	Type    string // "text", "tool_use", "tool_result", "done", "error"
	Content string
	Tool    string
	Input   json.RawMessage
}

// Result contains the outcome of a unit run.
type Result struct {
	Output     string
	TokensIn   int64
	TokensOut  int64
	ToolCalls  int
	Iterations int
}

// Unit is one specialized agent: a system prompt, a tool subset and the
// model call loop that drives them.
type Unit struct {
	name          string
	system        string
	messenger     Messenger
	model         anthropic.Model
	tracker       *TokenTracker
	tools         *tools.Registry
	maxIterations int
	onEvent       func(Event)
}

// UnitConfig contains configuration for creating a Unit.
type UnitConfig struct {
	Name         string
	SystemPrompt string
	Messenger    Messenger
	Model        anthropic.Model
	Tracker      *TokenTracker
	Tools        *tools.Registry
	// MaxIterations bounds API calls per run (0 means 25).
	MaxIterations int
}

// NewUnit creates an agent unit.
func NewUnit(cfg UnitConfig) *Unit {
	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = 25
	}
	reg := cfg.Tools
	if reg == nil {
		reg = tools.NewRegistry()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTokenTracker()
	}
	return &Unit{
		name:          cfg.Name,
		system:        cfg.SystemPrompt,
		messenger:     cfg.Messenger,
		model:         cfg.Model,
		tracker:       tracker,
		tools:         reg,
		maxIterations: maxIter,
	}
}

// Name returns the unit's agent name.
func (u *Unit) Name() string {
	return u.name
}

// SetEventHandler sets a callback for streaming events during execution.
func (u *Unit) SetEventHandler(fn func(Event)) {
	u.onEvent = fn
}

func (u *Unit) emit(event Event) {
	if u.onEvent != nil {
		u.onEvent(event)
	}
}

// toolDefinitions converts the unit's tool subset into API tool schemas.
func (u *Unit) toolDefinitions() []anthropic.ToolUnionParam {
	var defs []anthropic.ToolUnionParam
	for _, name := range u.tools.Names() {
		t := u.tools.Get(name)
		schema := t.Schema()
		props, _ := schema["properties"].(map[string]any)

		param := anthropic.ToolInputSchemaParam{Properties: props}
		if req, ok := schema["required"].([]string); ok {
			param.Required = req
		}

		defs = append(defs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: param,
			},
		})
	}
	return defs
}

// runTool executes one tool call on behalf of userID and renders the
// result for the model.
func (u *Unit) runTool(ctx context.Context, userID, name string, input json.RawMessage) (content string, isError bool) {
	t := u.tools.Get(name)
	if t == nil {
		return fmt.Sprintf("unknown tool %q", name), true
	}

	res := t.Execute(ctx, userID, input)
	content = res.Message
	if len(res.Data) > 0 {
		if data, err := json.Marshal(res.Data); err == nil {
			content += "\n" + string(data)
		}
	}
	if content == "" {
		content = "(no output)"
	}
	return content, !res.Success
}

// Run executes the tool-use loop: call the model, execute requested
// tools as userID, feed results back, until the model ends its turn or
// the iteration cap is hit.
func (u *Unit) Run(ctx context.Context, userID, input string) (*Result, error) {
	result := &Result{}
	toolDefs := u.toolDefinitions()

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
	}

	for result.Iterations < u.maxIterations {
		result.Iterations++

		params := anthropic.MessageNewParams{
			Model:     u.model,
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: u.system},
			},
			Messages: messages,
		}
		if len(toolDefs) > 0 {
			params.Tools = toolDefs
		}

		resp, err := u.messenger.Messages(ctx, params)
		if err != nil {
			u.emit(Event{Type: "error", Content: err.Error()})
			return result, fmt.Errorf("%s agent: API call failed: %w", u.name, err)
		}

		result.TokensIn += resp.Usage.InputTokens
		result.TokensOut += resp.Usage.OutputTokens
		u.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				u.emit(Event{Type: "text", Content: variant.Text})
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				result.ToolCalls++
				u.emit(Event{Type: "tool_use", Tool: variant.Name, Input: variant.Input})
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				content, isError := u.runTool(ctx, userID, variant.Name, variant.Input)
				u.emit(Event{Type: "tool_result", Tool: variant.Name, Content: truncateForDisplay(content)})

				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, content, isError))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			result.Output = textOutput
			u.emit(Event{Type: "done"})
			return result, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return result, fmt.Errorf("%s agent: max iterations (%d) reached", u.name, u.maxIterations)
}

func truncateForDisplay(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
