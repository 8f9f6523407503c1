package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	defaultMaxToolRounds    = 1
	defaultMaxToolResultLen = 20000
)

var (
	ErrLLMRequest  = errors.New("llm request failed")
	ErrUnknownTool = errors.New("unknown tool")
)

// State is a step of a single user turn.
type State int

const (
	StateAwaitingResponse State = iota
	StateToolDispatch
	StateFinalResponse
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateFinalResponse:
		return "final_response"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	Logger *slog.Logger
	LLM    LLMClient
	Tools  ToolClient

	// MaxToolRounds bounds the number of tool dispatch rounds in one turn.
	MaxToolRounds int
	// MaxToolResultLen caps the characters of a tool result sent to the LLM. Negative disables truncation.
	MaxToolResultLen int
	// FinalizationPrompt is sent once the tool rounds are exhausted.
	FinalizationPrompt string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("LLM is required")
	}
	if cfg.Tools == nil {
		return errors.New("tool client is required")
	}
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.MaxToolRounds < 0 {
		return errors.New("max tool rounds must be greater than 0")
	}
	if cfg.MaxToolResultLen == 0 {
		cfg.MaxToolResultLen = defaultMaxToolResultLen
	}
	if cfg.FinalizationPrompt == "" {
		cfg.FinalizationPrompt = FinalizationPrompt
	}
	return nil
}

// Agent runs one user turn at a time against an LLM and a set of tools.
type Agent struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// turn holds the mutable state of one Run.
type turn struct {
	state    State
	msgs     []Message
	tools    []Tool
	known    map[string]struct{}
	response Response
	rounds   int
	used     []string
	usedSet  map[string]struct{}
}

// Run executes one user turn. The LLM is asked for a response; tool calls in the
// response are dispatched sequentially in emission order and their results fed back,
// until the LLM answers with text or MaxToolRounds is exhausted.
func (a *Agent) Run(ctx context.Context, initialMessages []Message) (*RunResult, error) {
	tools, err := a.cfg.Tools.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	t := &turn{
		state:   StateAwaitingResponse,
		msgs:    append([]Message(nil), initialMessages...),
		tools:   tools,
		known:   make(map[string]struct{}, len(tools)),
		usedSet: make(map[string]struct{}),
	}
	for _, tool := range tools {
		t.known[tool.Name] = struct{}{}
	}

	for t.state != StateFinalResponse {
		a.log.Debug("agent: state", "state", t.state.String(), "rounds", t.rounds)

		switch t.state {
		case StateAwaitingResponse:
			if err := a.awaitResponse(ctx, t); err != nil {
				return nil, err
			}
		case StateToolDispatch:
			if err := a.dispatchTools(ctx, t); err != nil {
				return nil, err
			}
		}
	}

	finalText := responseText(t.response)
	a.log.Info("agent: final response", "rounds", t.rounds, "toolsUsed", len(t.used))

	return &RunResult{
		FinalText:        finalText,
		FullConversation: t.msgs,
		ToolsUsed:        t.used,
		ToolRounds:       t.rounds,
	}, nil
}

func (a *Agent) awaitResponse(ctx context.Context, t *turn) error {
	req := Request{Messages: t.msgs, Tools: t.tools}

	exhausted := t.rounds >= a.cfg.MaxToolRounds
	if exhausted {
		a.log.Info("agent: tool rounds exhausted, adding finalization prompt", "rounds", t.rounds)
		t.msgs = append(t.msgs, a.cfg.LLM.NewUserMessage(a.cfg.FinalizationPrompt))
		req.Messages = t.msgs
		req.ToolChoice = ToolChoiceNone
	}

	resp, err := a.cfg.LLM.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLLMRequest, err)
	}
	a.log.Debug("agent: received response", "round", t.rounds+1, "contentBlocks", len(resp.Content()))

	t.msgs = append(t.msgs, resp.ToMessage())
	t.response = resp

	if exhausted || len(extractToolUses(resp.Content())) == 0 {
		t.state = StateFinalResponse
		return nil
	}
	t.state = StateToolDispatch
	return nil
}

func (a *Agent) dispatchTools(ctx context.Context, t *turn) error {
	toolUses := extractToolUses(t.response.Content())
	t.rounds++
	a.log.Info("agent: dispatching tool calls", "round", t.rounds, "count", len(toolUses))

	results := make([]ToolResult, 0, len(toolUses))
	for _, tu := range toolUses {
		if _, ok := t.usedSet[tu.Name]; !ok {
			t.usedSet[tu.Name] = struct{}{}
			t.used = append(t.used, tu.Name)
		}
		results = append(results, a.callTool(ctx, t.known, tu))
	}

	resultMsgs, err := a.cfg.LLM.ConvertToolResults(results)
	if err != nil {
		return fmt.Errorf("failed to convert tool results: %w", err)
	}
	t.msgs = append(t.msgs, resultMsgs...)
	t.state = StateAwaitingResponse
	return nil
}

// callTool runs a single tool call. Every failure becomes an error result for the LLM.
func (a *Agent) callTool(ctx context.Context, known map[string]struct{}, tu ToolUse) ToolResult {
	if _, ok := known[tu.Name]; !ok {
		a.log.Warn("agent: model requested unknown tool", "name", tu.Name)
		return ToolResult{ID: tu.ID, Content: fmt.Sprintf("Error: %v: %s", ErrUnknownTool, tu.Name), IsError: true}
	}
	if tu.inputErr != nil {
		return ToolResult{ID: tu.ID, Content: fmt.Sprintf("Error: invalid tool input: %v", tu.inputErr), IsError: true}
	}

	a.log.Debug("agent: executing tool", "name", tu.Name, "id", tu.ID)
	out, isErr, err := a.cfg.Tools.CallToolText(ctx, tu.Name, tu.Input)
	if err != nil {
		a.log.Error("agent: tool execution error", "name", tu.Name, "error", err)
		return ToolResult{ID: tu.ID, Content: fmt.Sprintf("Error: %v", err), IsError: true}
	}

	if a.cfg.MaxToolResultLen > 0 && len(out) > a.cfg.MaxToolResultLen {
		originalLen := len(out)
		out = truncateToolResult(out, a.cfg.MaxToolResultLen)
		a.log.Warn("agent: truncated large tool result", "name", tu.Name, "originalLen", originalLen, "truncatedLen", len(out))
	}
	return ToolResult{ID: tu.ID, Content: out, IsError: isErr}
}

// extractToolUses extracts tool use requests from response content blocks.
func extractToolUses(content []ContentBlock) []ToolUse {
	var toolUses []ToolUse
	for _, blk := range content {
		id, name, inputBytes, ok := blk.AsToolUse()
		if !ok || id == "" || name == "" {
			continue
		}
		tu := ToolUse{ID: id, Name: name, Input: map[string]any{}}
		if len(inputBytes) > 0 {
			if err := json.Unmarshal(inputBytes, &tu.Input); err != nil {
				tu.inputErr = err
			}
		}
		if tu.Input == nil {
			tu.Input = map[string]any{}
		}
		toolUses = append(toolUses, tu)
	}
	return toolUses
}

func responseText(resp Response) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, blk := range resp.Content() {
		if text, ok := blk.AsText(); ok {
			sb.WriteString(text)
		}
	}
	return strings.TrimSpace(sb.String())
}
