package agent

import (
	"context"
)

// Message represents a message in the conversation.
type Message interface {
	// ToParam converts the message to a provider-specific parameter type.
	ToParam() any
}

// Response represents a response from the LLM.
type Response interface {
	// Content returns the content blocks from the response.
	Content() []ContentBlock
	// ToMessage converts the response to a Message for the conversation history.
	ToMessage() Message
}

// ContentBlock represents a content block in a response.
type ContentBlock interface {
	// AsText returns text content if this is a text block.
	AsText() (text string, ok bool)
	// AsToolUse returns tool use information if this is a tool use block.
	AsToolUse() (id, name string, input []byte, ok bool)
}

// ToolChoiceNone forbids tool calls for a request that still carries tool descriptors.
const ToolChoiceNone = "none"

// Request is a single call to the LLM.
type Request struct {
	Messages []Message
	Tools    []Tool
	// ToolChoice is empty to let the model decide, ToolChoiceNone to forbid tool
	// calls, or the name of a tool the model must call.
	ToolChoice string
}

// LLMClient is an interface for interacting with an LLM.
type LLMClient interface {
	// Call sends a request to the LLM and returns its response.
	Call(ctx context.Context, req Request) (Response, error)
	// NewUserMessage wraps user text as a Message.
	NewUserMessage(text string) Message
	// ConvertToolResults converts tool results to messages for the LLM.
	ConvertToolResults(results []ToolResult) ([]Message, error)
}

// ToolClient is an interface for calling tools.
type ToolClient interface {
	// ListTools returns the available tools.
	ListTools(ctx context.Context) ([]Tool, error)
	// CallToolText calls a tool and returns the result as text.
	CallToolText(ctx context.Context, name string, args map[string]any) (result string, isError bool, err error)
}

// Tool represents an available tool.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolUse represents a tool use request from the LLM.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any

	inputErr error
}

// ToolResult represents the result of executing a tool.
type ToolResult struct {
	ID      string
	Content string
	IsError bool
}

// RunResult contains the result of running an agent.
type RunResult struct {
	// FinalText is the final text response from the agent.
	FinalText string
	// FullConversation is the complete conversation history including tool calls and results.
	FullConversation []Message
	// ToolsUsed lists the distinct tools invoked, in first-use order.
	ToolsUsed []string
	// ToolRounds is the number of tool dispatch rounds executed.
	ToolRounds int
}
