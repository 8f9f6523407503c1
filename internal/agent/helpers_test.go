package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMessage is a provider-neutral message used by mockLLM.
type mockMessage struct {
	role    string
	text    string
	uses    []mockToolCall
	results []ToolResult
}

func (m mockMessage) ToParam() any { return m }

type mockToolCall struct {
	id    string
	name  string
	input map[string]any
	raw   []byte
}

type mockResponse struct {
	text      string
	toolCalls []mockToolCall
	err       error
}

// mockLLM replays scripted responses and records every request.
type mockLLM struct {
	mu        sync.Mutex
	responses []mockResponse
	requests  []Request
}

func (m *mockLLM) Call(_ context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	if len(m.requests) > len(m.responses) {
		return nil, errors.New("unexpected llm call")
	}
	resp := m.responses[len(m.requests)-1]
	if resp.err != nil {
		return nil, resp.err
	}
	return &mockLLMResponse{text: resp.text, toolCalls: resp.toolCalls}, nil
}

func (m *mockLLM) NewUserMessage(text string) Message {
	return mockMessage{role: "user", text: text}
}

func (m *mockLLM) ConvertToolResults(results []ToolResult) ([]Message, error) {
	return []Message{mockMessage{role: "user", results: results}}, nil
}

func (m *mockLLM) calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

type mockLLMResponse struct {
	text      string
	toolCalls []mockToolCall
}

func (r *mockLLMResponse) Content() []ContentBlock {
	var blocks []ContentBlock
	if r.text != "" {
		blocks = append(blocks, &mockTextBlock{text: r.text})
	}
	for _, tc := range r.toolCalls {
		blocks = append(blocks, &mockToolUseBlock{call: tc})
	}
	return blocks
}

func (r *mockLLMResponse) ToMessage() Message {
	return mockMessage{role: "assistant", text: r.text, uses: r.toolCalls}
}

type mockTextBlock struct {
	text string
}

func (b *mockTextBlock) AsText() (string, bool) { return b.text, true }

func (b *mockTextBlock) AsToolUse() (string, string, []byte, bool) { return "", "", nil, false }

type mockToolUseBlock struct {
	call mockToolCall
}

func (b *mockToolUseBlock) AsText() (string, bool) { return "", false }

func (b *mockToolUseBlock) AsToolUse() (string, string, []byte, bool) {
	if b.call.raw != nil {
		return b.call.id, b.call.name, b.call.raw, true
	}
	inputBytes, _ := json.Marshal(b.call.input)
	return b.call.id, b.call.name, inputBytes, true
}

type toolCallRecord struct {
	name string
	args map[string]any
}

// mockToolClient serves a fixed tool set and records calls in order.
type mockToolClient struct {
	mu       sync.Mutex
	tools    []Tool
	listErr  error
	callFunc func(name string, args map[string]any) (string, bool, error)
	calls    []toolCallRecord
}

func (m *mockToolClient) ListTools(context.Context) ([]Tool, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tools, nil
}

func (m *mockToolClient) CallToolText(_ context.Context, name string, args map[string]any) (string, bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, toolCallRecord{name: name, args: args})
	m.mu.Unlock()
	if m.callFunc == nil {
		return "ok", false, nil
	}
	return m.callFunc(name, args)
}

func (m *mockToolClient) callNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		names = append(names, c.name)
	}
	return names
}

func dbTools() []Tool {
	return []Tool{
		{Name: "list_tables", Description: "List tables", InputSchema: map[string]any{"type": "object"}},
		{Name: "describe_table", Description: "Describe a table", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"table_name": map[string]any{"type": "string"}},
			"required":   []any{"table_name"},
		}},
		{Name: "run_sql", Description: "Run SQL", InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"sql_query": map[string]any{"type": "string"}},
			"required":   []any{"sql_query"},
		}},
	}
}

func lastResults(req Request) []ToolResult {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if m, ok := req.Messages[i].(mockMessage); ok && len(m.results) > 0 {
			return m.results
		}
	}
	return nil
}

func mustJSON(t interface{ Fatalf(string, ...any) }, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}
