package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeAnthropic serves scripted Messages API responses and records request bodies.
type fakeAnthropic struct {
	mu        sync.Mutex
	responses []string
	status    int
	bodies    []map[string]any
}

func (f *fakeAnthropic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.bodies = append(f.bodies, body)

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
		return
	}
	_, _ = w.Write([]byte(f.responses[len(f.bodies)-1]))
}

func (f *fakeAnthropic) requests() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.bodies...)
}

func newFakeAnthropicLLM(t *testing.T, fake *fakeAnthropic) *AnthropicLLM {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	llm, err := NewAnthropicLLM(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return llm
}

const (
	toolUseResponse = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929",
		"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":"toolu_1","name":"list_tables","input":{}}],
		"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`
	textResponse = `{"id":"msg_2","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929",
		"content":[{"type":"text","text":"Tables: customers, orders."}],
		"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":20,"output_tokens":6}}`
)

func TestDBAgent_Agent_AnthropicConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := AnthropicConfig{}
	require.EqualError(t, cfg.Validate(), "anthropic api key is required")

	cfg = AnthropicConfig{APIKey: "k"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultModel, cfg.Model)
	require.EqualValues(t, defaultMaxTokens, cfg.MaxTokens)
	require.Equal(t, SystemPrompt, cfg.System)
}

func TestDBAgent_Agent_AnthropicRun(t *testing.T) {
	t.Parallel()

	fake := &fakeAnthropic{responses: []string{toolUseResponse, textResponse}}
	llm := newFakeAnthropicLLM(t, fake)
	tools := &mockToolClient{
		tools: dbTools(),
		callFunc: func(string, map[string]any) (string, bool, error) {
			return `{"tableList":["customers","orders"]}`, false, nil
		},
	}
	a := newTestAgent(t, llm, tools, 0)

	res, err := a.Run(t.Context(), []Message{llm.NewUserMessage("list all tables")})
	require.NoError(t, err)
	require.Equal(t, "Tables: customers, orders.", res.FinalText)
	require.Equal(t, []string{"list_tables"}, tools.callNames())

	reqs := fake.requests()
	require.Len(t, reqs, 2)

	first := reqs[0]
	require.Equal(t, string(DefaultModel), first["model"])
	tools0 := first["tools"].([]any)
	require.Len(t, tools0, 3)
	runSQL := tools0[2].(map[string]any)
	require.Equal(t, "run_sql", runSQL["name"])
	schema := runSQL["input_schema"].(map[string]any)
	require.Equal(t, []any{"sql_query"}, schema["required"])
	require.NotContains(t, first, "tool_choice")

	second := reqs[1]
	require.Equal(t, map[string]any{"type": "none"}, second["tool_choice"])
	msgs := second["messages"].([]any)
	// user, assistant, tool results, finalization prompt
	require.Len(t, msgs, 4)
	toolResultMsg := msgs[2].(map[string]any)
	require.Equal(t, "user", toolResultMsg["role"])
	block := toolResultMsg["content"].([]any)[0].(map[string]any)
	require.Equal(t, "tool_result", block["type"])
	require.Equal(t, "toolu_1", block["tool_use_id"])
}

func TestDBAgent_Agent_AnthropicError(t *testing.T) {
	t.Parallel()

	fake := &fakeAnthropic{status: http.StatusInternalServerError}
	llm := newFakeAnthropicLLM(t, fake)
	a := newTestAgent(t, llm, &mockToolClient{tools: dbTools()}, 0)

	_, err := a.Run(t.Context(), []Message{llm.NewUserMessage("hi")})
	require.ErrorIs(t, err, ErrLLMRequest)
	require.Len(t, fake.requests(), 1)
}

func TestDBAgent_Agent_AnthropicForcedTool(t *testing.T) {
	t.Parallel()

	fake := &fakeAnthropic{responses: []string{`{"id":"msg_3","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929",
		"content":[{"type":"tool_use","id":"toolu_9","name":"record_task","input":{"task_type":"report","description":"d","priority":"medium"}}],
		"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`}}
	llm := newFakeAnthropicLLM(t, fake)
	a := newTestAgent(t, llm, &mockToolClient{}, 0)

	task, msgs, err := a.AnalyzeTask(t.Context(), nil, "d")
	require.NoError(t, err)
	require.Equal(t, "medium", task.Priority)
	require.Len(t, msgs, 3)

	req := fake.requests()[0]
	require.Equal(t, map[string]any{"type": "tool", "name": "record_task"}, req["tool_choice"])
}

func TestDBAgent_Agent_RequiredFields(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, requiredFields([]any{"a", 1, "b"}))
	require.Equal(t, []string{"x"}, requiredFields([]string{"x"}))
	require.Nil(t, requiredFields(nil))
}
