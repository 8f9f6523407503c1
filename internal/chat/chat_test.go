package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/dbagent/internal/agent"
	"github.com/malbeclabs/dbagent/internal/db/dbtest"
	"github.com/malbeclabs/dbagent/internal/mcp/client"
	"github.com/malbeclabs/dbagent/internal/mcp/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConversation struct {
	asks    []string
	answers []string
	askErr  error
	task    *agent.TaskRequest
	taskErr error
	cleared int
}

func (f *fakeConversation) Ask(_ context.Context, input string) (*agent.RunResult, error) {
	f.asks = append(f.asks, input)
	if f.askErr != nil {
		return nil, f.askErr
	}
	answer := "ok"
	if len(f.answers) > 0 {
		answer, f.answers = f.answers[0], f.answers[1:]
	}
	return &agent.RunResult{FinalText: answer}, nil
}

func (f *fakeConversation) AnalyzeTask(context.Context, string) (*agent.TaskRequest, error) {
	return f.task, f.taskErr
}

func (f *fakeConversation) Clear() { f.cleared++ }

func dbToolClient(t *testing.T) agent.ToolClient {
	t.Helper()

	srv, err := server.New(server.Config{Logger: testLogger(), DB: dbtest.New(t)})
	require.NoError(t, err)

	c, err := client.New(t.Context(), client.Config{
		Logger: testLogger(),
		NewTransport: func() mcp.Transport {
			serverTransport, clientTransport := mcp.NewInMemoryTransports()
			ss, err := srv.MCP().Connect(context.Background(), serverTransport, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = ss.Close() })
			return clientTransport
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return agent.NewMCPToolClient(c)
}

func runREPL(t *testing.T, conv Conversation, input string) string {
	t.Helper()

	var out bytes.Buffer
	r, err := New(Config{
		Logger:       testLogger(),
		Conversation: conv,
		Tools:        dbToolClient(t),
		In:           strings.NewReader(input),
		Out:          &out,
	})
	require.NoError(t, err)
	require.NoError(t, r.Run(t.Context()))
	return out.String()
}

func TestDBAgent_Chat_ConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	require.EqualError(t, cfg.Validate(), "logger is required")

	cfg = Config{Logger: testLogger(), Conversation: &fakeConversation{}, Tools: &agent.MultiToolClient{}}
	require.EqualError(t, cfg.Validate(), "input is required")

	cfg.In = strings.NewReader("")
	cfg.Out = io.Discard
	require.NoError(t, cfg.Validate())
	require.Equal(t, defaultPrompt, cfg.Prompt)
}

func TestDBAgent_Chat_REPL(t *testing.T) {
	t.Parallel()

	t.Run("exit stops the loop", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{}
		out := runREPL(t, conv, "EXIT\nwhat is left?\n")
		require.Contains(t, out, "Goodbye!")
		require.Empty(t, conv.asks)
	})

	t.Run("end of input stops the loop", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{answers: []string{"Paris."}}
		out := runREPL(t, conv, "capital of France?")
		require.Equal(t, []string{"capital of France?"}, conv.asks)
		require.Contains(t, out, "Assistant: Paris.")
	})

	t.Run("questions go to the agent", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{answers: []string{"two tables", "four orders"}}
		out := runREPL(t, conv, "list all tables\n\nhow many orders?\nquit\n")
		require.Equal(t, []string{"list all tables", "how many orders?"}, conv.asks)
		require.Contains(t, out, "Assistant: two tables")
		require.Contains(t, out, "Assistant: four orders")
	})

	t.Run("errors are printed and the loop continues", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{askErr: errors.New("llm request failed: 529")}
		out := runREPL(t, conv, "hello\nagain\nexit\n")
		require.Equal(t, 2, strings.Count(out, "Error: llm request failed: 529"))
		require.Contains(t, out, "Goodbye!")
	})

	t.Run("clear resets the conversation", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{}
		out := runREPL(t, conv, "clear\nexit\n")
		require.Equal(t, 1, conv.cleared)
		require.Contains(t, out, "Conversation cleared.")
	})

	t.Run("help lists commands", func(t *testing.T) {
		t.Parallel()

		out := runREPL(t, &fakeConversation{}, "help\nexit\n")
		require.Contains(t, out, `\sql <query>`)
	})
}

func TestDBAgent_Chat_Task(t *testing.T) {
	t.Parallel()

	task := &agent.TaskRequest{TaskType: "report", Description: "Summarize orders by status"}

	t.Run("proceed executes the task", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{task: task, answers: []string{"shipped: 2"}}
		out := runREPL(t, conv, "task\norders by status\ny\nexit\n")
		require.Contains(t, out, "Describe your task: ")
		require.Contains(t, out, "Type:        report")
		require.Contains(t, out, "Priority:    low")
		require.Contains(t, out, "(y/n)")
		require.Equal(t, []string{"Execute the following task: Summarize orders by status"}, conv.asks)
		require.Contains(t, out, "Assistant: shipped: 2")
	})

	t.Run("decline skips execution", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{task: task}
		out := runREPL(t, conv, "task\norders by status\nn\nexit\n")
		require.Empty(t, conv.asks)
		require.Contains(t, out, "Task skipped.")
	})

	t.Run("analysis failure", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{taskErr: agent.ErrNoTask}
		out := runREPL(t, conv, "task\nsomething\nexit\n")
		require.Contains(t, out, "Error: model did not record a task")
	})
}

func TestDBAgent_Chat_DirectCommands(t *testing.T) {
	t.Parallel()

	t.Run("tables", func(t *testing.T) {
		t.Parallel()

		out := runREPL(t, &fakeConversation{}, "\\tables\nexit\n")
		require.Contains(t, out, "customers\norders\n")
	})

	t.Run("describe", func(t *testing.T) {
		t.Parallel()

		out := runREPL(t, &fakeConversation{}, "\\describe customers\n\\describe\nexit\n")
		require.Contains(t, out, "Nullable")
		require.Contains(t, out, "tier")
		require.Contains(t, out, "'standard'")
		require.Contains(t, out, `Error: usage: \describe <table>`)
	})

	t.Run("select renders a table", func(t *testing.T) {
		t.Parallel()

		out := runREPL(t, &fakeConversation{}, "\\sql SELECT id, name, email FROM customers ORDER BY id\nexit\n")
		require.Contains(t, out, "Ada Lovelace")
		require.Contains(t, out, "NULL")
		require.Contains(t, out, "(3 row(s))")
		require.Contains(t, out, "| 1 ")
	})

	t.Run("update reports affected rows", func(t *testing.T) {
		t.Parallel()

		out := runREPL(t, &fakeConversation{}, "\\sql UPDATE customers SET tier = 'gold'\nexit\n")
		require.Contains(t, out, "OK, 3 row(s) affected.")
	})

	t.Run("sql errors are printed", func(t *testing.T) {
		t.Parallel()

		conv := &fakeConversation{}
		out := runREPL(t, conv, "\\sql SELECT * FROM invoices\nexit\n")
		require.Contains(t, out, "Error: ")
		require.Contains(t, out, "invoices")
		require.Empty(t, conv.asks)
	})
}

func TestDBAgent_Chat_FormatValue(t *testing.T) {
	t.Parallel()

	require.Equal(t, "NULL", formatValue(nil))
	require.Equal(t, "42", formatValue(float64(42)))
	require.Equal(t, "120.5", formatValue(120.5))
	require.Equal(t, "true", formatValue(true))
	require.Equal(t, `{"a":1}`, formatValue(map[string]any{"a": 1}))
	require.Equal(t, "", formatDefault(nil))
	require.Equal(t, "YES", yesNo(true))
}
