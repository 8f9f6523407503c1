package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

const recordTaskTool = "record_task"

var ErrNoTask = errors.New("model did not record a task")

// TaskRequest is the structured analysis of a task description.
type TaskRequest struct {
	TaskType    string `json:"task_type,omitempty" jsonschema:"the type of task to perform"`
	Description string `json:"description,omitempty" jsonschema:"detailed description of the task"`
	Priority    string `json:"priority,omitempty" jsonschema:"priority level: low, medium or high"`
}

// PriorityOrDefault returns the priority, or "low" when none was given.
func (t TaskRequest) PriorityOrDefault() string {
	if t.Priority == "" {
		return "low"
	}
	return t.Priority
}

type taskSchema struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

func newTaskSchema() (*taskSchema, error) {
	schema, err := jsonschema.For[TaskRequest](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create task schema: %w", err)
	}
	priority := schema.Properties["priority"]
	priority.Enum = []any{"low", "medium", "high"}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve task schema: %w", err)
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task schema: %w", err)
	}
	var inputSchema map[string]any
	if err := json.Unmarshal(raw, &inputSchema); err != nil {
		return nil, fmt.Errorf("failed to decode task schema: %w", err)
	}

	return &taskSchema{
		tool: Tool{
			Name:        recordTaskTool,
			Description: "Record the structured analysis of a task.",
			InputSchema: inputSchema,
		},
		resolved: resolved,
	}, nil
}

// AnalyzeTask asks the model for a structured TaskRequest describing the given task.
// The model is forced to answer through a single schema-validated tool call.
func (a *Agent) AnalyzeTask(ctx context.Context, history []Message, description string) (*TaskRequest, []Message, error) {
	ts, err := newTaskSchema()
	if err != nil {
		return nil, nil, err
	}

	msgs := append(append([]Message(nil), history...), a.cfg.LLM.NewUserMessage(fmt.Sprintf(taskAnalysisPrompt, description)))
	resp, err := a.cfg.LLM.Call(ctx, Request{
		Messages:   msgs,
		Tools:      []Tool{ts.tool},
		ToolChoice: recordTaskTool,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLLMRequest, err)
	}
	msgs = append(msgs, resp.ToMessage())

	for _, tu := range extractToolUses(resp.Content()) {
		if tu.Name != recordTaskTool {
			continue
		}
		if tu.inputErr != nil {
			return nil, nil, fmt.Errorf("failed to decode task: %w", tu.inputErr)
		}
		if err := ts.resolved.Validate(tu.Input); err != nil {
			return nil, nil, fmt.Errorf("invalid task: %w", err)
		}

		raw, err := json.Marshal(tu.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode task: %w", err)
		}
		var task TaskRequest
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, nil, fmt.Errorf("failed to decode task: %w", err)
		}

		// The forced tool call needs a result before the conversation can continue.
		ack, err := a.cfg.LLM.ConvertToolResults([]ToolResult{{ID: tu.ID, Content: "Task recorded."}})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert tool results: %w", err)
		}
		msgs = append(msgs, ack...)

		a.log.Info("agent: task analyzed", "type", task.TaskType, "priority", task.PriorityOrDefault())
		return &task, msgs, nil
	}

	return nil, nil, ErrNoTask
}

// ExecuteTaskPrompt returns the user input that executes an analyzed task.
func ExecuteTaskPrompt(task *TaskRequest) string {
	return fmt.Sprintf(taskExecutePrompt, task.Description)
}
