// Package chat implements the interactive terminal loop of the database agent.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/malbeclabs/dbagent/internal/agent"
)

const defaultPrompt = "You: "

// Conversation is the agent surface the REPL drives. *agent.Session implements it.
type Conversation interface {
	Ask(ctx context.Context, input string) (*agent.RunResult, error)
	AnalyzeTask(ctx context.Context, description string) (*agent.TaskRequest, error)
	Clear()
}

type Config struct {
	Logger       *slog.Logger
	Conversation Conversation
	Tools        agent.ToolClient
	In           io.Reader
	Out          io.Writer
	Prompt       string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Conversation == nil {
		return errors.New("conversation is required")
	}
	if c.Tools == nil {
		return errors.New("tool client is required")
	}
	if c.In == nil {
		return errors.New("input is required")
	}
	if c.Out == nil {
		return errors.New("output is required")
	}
	if c.Prompt == "" {
		c.Prompt = defaultPrompt
	}
	return nil
}

type REPL struct {
	log    *slog.Logger
	cfg    Config
	reader *bufio.Reader
	out    io.Writer
}

func New(cfg Config) (*REPL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &REPL{
		log:    cfg.Logger,
		cfg:    cfg,
		reader: bufio.NewReader(cfg.In),
		out:    cfg.Out,
	}, nil
}

// Run reads user input until exit, end of input or cancellation. Errors from a single
// input are printed and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Database agent chat. Ask a question, or type 'help' for commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.readLine(r.cfg.Prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		if line == "" {
			continue
		}

		done, err := r.handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(r.out, "Error: %v\n", err)
			continue
		}
		if done {
			return nil
		}
	}
}

func (r *REPL) handle(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		if arg == "" {
			fmt.Fprintln(r.out, "Goodbye!")
			return true, nil
		}
	case "help":
		if arg == "" {
			r.printHelp()
			return false, nil
		}
	case "clear":
		if arg == "" {
			r.cfg.Conversation.Clear()
			fmt.Fprintln(r.out, "Conversation cleared.")
			return false, nil
		}
	case "task":
		if arg == "" {
			return false, r.runTask(ctx)
		}
	case `\tables`:
		return false, r.listTables(ctx)
	case `\describe`:
		return false, r.describeTable(ctx, arg)
	case `\sql`:
		return false, r.runSQL(ctx, arg)
	}

	return false, r.ask(ctx, line)
}

func (r *REPL) ask(ctx context.Context, input string) error {
	res, err := r.cfg.Conversation.Ask(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\nAssistant: %s\n", res.FinalText)
	return nil
}

func (r *REPL) runTask(ctx context.Context) error {
	description, err := r.readLine("Describe your task: ")
	if err != nil {
		return fmt.Errorf("failed to read task: %w", err)
	}
	if description == "" {
		return errors.New("task description is empty")
	}

	task, err := r.cfg.Conversation.AnalyzeTask(ctx, description)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, "\nTask analysis:")
	fmt.Fprintf(r.out, "  Type:        %s\n", task.TaskType)
	fmt.Fprintf(r.out, "  Description: %s\n", task.Description)
	fmt.Fprintf(r.out, "  Priority:    %s\n", task.PriorityOrDefault())

	answer, err := r.readLine("\nDo you want to proceed with this task? (y/n) ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if strings.ToLower(answer) != "y" {
		fmt.Fprintln(r.out, "Task skipped.")
		return nil
	}
	return r.ask(ctx, agent.ExecuteTaskPrompt(task))
}

func (r *REPL) readLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, `Commands:
  <question>          ask the agent
  task                analyze a task, then optionally execute it
  clear               forget the conversation
  \tables             list tables
  \describe <table>   show the columns of a table
  \sql <query>        run SQL directly and show the result
  exit, quit          leave`)
}
