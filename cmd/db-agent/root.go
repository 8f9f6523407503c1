package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alitto/pond/v2"
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/dbagent/internal/agent"
	"github.com/malbeclabs/dbagent/internal/chat"
	"github.com/malbeclabs/dbagent/internal/logger"
	"github.com/malbeclabs/dbagent/internal/mcp/client"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1

	defaultServerCommand = "mcp-db-server"
	defaultMaxSteps      = 20
	defaultServerName    = "db"
)

type options struct {
	verbose          bool
	configPath       string
	dbURL            string
	serverCommand    string
	memory           bool
	maxSteps         int
	maxToolResultLen int
	model            string
}

func Run() ExitCode {
	_ = godotenv.Load()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "db-agent",
		Short:         "Ask questions about a SQL database through an LLM agent and MCP tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "set debug logging level")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to an MCP servers file (YAML or JSON with an mcpServers map)")
	flags.StringVar(&opts.dbURL, "db-url", "", "Database URL for a locally launched MCP server when no servers file is given (or set DB_URL env var)")
	flags.StringVar(&opts.serverCommand, "server-command", defaultServerCommand, "MCP server executable launched for --db-url")
	flags.BoolVar(&opts.memory, "memory", true, "keep conversation history between questions")
	flags.IntVar(&opts.maxSteps, "max-steps", defaultMaxSteps, "Maximum tool rounds per question")
	flags.IntVar(&opts.maxToolResultLen, "max-tool-result-len", 0, "Maximum characters of a tool result sent to the model (0 for default, negative disables)")
	flags.StringVar(&opts.model, "model", string(agent.DefaultModel), "Anthropic model")

	rootCmd.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newToolsCmd(opts),
		newVersionCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeError
	}

	return exitCodeSuccess
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New(opts.verbose)

			tools, closeClients, err := connectTools(ctx, log, opts)
			if err != nil {
				return err
			}
			defer closeClients()

			session, err := newSession(log, opts, tools)
			if err != nil {
				return err
			}

			repl, err := chat.New(chat.Config{
				Logger:       log,
				Conversation: session,
				Tools:        tools,
				In:           cmd.InOrStdin(),
				Out:          cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("failed to create chat: %w", err)
			}
			return repl.Run(ctx)
		},
	}
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New(opts.verbose)

			tools, closeClients, err := connectTools(ctx, log, opts)
			if err != nil {
				return err
			}
			defer closeClients()

			session, err := newSession(log, opts, tools)
			if err != nil {
				return err
			}

			result, err := session.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("failed to run agent: %w", err)
			}
			log.Debug("agent: completed", "tool_rounds", result.ToolRounds, "tools_used", result.ToolsUsed)
			fmt.Fprintln(cmd.OutOrStdout(), result.FinalText)
			return nil
		},
	}
}

func newToolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed by the configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.New(opts.verbose)

			tools, closeClients, err := connectTools(ctx, log, opts)
			if err != nil {
				return err
			}
			defer closeClients()

			list, err := tools.ListTools(ctx)
			if err != nil {
				return fmt.Errorf("failed to list tools: %w", err)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Tool", "Description"})
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, t := range list {
				table.Append([]string{t.Name, firstLine(t.Description)})
			}
			table.Render()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "db-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// serverConfigs resolves the MCP servers to connect to: the servers file when given,
// otherwise a single locally launched server for the database URL.
func serverConfigs(opts *options) ([]client.ServerConfig, error) {
	if opts.configPath != "" {
		return client.LoadServers(opts.configPath)
	}

	dbURL := opts.dbURL
	if dbURL == "" {
		dbURL = os.Getenv("DB_URL")
	}
	if dbURL == "" {
		return nil, errors.New("either --config or --db-url (DB_URL) is required")
	}
	// The URL travels through the environment so credentials stay out of the process list.
	return []client.ServerConfig{{
		Name:    defaultServerName,
		Command: opts.serverCommand,
		Env:     map[string]string{"DB_URL": dbURL},
	}}, nil
}

type connectResult struct {
	client *client.Client
	err    error
}

// connectTools connects to every configured server concurrently and merges their tools.
func connectTools(ctx context.Context, log *slog.Logger, opts *options) (agent.ToolClient, func(), error) {
	servers, err := serverConfigs(opts)
	if err != nil {
		return nil, nil, err
	}

	pool := pond.NewResultPool[connectResult](len(servers))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, srv := range servers {
		group.Submit(func() connectResult {
			c, err := client.New(ctx, srv.ClientConfig(log))
			if err != nil {
				return connectResult{err: fmt.Errorf("failed to connect to MCP server %s: %w", srv.Name, err)}
			}
			return connectResult{client: c}
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MCP servers: %w", err)
	}

	var clients []*client.Client
	closeAll := func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				log.Debug("mcp/client: failed to close", "server", c.Name(), "error", err)
			}
		}
	}

	var errs []error
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		clients = append(clients, res.client)
	}
	if len(errs) > 0 {
		closeAll()
		return nil, nil, errors.Join(errs...)
	}

	toolClients := make([]agent.ToolClient, 0, len(clients))
	for _, c := range clients {
		toolClients = append(toolClients, agent.NewMCPToolClient(c))
	}

	multi, err := agent.NewMultiToolClient(ctx, toolClients...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return multi, closeAll, nil
}

func newSession(log *slog.Logger, opts *options, tools agent.ToolClient) (*agent.Session, error) {
	llm, err := agent.NewAnthropicLLM(agent.AnthropicConfig{
		APIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:  anthropic.Model(opts.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	a, err := agent.New(&agent.Config{
		Logger:           log,
		LLM:              llm,
		Tools:            tools,
		MaxToolRounds:    opts.maxSteps,
		MaxToolResultLen: opts.maxToolResultLen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return agent.NewSession(a, opts.memory), nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
