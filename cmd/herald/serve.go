package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/m-mizutani/herald"
	"github.com/m-mizutani/herald/audit"
	"github.com/m-mizutani/herald/llm/claude"
	"github.com/m-mizutani/herald/llm/gemini"
	"github.com/m-mizutani/herald/llm/openai"
	"github.com/m-mizutani/herald/tools/gcal"
	"github.com/m-mizutani/herald/tools/websearch"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the command pipeline HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("HERALD_ADDR"),
				Usage:   "Server listen address",
			},
			&cli.StringFlag{
				Name:    "llm-provider",
				Value:   "claude",
				Sources: cli.EnvVars("HERALD_LLM_PROVIDER"),
				Usage:   "LLM provider: claude, openai or gemini",
			},
			&cli.StringFlag{
				Name:    "llm-model",
				Sources: cli.EnvVars("HERALD_LLM_MODEL"),
				Usage:   "Override the provider's default model",
			},
			&cli.StringFlag{
				Name:    "anthropic-api-key",
				Sources: cli.EnvVars("ANTHROPIC_API_KEY"),
				Usage:   "API key for the claude provider",
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Sources: cli.EnvVars("OPENAI_API_KEY"),
				Usage:   "API key for the openai provider",
			},
			&cli.StringFlag{
				Name:    "gemini-project",
				Sources: cli.EnvVars("HERALD_GEMINI_PROJECT"),
				Usage:   "Google Cloud project for the gemini provider",
			},
			&cli.StringFlag{
				Name:    "gemini-location",
				Value:   "us-central1",
				Sources: cli.EnvVars("HERALD_GEMINI_LOCATION"),
				Usage:   "Google Cloud location for the gemini provider",
			},
			&cli.BoolFlag{
				Name:    "google-calendar",
				Sources: cli.EnvVars("HERALD_GOOGLE_CALENDAR"),
				Usage:   "Register Google Calendar tools (uses application default credentials)",
			},
			&cli.StringFlag{
				Name:    "brave-api-key",
				Sources: cli.EnvVars("BRAVE_SEARCH_API_KEY"),
				Usage:   "Register the web search tool with this Brave Search API key",
			},
			&cli.StringFlag{
				Name:    "mcp-stdio",
				Sources: cli.EnvVars("HERALD_MCP_STDIO"),
				Usage:   "Path of a local MCP server executable to register",
			},
			&cli.StringFlag{
				Name:    "mcp-sse",
				Sources: cli.EnvVars("HERALD_MCP_SSE"),
				Usage:   "URL of a remote MCP server to register",
			},
			&cli.StringFlag{
				Name:    "audit-db",
				Sources: cli.EnvVars("HERALD_AUDIT_DB"),
				Usage:   "SQLite file for the audit trail (disabled when empty)",
			},
			&cli.DurationFlag{
				Name:    "plan-ttl",
				Value:   herald.DefaultPlanTTL,
				Sources: cli.EnvVars("HERALD_PLAN_TTL"),
				Usage:   "How long unconfirmed or unreconciled plans are kept",
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Sources: cli.EnvVars("HERALD_LOG_JSON"),
				Usage:   "Emit logs as JSON",
			},
		},
		Action: runServe,
	}
}

func newLogger(jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newLLMClient(ctx context.Context, cmd *cli.Command) (herald.LLMClient, error) {
	model := cmd.String("llm-model")

	switch provider := cmd.String("llm-provider"); provider {
	case "claude":
		apiKey := cmd.String("anthropic-api-key")
		if apiKey == "" {
			return nil, fmt.Errorf("--anthropic-api-key is required for the claude provider")
		}
		var opts []claude.Option
		if model != "" {
			opts = append(opts, claude.WithModel(model))
		}
		return claude.New(ctx, apiKey, opts...)

	case "openai":
		apiKey := cmd.String("openai-api-key")
		if apiKey == "" {
			return nil, fmt.Errorf("--openai-api-key is required for the openai provider")
		}
		var opts []openai.Option
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		return openai.New(ctx, apiKey, opts...)

	case "gemini":
		project := cmd.String("gemini-project")
		if project == "" {
			return nil, fmt.Errorf("--gemini-project is required for the gemini provider")
		}
		var opts []gemini.Option
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		return gemini.New(ctx, project, cmd.String("gemini-location"), opts...)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", provider)
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("log-json"))
	slog.SetDefault(logger)

	llmClient, err := newLLMClient(ctx, cmd)
	if err != nil {
		return err
	}

	registryOptions := []herald.RegistryOption{
		herald.WithTools(deviceCatalog()...),
	}

	if cmd.Bool("google-calendar") {
		calendarSvc, err := gcal.New(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize Google Calendar tools: %w", err)
		}
		registryOptions = append(registryOptions, herald.WithTools(calendarSvc.Tools()...))
	}

	if apiKey := cmd.String("brave-api-key"); apiKey != "" {
		search, err := websearch.New(apiKey)
		if err != nil {
			return fmt.Errorf("failed to initialize web search tool: %w", err)
		}
		registryOptions = append(registryOptions, herald.WithTools(search.Tool()))
	}

	if path := cmd.String("mcp-stdio"); path != "" {
		mcpClient, err := herald.NewMCPStdio(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("failed to connect to MCP server %s: %w", path, err)
		}
		defer mcpClient.Close()
		registryOptions = append(registryOptions, herald.WithToolSets(mcpClient))
	}
	if baseURL := cmd.String("mcp-sse"); baseURL != "" {
		mcpClient, err := herald.NewMCPSSE(ctx, baseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to MCP server %s: %w", baseURL, err)
		}
		defer mcpClient.Close()
		registryOptions = append(registryOptions, herald.WithToolSets(mcpClient))
	}

	registry, err := herald.NewRegistry(ctx, registryOptions...)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}
	logger.Info("tool registry ready", slog.Int("tools", registry.Len()))

	store := herald.NewMemoryPlanStore(herald.WithPlanTTL(cmd.Duration("plan-ttl")))
	defer store.Close()

	pipelineOptions := []herald.Option{
		herald.WithLogger(logger),
		herald.WithPolicyRules(herald.DefaultPolicyRules()...),
	}

	if auditPath := cmd.String("audit-db"); auditPath != "" {
		auditLogger, err := audit.Open(auditPath)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer auditLogger.Close()
		pipelineOptions = append(pipelineOptions,
			herald.WithStepHook(auditLogger.StepHook()),
			herald.WithDeviceResultHook(auditLogger.DeviceResultHook()),
		)
	}

	pipeline := herald.New(llmClient, registry, store, plannerRules(), pipelineOptions...)

	s := newServer(
		withAddr(cmd.String("addr")),
		withPipeline(pipeline),
	)
	return s.start(ctx)
}

// plannerRules are the domain instructions folded into the system prompt.
func plannerRules() []herald.PlannerOption {
	return []herald.PlannerOption{
		herald.WithPlannerRules(
			"Prefer google_calendar tools when the user's Google account is linked; fall back to ios_eventkit otherwise.",
			"Reminders and alarms belong to ios_reminders, not the calendar.",
			"Never fabricate event IDs: list events first when the user refers to an existing event by name.",
		),
	}
}
