package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"venturedesk/internal/adapter/embedding"
	"venturedesk/internal/adapter/gateway"
	"venturedesk/internal/adapter/llm"
	"venturedesk/internal/adapter/tool"
	"venturedesk/internal/adapter/vectorstore"
	"venturedesk/internal/domain"
	"venturedesk/internal/infra/config"
	"venturedesk/internal/infra/logger"
	"venturedesk/internal/infra/tracer"
	"venturedesk/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`venturedesk - business advisor agent runtime for startup founders

USAGE:
    venturedesk [FLAGS]

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: VENTUREDESK_* variables override config
    Secrets:     values with an "enc:" prefix are decrypted with
                 VENTUREDESK_CONFIG_KEY

API:
    POST /v1/ask     {"query": "...", "domain": "...", "company_context": {...}}
    GET  /v1/domains
    GET  /healthz`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("VENTUREDESK_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. LLM providers and generation gateway
	registry, err := llm.NewRegistryFromConfig(cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	generator := llm.NewGateway(cfg.LLM.Generation.AttemptTimeout, log)

	// 4. Embedding + knowledge base
	embedder := embedding.NewFromConfig(cfg.Embedding)

	if err := os.MkdirAll(cfg.Knowledge.DataDir, 0o755); err != nil {
		return fmt.Errorf("knowledge dir: %w", err)
	}
	store, err := vectorstore.New(filepath.Join(cfg.Knowledge.DataDir, "knowledge.db"), log)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	defer store.Close()
	for _, d := range domain.Domains {
		if err := store.CreateCollection(ctx, d, cfg.Embedding.Dimensions); err != nil {
			return fmt.Errorf("collection %s: %w", d, err)
		}
	}

	retriever := usecase.NewKnowledgeRetriever(embedder, store, log)

	// 5. Tools
	toolClient, err := initTools(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// 6. Agents and supervisor
	agents := usecase.NewAgentSet(usecase.AgentDeps{
		Retriever: retriever,
		Tools:     toolClient,
		Generator: generator,
		Providers: registry,
		Prompts:   usecase.NewPromptBuilder(cfg.Agents.PromptBudget),
		Settings: usecase.RetrievalSettings{
			TopK:             cfg.Knowledge.TopK,
			MinScore:         cfg.Knowledge.MinScore,
			MinUsefulResults: cfg.Knowledge.MinUsefulResults,
			SearchMaxResults: cfg.Tools.SearchMaxResults,
		},
		GenParams: domain.GenerationParams{
			MaxTokens:      cfg.LLM.Generation.MaxTokens,
			Temperature:    cfg.LLM.Generation.Temperature,
			AttemptTimeout: cfg.LLM.Generation.AttemptTimeout,
		},
		Logger: log,
	})

	var assist *usecase.LLMAssist
	if cfg.Router.LLMAssist {
		assist = usecase.NewLLMAssist(generator, registry, log)
	}
	supervisor := usecase.NewSupervisor(
		usecase.NewClassifier(cfg.Router.ConfidenceThreshold),
		assist, agents, cfg.Agents.RequestTimeout, log)

	// 7. HTTP transport
	var auth gateway.Authenticator
	if cfg.Gateway.Auth.Type == "static" {
		entries := make([]gateway.TokenEntry, 0, len(cfg.Gateway.Auth.Tokens))
		for _, tk := range cfg.Gateway.Auth.Tokens {
			entries = append(entries, gateway.TokenEntry{Token: tk.Token, Name: tk.Name})
		}
		auth = gateway.NewStaticTokenAuth(entries)
	}
	server := gateway.NewServer(supervisor, auth, gateway.Options{
		Addr:  cfg.Gateway.Addr,
		RPS:   cfg.Gateway.RateLimit.RPS,
		Burst: cfg.Gateway.RateLimit.Burst,
	}, log)

	// 8. Serve until signalled
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("venturedesk starting",
		"addr", cfg.Gateway.Addr,
		"providers", len(cfg.LLM.Providers),
		"embedding", cfg.Embedding.Model,
		"auth", cfg.Gateway.Auth.Type != "",
	)

	return server.Start(ctx)
}

// initTools builds the tool registry and dispatching client from config.
func initTools(ctx context.Context, cfg *config.Config, log *slog.Logger) (*tool.Client, error) {
	registry := tool.NewRegistry(log)
	tc := cfg.Tools

	searchBackend := tool.NewSearXNGBackend(tc.SearXNGURL, log)
	webSearch := domain.Tool(tool.NewWebSearchTool(searchBackend, tc.SearchCacheTTL, log))
	imageSearch := domain.Tool(tool.NewImageSearchTool(searchBackend, tc.SearchCacheTTL, log))
	if tc.SearchRateLimit > 0 {
		webSearch = tool.WithRateLimit(webSearch, tc.SearchRateLimit, time.Minute)
		imageSearch = tool.WithRateLimit(imageSearch, tc.SearchRateLimit, time.Minute)
	}
	if err := registry.Register(webSearch); err != nil {
		return nil, err
	}
	if err := registry.Register(imageSearch); err != nil {
		return nil, err
	}

	if err := registry.Register(tool.NewPatentSearchTool(tc.PatentAPIURL, tc.PatentAPIKey, log)); err != nil {
		return nil, err
	}

	var extractBackend tool.ExtractBackend = tool.NewHTTPExtractBackend(tc.ExtractMaxBodySize)
	if tc.Browser.Enabled {
		backend, err := tool.NewChromeDPExtractBackend(tc.Browser, log)
		if err != nil {
			log.Warn("browser backend unavailable, using plain HTTP extraction", "error", err)
		} else {
			extractBackend = backend
		}
	}
	if err := registry.Register(tool.NewExtractTool(extractBackend, log)); err != nil {
		return nil, err
	}

	if tc.MCP.Enabled && len(tc.MCP.Servers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, tc.MCP.Servers, log)
		if err != nil {
			log.Warn("mcp bridge unavailable, continuing without external tools", "error", err)
		} else {
			for _, t := range bridge.Tools() {
				if err := registry.Register(t); err != nil {
					log.Warn("mcp tool registration failed", "tool", t.Name(), "error", err)
				}
			}
		}
	}

	return tool.NewClient(registry, tc.MaxRetries, tc.ExecTimeout, log), nil
}
