package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Tools     ToolsConfig     `yaml:"tools"`
	Agents    AgentsConfig    `yaml:"agents"`
	Router    RouterConfig    `yaml:"router"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// LLMConfig holds LLM provider settings. Order lists provider names in
// failover priority; it defaults to declaration order.
type LLMConfig struct {
	Providers      []ProviderConfig     `yaml:"providers"`
	Order          []string             `yaml:"order,omitempty"`
	Generation     GenerationConfig     `yaml:"generation"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "anthropic", "bedrock"
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"` // bedrock only
	ConnTimeout time.Duration `yaml:"conn_timeout,omitempty"`
	RespTimeout time.Duration `yaml:"resp_timeout,omitempty"`
	Pool        PoolConfig    `yaml:"pool,omitempty"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// GenerationConfig bounds gateway generation calls.
type GenerationConfig struct {
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// CircuitBreakerConfig holds per-provider circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai" or any OpenAI-compatible endpoint
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"` // 0 = no cache
}

// KnowledgeConfig holds vector store and retrieval settings.
type KnowledgeConfig struct {
	DataDir          string  `yaml:"data_dir"`
	TopK             int     `yaml:"top_k"`
	MinScore         float64 `yaml:"min_score"`
	MinUsefulResults int     `yaml:"min_useful_results"` // below this, agents augment with web search
}

// ToolsConfig holds external tool settings.
type ToolsConfig struct {
	SearXNGURL       string        `yaml:"searxng_url"`
	SearchMaxResults int           `yaml:"search_max_results"`
	SearchCacheTTL   time.Duration `yaml:"search_cache_ttl"`
	SearchRateLimit  int           `yaml:"search_rate_limit"` // calls per minute, 0 = unlimited

	PatentAPIURL string `yaml:"patent_api_url"`
	PatentAPIKey string `yaml:"patent_api_key,omitempty"`

	ExtractMaxBodySize int64         `yaml:"extract_max_body_size"`
	Browser            BrowserConfig `yaml:"browser"`

	MCP MCPConfig `yaml:"mcp"`

	ExecTimeout time.Duration `yaml:"exec_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// BrowserConfig holds the optional chromedp extraction backend settings.
type BrowserConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RemoteURL string        `yaml:"remote_url,omitempty"` // CDP endpoint; empty = launch local Chrome
	Headless  bool          `yaml:"headless"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MCPConfig holds Model Context Protocol bridge settings. Tools exposed by
// the configured servers register into the tool registry at startup.
type MCPConfig struct {
	Enabled bool              `yaml:"enabled"`
	Servers []MCPServerConfig `yaml:"servers,omitempty"`
}

// MCPServerConfig identifies one MCP server to bridge.
type MCPServerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"` // streamable HTTP endpoint
}

// AgentsConfig holds shared agent behavior settings.
type AgentsConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PromptBudget   int           `yaml:"prompt_budget"` // max prompt tokens before trimming
}

// RouterConfig holds classification settings. LLMAssist resolves
// low-confidence keyword classifications with a single model call.
type RouterConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	LLMAssist           bool    `yaml:"llm_assist"`
}

// GatewayConfig holds HTTP transport settings.
type GatewayConfig struct {
	Addr      string          `yaml:"addr"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig holds per-client request rate settings.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.venturedesk/data, falling back to "./data".
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".venturedesk", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Generation: GenerationConfig{
				MaxTokens:      2048,
				Temperature:    0.7,
				AttemptTimeout: 45 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     false,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  256,
		},
		Knowledge: KnowledgeConfig{
			DataDir:          filepath.Join(defaultDataDir(), "knowledge"),
			TopK:             5,
			MinScore:         0.35,
			MinUsefulResults: 2,
		},
		Tools: ToolsConfig{
			SearXNGURL:         "http://localhost:6060",
			SearchMaxResults:   5,
			SearchCacheTTL:     15 * time.Minute,
			SearchRateLimit:    60,
			PatentAPIURL:       "https://search.patentsview.org/api/v1",
			ExtractMaxBodySize: 1 * 1024 * 1024,
			Browser: BrowserConfig{
				Enabled:  false,
				Headless: true,
				Timeout:  30 * time.Second,
			},
			ExecTimeout: 20 * time.Second,
			MaxRetries:  2,
		},
		Agents: AgentsConfig{
			RequestTimeout: 120 * time.Second,
			PromptBudget:   6000,
		},
		Router: RouterConfig{
			ConfidenceThreshold: 0.25,
		},
		Gateway: GatewayConfig{
			Addr:      ":8080",
			RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("VENTUREDESK_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps VENTUREDESK_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VENTUREDESK_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("VENTUREDESK_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("VENTUREDESK_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("VENTUREDESK_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("VENTUREDESK_KNOWLEDGE_DATA_DIR"); v != "" {
		cfg.Knowledge.DataDir = v
	}
	if v := os.Getenv("VENTUREDESK_KNOWLEDGE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Knowledge.TopK = n
		}
	}
	if v := os.Getenv("VENTUREDESK_TOOLS_SEARXNG_URL"); v != "" {
		cfg.Tools.SearXNGURL = v
	}
	if v := os.Getenv("VENTUREDESK_TOOLS_PATENT_API_URL"); v != "" {
		cfg.Tools.PatentAPIURL = v
	}
	if v := os.Getenv("VENTUREDESK_TOOLS_PATENT_API_KEY"); v != "" {
		cfg.Tools.PatentAPIKey = v
	}
	if v := os.Getenv("VENTUREDESK_TOOLS_BROWSER_ENABLED"); v == "true" {
		cfg.Tools.Browser.Enabled = true
	}
	if v := os.Getenv("VENTUREDESK_TOOLS_BROWSER_CDP_URL"); v != "" {
		cfg.Tools.Browser.RemoteURL = v
	}
	if v := os.Getenv("VENTUREDESK_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	// Provider API keys: VENTUREDESK_PROVIDER_<NAME>_API_KEY is matched in
	// wiring code since provider names are config-driven; the common case of
	// a single OPENAI/ANTHROPIC key is handled here.
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].APIKey != "" {
			continue
		}
		switch cfg.LLM.Providers[i].Type {
		case "openai":
			cfg.LLM.Providers[i].APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.LLM.Providers[i].APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate checks configuration invariants.
func Validate(cfg *Config) error {
	names := make(map[string]bool, len(cfg.LLM.Providers))
	for _, p := range cfg.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm provider with empty name")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate llm provider name %q", p.Name)
		}
		names[p.Name] = true
		switch p.Type {
		case "openai", "anthropic", "bedrock":
		default:
			return fmt.Errorf("llm provider %q: unsupported type %q", p.Name, p.Type)
		}
		if p.Model == "" {
			return fmt.Errorf("llm provider %q: model is required", p.Name)
		}
	}
	for _, name := range cfg.LLM.Order {
		if !names[name] {
			return fmt.Errorf("llm order references unknown provider %q", name)
		}
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be > 0")
	}
	if cfg.Knowledge.TopK <= 0 {
		return fmt.Errorf("knowledge top_k must be > 0")
	}
	if cfg.Knowledge.MinScore < 0 || cfg.Knowledge.MinScore > 1 {
		return fmt.Errorf("knowledge min_score must be in [0, 1]")
	}
	if cfg.Router.ConfidenceThreshold < 0 || cfg.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router confidence_threshold must be in [0, 1]")
	}
	if cfg.Gateway.Auth.Type == "static" && len(cfg.Gateway.Auth.Tokens) == 0 {
		return fmt.Errorf("gateway auth type static requires at least one token")
	}
	return nil
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
