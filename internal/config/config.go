package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (CORTEXR_AGENT_MAX_STEPS).
const EnvPrefix = "CORTEXR"

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version    string                    `mapstructure:"version"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Models     map[string]ModelConfig    `mapstructure:"models"`
	Strategy   StrategyConfig            `mapstructure:"strategy"`
	Agent      AgentConfig               `mapstructure:"agent"`
	Guard      GuardConfig               `mapstructure:"guard"`
	History    HistoryConfig             `mapstructure:"history"`
	MCPServers []MCPServerConfig         `mapstructure:"mcp_servers"`
	// MCPProfiles optionally points at a profiles YAML whose servers are
	// appended to MCPServers.
	MCPProfiles string         `mapstructure:"mcp_profiles"`
	Memory      MemoryConfig    `mapstructure:"memory"`
	Documents   DocumentsConfig `mapstructure:"documents"`
	Executor    ExecutorConfig  `mapstructure:"executor"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Server      ServerConfig    `mapstructure:"server"`
}

// ProviderConfig represents an LLM backend such as Gemini, OpenAI or Ollama.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // gemini, openai, openrouter, vllm, lmstudio, custom, ollama
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
	Expensive   bool    `mapstructure:"expensive"`
}

// AgentConfig describes the reasoning loop.
type AgentConfig struct {
	MaxSteps   int `mapstructure:"max_steps"`
	MemoryTopK int `mapstructure:"memory_top_k"`
	// Prompt template paths; empty uses the built-in templates.
	PerceptionPrompt string `mapstructure:"perception_prompt"`
	DecisionPrompt   string `mapstructure:"decision_prompt"`
}

// GuardConfig tunes the prompt input guard.
type GuardConfig struct {
	MaxInputLength int      `mapstructure:"max_input_length"`
	MinInputLength int      `mapstructure:"min_input_length"`
	MaxURLLength   int      `mapstructure:"max_url_length"`
	DenyList       []string `mapstructure:"deny_list"`
}

// HistoryConfig controls retrieval of past conversations.
type HistoryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	SearchTool  string        `mapstructure:"search_tool"`
	CurrentTool string        `mapstructure:"current_tool"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxResults  int           `mapstructure:"max_results"`
}

// MemoryConfig controls the local conversation memory index.
type MemoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	WordLimit int    `mapstructure:"word_limit"`
}

// DocumentsConfig serves a local folder of documents as an in-process
// tool server.
type DocumentsConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	ServerID     string   `mapstructure:"server_id"`
	Description  string   `mapstructure:"description"`
	Root         string   `mapstructure:"root"`
	MaxFiles     int      `mapstructure:"max_files"`
	MaxFileBytes int      `mapstructure:"max_file_bytes"`
	ChunkWords   int      `mapstructure:"chunk_words"`
	SearchLimit  int      `mapstructure:"search_limit"`
	Extensions   []string `mapstructure:"extensions"`
}

// ExecutorConfig controls how plans are run.
type ExecutorConfig struct {
	Command         string   `mapstructure:"command"`
	Args            []string `mapstructure:"args"` // placed before the plan file path
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	WorkingDir      string   `mapstructure:"working_dir"`
	AllowedCommands []string `mapstructure:"allowed_commands"`
	DeniedCommands  []string `mapstructure:"denied_commands"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: CORTEXR_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	base := filepath.Dir(v.ConfigFileUsed())
	for i := range cfg.MCPServers {
		s := &cfg.MCPServers[i]
		s.normalize()
		if s.Cwd != "" && !filepath.IsAbs(s.Cwd) {
			s.Cwd = filepath.Join(base, s.Cwd)
		}
	}
	if cfg.MCPProfiles != "" {
		profiles := cfg.MCPProfiles
		if !filepath.IsAbs(profiles) {
			profiles = filepath.Join(base, profiles)
		}
		servers, err := LoadServerCatalogue(profiles)
		if err != nil {
			return nil, err
		}
		cfg.MCPServers = append(cfg.MCPServers, servers...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("agent.max_steps", 3)
	v.SetDefault("agent.memory_top_k", 3)
	v.SetDefault("agent.perception_prompt", "")
	v.SetDefault("agent.decision_prompt", "")

	v.SetDefault("guard.max_input_length", 100000)
	v.SetDefault("guard.min_input_length", 3)
	v.SetDefault("guard.max_url_length", 2048)
	v.SetDefault("guard.deny_list", []string{"inappropriate", "offensive", "obscene"})

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.search_tool", "search_historical_conversations")
	v.SetDefault("history.current_tool", "get_current_conversations")
	v.SetDefault("history.timeout", 10*time.Second)
	v.SetDefault("history.max_results", 3)

	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.path", "memory/cortexr.db")
	v.SetDefault("memory.word_limit", 10000)

	v.SetDefault("documents.enabled", false)
	v.SetDefault("documents.server_id", "library")
	v.SetDefault("documents.root", "documents")
	v.SetDefault("documents.max_files", 500)
	v.SetDefault("documents.max_file_bytes", 256*1024)
	v.SetDefault("documents.chunk_words", 200)
	v.SetDefault("documents.search_limit", 5)

	v.SetDefault("executor.command", "python3")
	v.SetDefault("executor.timeout_seconds", 60)
	v.SetDefault("executor.allowed_commands", []string{"python3", "python"})
	v.SetDefault("executor.denied_commands", []string{"rm", "sudo", "shutdown", "reboot"})

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.perception_model", "")
	v.SetDefault("strategy.planner_model", "")
	v.SetDefault("strategy.overrides", map[string]string{})
	v.SetDefault("strategy.fallbacks", []string{})
	v.SetDefault("strategy.max_expensive", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		switch p.Type {
		case "":
			return fmt.Errorf("provider %q must define type", name)
		case "gemini", "openai", "openrouter", "vllm", "lmstudio", "custom", "ollama":
		default:
			return fmt.Errorf("provider %q has unknown type %q", name, p.Type)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	for _, modelID := range c.Strategy.ModelIDs() {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	if c.Strategy.MaxExpensive < 0 {
		return errors.New("strategy.max_expensive must be >= 0")
	}

	if c.Agent.MaxSteps <= 0 {
		return errors.New("agent.max_steps must be > 0")
	}
	if c.Agent.MemoryTopK < 0 {
		return errors.New("agent.memory_top_k must be >= 0")
	}

	if c.Guard.MaxInputLength < 0 || c.Guard.MinInputLength < 0 || c.Guard.MaxURLLength < 0 {
		return errors.New("guard limits must be >= 0")
	}
	if c.Guard.MaxInputLength > 0 && c.Guard.MaxInputLength <= c.Guard.MinInputLength {
		return errors.New("guard.max_input_length must exceed guard.min_input_length")
	}

	if c.History.Timeout < 0 {
		return errors.New("history.timeout must be >= 0")
	}
	if c.History.MaxResults < 0 {
		return errors.New("history.max_results must be >= 0")
	}

	seen := make(map[string]bool, len(c.MCPServers))
	for _, s := range c.MCPServers {
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate mcp server id %q", s.ID)
		}
		seen[s.ID] = true
	}

	if c.Memory.Enabled && strings.TrimSpace(c.Memory.Path) == "" {
		return errors.New("memory.path must be set when memory.enabled is true")
	}
	if c.Memory.WordLimit < 0 {
		return errors.New("memory.word_limit must be >= 0")
	}

	if c.Documents.Enabled {
		if strings.TrimSpace(c.Documents.Root) == "" {
			return errors.New("documents.root must be set when documents.enabled is true")
		}
		if strings.TrimSpace(c.Documents.ServerID) == "" {
			return errors.New("documents.server_id must be set when documents.enabled is true")
		}
		if seen[c.Documents.ServerID] {
			return fmt.Errorf("documents.server_id %q duplicates an mcp server id", c.Documents.ServerID)
		}
	}
	if c.Documents.MaxFiles < 0 || c.Documents.MaxFileBytes < 0 || c.Documents.ChunkWords < 0 || c.Documents.SearchLimit < 0 {
		return errors.New("documents limits must be >= 0")
	}

	if strings.TrimSpace(c.Executor.Command) == "" {
		return errors.New("executor.command must be set")
	}
	if c.Executor.TimeoutSeconds <= 0 {
		return errors.New("executor.timeout_seconds must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}

// ServerDescriptions maps server id to its description.
func (c *Config) ServerDescriptions() map[string]string {
	out := make(map[string]string, len(c.MCPServers))
	for _, s := range c.MCPServers {
		out[s.ID] = s.Description
	}
	return out
}
