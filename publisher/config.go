package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"proposal_wizard/store"
)

// Config is the service configuration file.
type Config struct {
	ServerAddr string       `json:"server_addr,omitempty"`
	LLM        LLMConfig    `json:"llm"`
	Store      store.Config `json:"store"`
	Export     ExportConfig `json:"export"`
}

// LLMConfig selects the generation backend. APIKeyEnv names an environment variable that
// holds the key when APIKey is empty.
type LLMConfig struct {
	Provider          string   `json:"provider,omitempty"`
	Model             string   `json:"model,omitempty"`
	APIKey            string   `json:"api_key,omitempty"`
	APIKeyEnv         string   `json:"api_key_env,omitempty"`
	BaseURL           string   `json:"base_url,omitempty"`
	MaxTokens         int      `json:"max_tokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	MaxRetries        int      `json:"max_retries,omitempty"`
	RequestsPerMinute int      `json:"requests_per_minute,omitempty"`
}

type ExportConfig struct {
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds,omitempty"`
}

const (
	DefaultServerAddr   = ":8080"
	defaultMaxRetries   = 3
	defaultFetchTimeout = 15
)

// LoadConfig reads JSON config from disk and fills in defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultServerAddr
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv != "" {
		c.LLM.APIKey = os.Getenv(c.LLM.APIKeyEnv)
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = defaultMaxRetries
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Export.FetchTimeoutSeconds <= 0 {
		c.Export.FetchTimeoutSeconds = defaultFetchTimeout
	}
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case "mock":
	case "openai", "deepseek", "anthropic":
		if c.LLM.APIKey == "" {
			return errors.New("config must include llm.api_key or llm.api_key_env")
		}
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return errors.New("store.path is required for the sqlite driver")
	}
	if c.Store.Driver == "redis" && c.Store.RedisAddr == "" {
		return errors.New("store.redis_addr is required for the redis driver")
	}
	return nil
}
