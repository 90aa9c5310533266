// Package config provides configuration loading and validation for the
// decision engine. It handles JSON config files, environment variable
// substitution, and generation backend settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Generation backend identifiers.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
	BackendMock      = "mock"
)

// Default execution limits. Token and step caps bound a single agent
// dispatch; the case token cap bounds an entire case lifetime.
const (
	DefaultMaxTokensPerTask = 900
	DefaultMaxTokensPerCase = 3000
	DefaultMaxToolCalls     = 10
	DefaultMaxPlanSteps     = 6
	DefaultTaskTimeoutSec   = 60
)

const (
	ProjectConfigDir      = ".caseflow"
	ProjectConfigFilename = "config.json"
	SchemaVersion         = "1.0"
)

// ModelCfg configures one generation tier: which backend and model to
// use, and its per-1K-token pricing for cost accounting.
type ModelCfg struct {
	Backend          string  `json:"backend"`
	Model            string  `json:"model"`
	CostPer1KIn      float64 `json:"cost_per_1k_in"`
	CostPer1KOut     float64 `json:"cost_per_1k_out"`
	MaxReplyTokens   int     `json:"max_reply_tokens"`
	TemperatureTimes int     `json:"temperature_times_100"` // 0 means deterministic
}

// ConstraintsCfg bounds agent execution. Zero values fall back to
// package defaults.
type ConstraintsCfg struct {
	MaxTokensPerTask int `json:"max_tokens_per_task"`
	MaxTokensPerCase int `json:"max_tokens_per_case"`
	MaxToolCalls     int `json:"max_tool_calls"`
	MaxPlanSteps     int `json:"max_plan_steps"`
	TaskTimeoutSec   int `json:"task_timeout_sec"`
}

// ClassifierCfg tunes the hybrid intent classifier.
type ClassifierCfg struct {
	RuleAcceptThreshold float64 `json:"rule_accept_threshold"` // rule result wins outright at or above this
	LLMOnlyThreshold    float64 `json:"llm_only_threshold"`    // below this the LLM result is used
	CacheSize           int     `json:"cache_size"`
}

// MemoryCfg caps the per-case working memory.
type MemoryCfg struct {
	MaxInteractions int `json:"max_interactions"`
	MaxIntents      int `json:"max_intents"`
	MaxDecisions    int `json:"max_decisions"`
}

// OllamaCfg points at a local Ollama server for the fast tier.
type OllamaCfg struct {
	Host string `json:"host"`
}

// Config is the root configuration for the engine.
type Config struct {
	Models      map[string]ModelCfg `json:"models"` // keyed by tier: "fast", "deep"
	Constraints ConstraintsCfg      `json:"constraints"`
	Classifier  ClassifierCfg       `json:"classifier"`
	Memory      MemoryCfg           `json:"memory"`
	Ollama      OllamaCfg           `json:"ollama"`
	DBPath      string              `json:"db_path"`
	EventLogDir string              `json:"event_log_dir"`
	MetricsAddr string              `json:"metrics_addr"` // empty disables the /metrics listener
}

// Tier names for the two generation tiers.
const (
	TierFast = "fast"
	TierDeep = "deep"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and validates configuration from a JSON file with
// ${ENV_VAR} substitution. A missing file yields defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	var cfg Config
	if err := json.Unmarshal([]byte(dataStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Models == nil {
		cfg.Models = map[string]ModelCfg{}
	}
	if _, ok := cfg.Models[TierFast]; !ok {
		cfg.Models[TierFast] = ModelCfg{
			Backend:        BackendOpenAI,
			Model:          "gpt-4o-mini",
			CostPer1KIn:    0.15,
			CostPer1KOut:   0.60,
			MaxReplyTokens: 400,
		}
	}
	if _, ok := cfg.Models[TierDeep]; !ok {
		cfg.Models[TierDeep] = ModelCfg{
			Backend:        BackendAnthropic,
			Model:          "claude-sonnet-4-20250514",
			CostPer1KIn:    5.00,
			CostPer1KOut:   15.00,
			MaxReplyTokens: 900,
		}
	}

	c := &cfg.Constraints
	if c.MaxTokensPerTask == 0 {
		c.MaxTokensPerTask = DefaultMaxTokensPerTask
	}
	if c.MaxTokensPerCase == 0 {
		c.MaxTokensPerCase = DefaultMaxTokensPerCase
	}
	if c.MaxToolCalls == 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	if c.MaxPlanSteps == 0 {
		c.MaxPlanSteps = DefaultMaxPlanSteps
	}
	if c.TaskTimeoutSec == 0 {
		c.TaskTimeoutSec = DefaultTaskTimeoutSec
	}

	if cfg.Classifier.RuleAcceptThreshold == 0 {
		cfg.Classifier.RuleAcceptThreshold = 0.85
	}
	if cfg.Classifier.LLMOnlyThreshold == 0 {
		cfg.Classifier.LLMOnlyThreshold = 0.70
	}
	if cfg.Classifier.CacheSize == 0 {
		cfg.Classifier.CacheSize = 256
	}

	if cfg.Memory.MaxInteractions == 0 {
		cfg.Memory.MaxInteractions = 20
	}
	if cfg.Memory.MaxIntents == 0 {
		cfg.Memory.MaxIntents = 5
	}
	if cfg.Memory.MaxDecisions == 0 {
		cfg.Memory.MaxDecisions = 10
	}

	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = "http://localhost:11434"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "caseflow.db"
	}
	if cfg.EventLogDir == "" {
		cfg.EventLogDir = "logs"
	}
}

func validate(cfg *Config) error {
	validBackends := map[string]bool{
		BackendOpenAI: true, BackendAnthropic: true, BackendOllama: true, BackendMock: true,
	}
	for tier, m := range cfg.Models {
		if tier != TierFast && tier != TierDeep {
			return fmt.Errorf("unknown model tier %q (expected %q or %q)", tier, TierFast, TierDeep)
		}
		if !validBackends[m.Backend] {
			return fmt.Errorf("tier %s: unknown backend %q", tier, m.Backend)
		}
		if m.Backend != BackendMock && m.Model == "" {
			return fmt.Errorf("tier %s: model name is required for backend %s", tier, m.Backend)
		}
		if m.CostPer1KIn < 0 || m.CostPer1KOut < 0 {
			return fmt.Errorf("tier %s: negative cost rates", tier)
		}
	}

	c := cfg.Constraints
	if c.MaxTokensPerTask > c.MaxTokensPerCase {
		return fmt.Errorf("max_tokens_per_task (%d) exceeds max_tokens_per_case (%d)",
			c.MaxTokensPerTask, c.MaxTokensPerCase)
	}
	if cfg.Classifier.LLMOnlyThreshold > cfg.Classifier.RuleAcceptThreshold {
		return fmt.Errorf("llm_only_threshold (%.2f) exceeds rule_accept_threshold (%.2f)",
			cfg.Classifier.LLMOnlyThreshold, cfg.Classifier.RuleAcceptThreshold)
	}

	return nil
}

// APIKeyEnvVar maps a backend to the environment variable that carries
// its API key.
func APIKeyEnvVar(backend string) string {
	switch backend {
	case BackendOpenAI:
		return "OPENAI_API_KEY"
	case BackendAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// ResolveAPIKey returns the API key for a backend using the standard
// secret precedence. Local backends need no key.
func ResolveAPIKey(backend string) (string, error) {
	envVar := APIKeyEnvVar(backend)
	if envVar == "" {
		return "", nil
	}
	key, err := GetSecret(envVar)
	if err != nil {
		return "", fmt.Errorf("no API key for backend %s: %w", backend, err)
	}
	return strings.TrimSpace(key), nil
}
