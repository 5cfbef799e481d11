// Package config loads and validates research run configuration from YAML
// files and DEEPRESEARCH_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"deepresearch/internal/retry"
)

const (
	// MinObjectives and MaxObjectives bound how many parallel research
	// objectives a run may fan out to.
	MinObjectives = 2
	MaxObjectives = 5
)

// Config holds everything a research run needs.
type Config struct {
	// Models.
	AgentModel       string `mapstructure:"agent_model" yaml:"agent_model"`
	SynthesizerModel string `mapstructure:"synthesizer_model" yaml:"synthesizer_model"`

	// LLM endpoint (OpenAI-compatible).
	LLMBaseURL string `mapstructure:"llm_base_url" yaml:"llm_base_url"`
	LLMAPIKey  string `mapstructure:"llm_api_key" yaml:"llm_api_key"`

	// Search endpoint.
	SearchBaseURL string `mapstructure:"search_base_url" yaml:"search_base_url"`
	SearchAPIKey  string `mapstructure:"search_api_key" yaml:"search_api_key"`

	// Orchestration shape.
	MaxObjectives   int `mapstructure:"max_objectives" yaml:"max_objectives"`
	MaxRounds       int `mapstructure:"max_rounds" yaml:"max_rounds"`
	QueriesPerRound int `mapstructure:"queries_per_round" yaml:"queries_per_round"`
	ResultsPerQuery int `mapstructure:"results_per_query" yaml:"results_per_query"`

	// CrawlMissing fetches pages for hits that arrive without inline text.
	CrawlMissing bool `mapstructure:"crawl_missing" yaml:"crawl_missing"`

	// ContextTokenBudget caps the findings text handed to any single model
	// call. Zero means unlimited.
	ContextTokenBudget int `mapstructure:"context_token_budget" yaml:"context_token_budget"`

	// Deadline is the soft wall-clock budget for a run. Rounds in flight
	// finish; new ones do not start. Zero means no deadline.
	Deadline time.Duration `mapstructure:"deadline" yaml:"deadline"`

	Retry       retry.Policy `mapstructure:"retry" yaml:"retry"`
	DecodeRetry retry.Policy `mapstructure:"decode_retry" yaml:"decode_retry"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// Default returns a configuration with sane defaults for everything except
// credentials.
func Default() *Config {
	return &Config{
		AgentModel:         "gpt-4o-mini",
		SynthesizerModel:   "gpt-4o",
		LLMBaseURL:         "https://api.openai.com/v1",
		SearchBaseURL:      "https://api.exa.ai",
		MaxObjectives:      3,
		MaxRounds:          3,
		QueriesPerRound:    3,
		ResultsPerQuery:    5,
		CrawlMissing:       true,
		ContextTokenBudget: 24000,
		Retry:              retry.DefaultPolicy(),
		DecodeRetry:        retry.DefaultDecodePolicy(),
	}
}

// Load reads configuration from path (optional) and the environment, layered
// over defaults. Environment variables use the DEEPRESEARCH_ prefix with
// underscores, e.g. DEEPRESEARCH_LLM_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("agent_model", defaults.AgentModel)
	v.SetDefault("synthesizer_model", defaults.SynthesizerModel)
	v.SetDefault("llm_base_url", defaults.LLMBaseURL)
	v.SetDefault("llm_api_key", "")
	v.SetDefault("search_base_url", defaults.SearchBaseURL)
	v.SetDefault("search_api_key", "")
	v.SetDefault("deadline", time.Duration(0))
	v.SetDefault("debug", false)
	v.SetDefault("max_objectives", defaults.MaxObjectives)
	v.SetDefault("max_rounds", defaults.MaxRounds)
	v.SetDefault("queries_per_round", defaults.QueriesPerRound)
	v.SetDefault("results_per_query", defaults.ResultsPerQuery)
	v.SetDefault("crawl_missing", defaults.CrawlMissing)
	v.SetDefault("context_token_budget", defaults.ContextTokenBudget)
	v.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	v.SetDefault("retry.initial_delay", defaults.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", defaults.Retry.MaxDelay)
	v.SetDefault("retry.exponential_base", defaults.Retry.ExponentialBase)
	v.SetDefault("retry.jitter_factor", defaults.Retry.JitterFactor)
	v.SetDefault("decode_retry.max_retries", defaults.DecodeRetry.MaxRetries)
	v.SetDefault("decode_retry.initial_delay", defaults.DecodeRetry.InitialDelay)
	v.SetDefault("decode_retry.max_delay", defaults.DecodeRetry.MaxDelay)
	v.SetDefault("decode_retry.exponential_base", defaults.DecodeRetry.ExponentialBase)

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural invariants of a configuration.
func (c *Config) Validate() error {
	if c.AgentModel == "" {
		return fmt.Errorf("agent_model must be set")
	}
	if c.SynthesizerModel == "" {
		return fmt.Errorf("synthesizer_model must be set")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("llm_base_url must be set")
	}
	if c.MaxObjectives < MinObjectives || c.MaxObjectives > MaxObjectives {
		return fmt.Errorf("max_objectives must be in [%d, %d], got %d",
			MinObjectives, MaxObjectives, c.MaxObjectives)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1, got %d", c.MaxRounds)
	}
	if c.QueriesPerRound < 1 {
		return fmt.Errorf("queries_per_round must be at least 1, got %d", c.QueriesPerRound)
	}
	if c.ResultsPerQuery < 1 {
		return fmt.Errorf("results_per_query must be at least 1, got %d", c.ResultsPerQuery)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.DecodeRetry.MaxRetries < 0 {
		return fmt.Errorf("decode_retry.max_retries must not be negative")
	}
	if c.Deadline < 0 {
		return fmt.Errorf("deadline must not be negative")
	}
	return nil
}

// ExampleYAML renders the default configuration as an annotated-free YAML
// document, for --print-config.
func ExampleYAML() (string, error) {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return "", err
	}
	return string(out), nil
}
