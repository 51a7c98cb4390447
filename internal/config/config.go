package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration loaded from YAML with env
// overrides. Zero values fall back to defaults in FromEnvOrDefaults.
type Config struct {
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Budget struct {
		PerIterationTokens int     `mapstructure:"per_iteration_tokens"`
		PerRunTokens       int     `mapstructure:"per_run_tokens"`
		SoftThreshold      float64 `mapstructure:"soft_threshold"`
	} `mapstructure:"budget"`

	Services struct {
		LLMURL    string `mapstructure:"llm_url"`
		SearchURL string `mapstructure:"search_url"`
	} `mapstructure:"services"`

	Engine struct {
		Concurrency  int `mapstructure:"concurrency"`
		PhaseTimeout int `mapstructure:"phase_timeout_seconds"`
	} `mapstructure:"engine"`

	Run struct {
		TimeoutSeconds int `mapstructure:"timeout_seconds"`
	} `mapstructure:"run"`

	Cache struct {
		SearchMaxSize   int    `mapstructure:"search_max_size"`
		AnalysisMaxSize int    `mapstructure:"analysis_max_size"`
		TTLSeconds      int    `mapstructure:"ttl_seconds"`
		RedisAddr       string `mapstructure:"redis_addr"`
	} `mapstructure:"cache"`
}

// Load reads the config file from MERIDIAN_CONFIG_PATH or
// config/meridian.yaml. A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	cfgPath := os.Getenv("MERIDIAN_CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/meridian.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	var c Config
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
			return &c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// FromEnvOrDefaults merges env overrides over the config file over
// defaults, in that precedence order.
func FromEnvOrDefaults(c *Config) Config {
	out := Config{}
	out.Logging.Level = "info"
	out.Logging.Format = "json"
	out.Metrics.Enabled = true
	out.Metrics.Port = 2112
	out.Budget.PerIterationTokens = 8000
	out.Budget.PerRunTokens = 30000
	out.Budget.SoftThreshold = 0.8
	out.Services.LLMURL = "http://llm-service:8000"
	out.Services.SearchURL = "http://search-service:8080"
	out.Engine.Concurrency = 5
	out.Engine.PhaseTimeout = 120
	out.Run.TimeoutSeconds = 900
	out.Cache.SearchMaxSize = 512
	out.Cache.AnalysisMaxSize = 256
	out.Cache.TTLSeconds = 86400

	if c != nil {
		if c.Logging.Level != "" {
			out.Logging.Level = c.Logging.Level
		}
		if c.Logging.Format != "" {
			out.Logging.Format = c.Logging.Format
		}
		if c.Metrics.Port > 0 {
			out.Metrics.Port = c.Metrics.Port
		}
		if c.Budget.PerIterationTokens > 0 {
			out.Budget.PerIterationTokens = c.Budget.PerIterationTokens
		}
		if c.Budget.PerRunTokens > 0 {
			out.Budget.PerRunTokens = c.Budget.PerRunTokens
		}
		if c.Budget.SoftThreshold > 0 {
			out.Budget.SoftThreshold = c.Budget.SoftThreshold
		}
		if c.Services.LLMURL != "" {
			out.Services.LLMURL = c.Services.LLMURL
		}
		if c.Services.SearchURL != "" {
			out.Services.SearchURL = c.Services.SearchURL
		}
		if c.Engine.Concurrency > 0 {
			out.Engine.Concurrency = c.Engine.Concurrency
		}
		if c.Engine.PhaseTimeout > 0 {
			out.Engine.PhaseTimeout = c.Engine.PhaseTimeout
		}
		if c.Run.TimeoutSeconds > 0 {
			out.Run.TimeoutSeconds = c.Run.TimeoutSeconds
		}
		if c.Cache.SearchMaxSize > 0 {
			out.Cache.SearchMaxSize = c.Cache.SearchMaxSize
		}
		if c.Cache.AnalysisMaxSize > 0 {
			out.Cache.AnalysisMaxSize = c.Cache.AnalysisMaxSize
		}
		if c.Cache.TTLSeconds > 0 {
			out.Cache.TTLSeconds = c.Cache.TTLSeconds
		}
		if c.Cache.RedisAddr != "" {
			out.Cache.RedisAddr = c.Cache.RedisAddr
		}
	}

	if v := os.Getenv("LLM_SERVICE_URL"); v != "" {
		out.Services.LLMURL = v
	}
	if v := os.Getenv("SEARCH_SERVICE_URL"); v != "" {
		out.Services.SearchURL = v
	}
	if v := os.Getenv("MERIDIAN_REDIS_ADDR"); v != "" {
		out.Cache.RedisAddr = v
	}
	if v := os.Getenv("BUDGET_PER_ITERATION_TOKENS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			out.Budget.PerIterationTokens = x
		}
	}
	if v := os.Getenv("BUDGET_PER_RUN_TOKENS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			out.Budget.PerRunTokens = x
		}
	}
	if v := os.Getenv("RUN_TIMEOUT_SECONDS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			out.Run.TimeoutSeconds = x
		}
	}
	if v := os.Getenv("ENGINE_CONCURRENCY"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			out.Engine.Concurrency = x
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			out.Metrics.Port = x
		}
	}

	return out
}

// RunTimeout returns the configured wall-clock limit for one run.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// PhaseTimeout returns the per-phase execution deadline.
func (c Config) PhaseTimeoutDuration() time.Duration {
	return time.Duration(c.Engine.PhaseTimeout) * time.Second
}
