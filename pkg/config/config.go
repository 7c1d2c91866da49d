package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
		Output string `yaml:"output"` // stdout, stderr, or file path
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			BatchBytes   int           `yaml:"batch_bytes"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	MarketData struct {
		BaseURL      string        `yaml:"base_url"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxRPS       float64       `yaml:"max_rps"`
		BurstSize    float64       `yaml:"burst_size"`
		Retries      int           `yaml:"retries"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"marketdata"`
	Universe struct {
		Index      string        `yaml:"index"`     // NIFTY_50 | NIFTY_100 | NIFTY_200 | NIFTY_500
		Watchlist  []string      `yaml:"watchlist"` // manual override; empty = fetch from index
		CacheTTL   time.Duration `yaml:"cache_ttl"`
		HTTPBase   string        `yaml:"http_base"`
		HolidayURL string        `yaml:"holiday_url"`
	} `yaml:"universe"`
	Funnel struct {
		Threshold  float64 `yaml:"threshold"`  // min daily % change to flag an impulse
		WindowDays int     `yaml:"window_days"` // stable days required to graduate
		MaxUpPct   float64 `yaml:"max_up_pct"`
		MaxDownPct float64 `yaml:"max_down_pct"`
		VolumeHard bool    `yaml:"volume_hard"`
		Interval   string  `yaml:"interval"`
	} `yaml:"funnel"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Universe.Watchlist = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKETDATA_BASE_URL"); v != "" {
		c.MarketData.BaseURL = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Funnel.Threshold <= 0 {
		return fmt.Errorf("funnel.threshold must be positive, got %v", c.Funnel.Threshold)
	}
	if c.Funnel.WindowDays < 1 {
		return fmt.Errorf("funnel.window_days must be >= 1, got %d", c.Funnel.WindowDays)
	}
	if c.Funnel.MaxUpPct <= 0 || c.Funnel.MaxDownPct <= 0 {
		return fmt.Errorf("funnel.max_up_pct and funnel.max_down_pct must be positive")
	}
	if c.Funnel.Interval == "" {
		c.Funnel.Interval = "1d"
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if len(c.Universe.Watchlist) == 0 && c.Universe.Index == "" {
		return fmt.Errorf("universe.index is required when no watchlist is set")
	}
	return nil
}
