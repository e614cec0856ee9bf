// Package config loads and validates the full pipeline configuration from a
// single YAML file. Component sections left empty fall back to the same
// defaults the components use when constructed with a nil config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/marketpulse/internal/calibration"
	"github.com/sawpanic/marketpulse/internal/consistency"
	"github.com/sawpanic/marketpulse/internal/indexer"
	"github.com/sawpanic/marketpulse/internal/opportunity"
	"github.com/sawpanic/marketpulse/internal/orchestrator"
	"github.com/sawpanic/marketpulse/internal/providers"
	"github.com/sawpanic/marketpulse/internal/regime"
	"github.com/sawpanic/marketpulse/internal/signal"
)

// Config is the complete pipeline configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Model    ModelConfig    `yaml:"model"`

	// Horizon tags every run, ledger row and calibration lookup.
	Horizon string `yaml:"horizon"`

	Indicators []indexer.IndicatorSpec `yaml:"indicators"`

	Aggregator   *indexer.AggregatorConfig     `yaml:"aggregator"`
	Regime       *regime.DetectorConfig        `yaml:"regime"`
	Signal       *signal.EngineConfig          `yaml:"signal"`
	Calibration  *calibration.Config           `yaml:"calibration"`
	Conviction   *opportunity.ConvictionConfig `yaml:"conviction"`
	Gate         *opportunity.GateConfig       `yaml:"gate"`
	Consistency  *consistency.CheckerConfig    `yaml:"consistency"`
	Source       *providers.SourceConfig       `yaml:"source"`
	Orchestrator *orchestrator.Config          `yaml:"orchestrator"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	DSN              string `yaml:"dsn"`
	MaxOpenConns     int    `yaml:"max_open_conns"`     // Default: 10
	QueryTimeoutSecs int    `yaml:"query_timeout_secs"` // Default: 5
}

// GetQueryTimeout returns the per-query timeout as a time.Duration.
func (d *DatabaseConfig) GetQueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutSecs) * time.Second
}

// RedisConfig configures the model parameter store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig configures the read-only API server.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`         // Default: :8080
	TimeoutSecs int    `yaml:"timeout_secs"` // Default: 10 (read and write)
}

// GetTimeout returns the server read/write timeout as a time.Duration.
func (h *HTTPConfig) GetTimeout() time.Duration {
	return time.Duration(h.TimeoutSecs) * time.Second
}

// ModelConfig configures forecast model loading.
type ModelConfig struct {
	Key          string `yaml:"key"`            // Parameter-store key of the active model
	KeyPrefix    string `yaml:"key_prefix"`     // Default: marketpulse:model:
	CacheTTLSecs int    `yaml:"cache_ttl_secs"` // Default: 300
	ParamsDir    string `yaml:"params_dir"`     // Non-empty selects the file store over redis
}

// GetCacheTTL returns the model cache TTL as a time.Duration.
func (m *ModelConfig) GetCacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSecs) * time.Second
}

// Load reads, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.QueryTimeoutSecs == 0 {
		c.Database.QueryTimeoutSecs = 5
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.TimeoutSecs == 0 {
		c.HTTP.TimeoutSecs = 10
	}
	if c.Model.KeyPrefix == "" {
		c.Model.KeyPrefix = "marketpulse:model:"
	}
	if c.Model.CacheTTLSecs == 0 {
		c.Model.CacheTTLSecs = 300
	}
	if c.Horizon == "" {
		c.Horizon = "30d"
	}
	if c.Orchestrator != nil {
		defaults := orchestrator.DefaultConfig()
		if c.Orchestrator.CalibrationMetric == "" {
			c.Orchestrator.CalibrationMetric = defaults.CalibrationMetric
		}
		if c.Orchestrator.BullishAt == 0 {
			c.Orchestrator.BullishAt = defaults.BullishAt
		}
		if c.Orchestrator.BearishAt == 0 {
			c.Orchestrator.BearishAt = defaults.BearishAt
		}
		if c.Orchestrator.BackfillWorkers == 0 {
			c.Orchestrator.BackfillWorkers = defaults.BackfillWorkers
		}
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if len(c.Indicators) == 0 {
		return fmt.Errorf("at least one indicator must be configured")
	}

	seen := make(map[string]bool, len(c.Indicators))
	for i, spec := range c.Indicators {
		if spec.ID == "" {
			return fmt.Errorf("indicator %d: id cannot be empty", i)
		}
		if seen[spec.ID] {
			return fmt.Errorf("indicator %s: duplicate id", spec.ID)
		}
		seen[spec.ID] = true
		if spec.Category == "" {
			return fmt.Errorf("indicator %s: category cannot be empty", spec.ID)
		}
		if spec.Weight <= 0 {
			return fmt.Errorf("indicator %s: weight must be positive, got %f", spec.ID, spec.Weight)
		}
		if spec.StaleAfterDays < 0 {
			return fmt.Errorf("indicator %s: stale_after_days cannot be negative", spec.ID)
		}
	}

	if c.Regime != nil {
		for _, voter := range c.Regime.Voters {
			if voter.ID == "" {
				return fmt.Errorf("regime voter: id cannot be empty")
			}
			if voter.RiskOnAt == voter.RiskOffAt {
				return fmt.Errorf("regime voter %s: risk_on_at and risk_off_at must differ", voter.ID)
			}
		}
	}

	return nil
}
