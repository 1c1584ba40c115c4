// Package config loads the service configuration from a YAML or JSON file
// with BESS_ environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/bess-scheduler/api/schedule"
	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/logger"
	"github.com/kilianp07/bess-scheduler/infra/monitoring"
	"github.com/kilianp07/bess-scheduler/infra/store"
)

// EnvPrefix marks environment overrides. A double underscore separates
// levels: BESS_SCHEDULER__HORIZON_HOURS=12 sets scheduler.horizon_hours.
const EnvPrefix = "BESS_"

type Config struct {
	Battery    model.Battery           `json:"battery"`
	Optimizer  OptimizerConfig         `json:"optimizer"`
	Scheduler  scheduler.Config        `json:"scheduler"`
	Forecast   factory.ModuleConfig    `json:"forecast"`
	Store      store.Config            `json:"store"`
	Publishers []factory.ModuleConfig  `json:"publishers"`
	Metrics    metrics.Config          `json:"metrics"`
	API        APIConfig               `json:"api"`
	Logging    logger.Config           `json:"logging"`
	Sentry     monitoring.SentryConfig `json:"sentry"`
}

// APIConfig enables the HTTP API.
type APIConfig struct {
	Enabled         bool `json:"enabled"`
	schedule.Config `json:",squash"`
}

// Load reads path, applies environment overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Battery = c.Battery.WithDefaults()
	c.Scheduler.SetDefaults()
	c.API.SetDefaults()
	if c.Forecast.Type == "" && c.Store.DSN != "" {
		c.Forecast.Type = "sql"
		c.Forecast.Conf = map[string]any{
			"driver":         c.Store.Driver,
			"dsn":            c.Store.DSN,
			"forecast_table": c.Store.ForecastTable,
		}
	}
	if c.Sentry.Environment == "" {
		c.Sentry.Environment = os.Getenv("APP_ENV")
	}
}

// Validate checks the sections that can be checked without side effects.
func (c Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if c.Scheduler.DefaultInitialSOC > c.Battery.CapacityKWh {
		return fmt.Errorf("scheduler.default_initial_soc %v exceeds battery.capacity_kwh %v",
			c.Scheduler.DefaultInitialSOC, c.Battery.CapacityKWh)
	}
	if err := c.Optimizer.Options().Validate(); err != nil {
		return err
	}
	if c.Optimizer.MaxNodes < 0 {
		return fmt.Errorf("optimizer.max_nodes must not be negative")
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if c.Forecast.Type == "" {
		return fmt.Errorf("forecast.type is required (known: %v)", scheduler.ForecastTypes())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	for i, p := range c.Publishers {
		if p.Type == "" {
			return fmt.Errorf("publishers[%d].type is required", i)
		}
	}
	return nil
}
