package scheduler

import (
	"fmt"
	"time"
)

// Config defines run parameters loaded from configuration.
type Config struct {
	// HorizonHours is the number of forecast steps requested per run.
	HorizonHours int `json:"horizon_hours" yaml:"horizon_hours"`
	// DefaultInitialSOC is used when no previous run is known, in kWh.
	DefaultInitialSOC float64 `json:"default_initial_soc" yaml:"default_initial_soc"`
	// Interval between two service ticks.
	Interval time.Duration `json:"interval" yaml:"interval"`
	// Runs is the number of chained horizons computed per tick.
	Runs int `json:"runs" yaml:"runs"`
	// Align truncates the start of a tick to this duration.
	Align time.Duration `json:"align" yaml:"align"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.HorizonHours == 0 {
		c.HorizonHours = 24
	}
	if c.Interval == 0 {
		c.Interval = time.Hour
	}
	if c.Runs == 0 {
		c.Runs = 1
	}
	if c.Align == 0 {
		c.Align = time.Hour
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.HorizonHours <= 0 {
		return fmt.Errorf("scheduler.horizon_hours must be positive")
	}
	if c.DefaultInitialSOC < 0 {
		return fmt.Errorf("scheduler.default_initial_soc must not be negative")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Runs <= 0 {
		return fmt.Errorf("scheduler.runs must be positive")
	}
	return nil
}
