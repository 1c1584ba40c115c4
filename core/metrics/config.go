package metrics

import "github.com/kilianp07/bess-scheduler/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPort serves /metrics when set, for example ":9090".
	PrometheusPort string `json:"prometheus_port"`
}
