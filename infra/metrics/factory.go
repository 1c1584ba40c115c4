package metrics

import (
	"github.com/kilianp07/bess-scheduler/core/factory"
	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
)

// init registers built-in metrics sinks.
func init() {
	factory.MustRegister(coremetrics.RegisterMetricsSink, "nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	factory.MustRegister(coremetrics.RegisterMetricsSink, "prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSink()
	})

	factory.MustRegister(coremetrics.RegisterMetricsSink, "influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
