// Package metrics defines the recorders used to observe scheduling runs.
// Sinks such as the Prometheus and InfluxDB ones in infra/metrics record run
// outcomes, individual solver calls and planned trajectories. Several sinks
// are combined with NewMultiSink; NewMetricsSink does so automatically when
// more than one sink is configured.
package metrics
