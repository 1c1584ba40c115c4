// Package plugins links every built-in forecast source, publisher and
// metrics sink into the binary. Each package registers its factories in init.
package plugins

import (
	"sort"

	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/scheduler"

	_ "github.com/kilianp07/bess-scheduler/infra/archive"
	_ "github.com/kilianp07/bess-scheduler/infra/forecast"
	_ "github.com/kilianp07/bess-scheduler/infra/kafka"
	_ "github.com/kilianp07/bess-scheduler/infra/metrics"
	_ "github.com/kilianp07/bess-scheduler/infra/mqtt"
	_ "github.com/kilianp07/bess-scheduler/infra/nats"
	_ "github.com/kilianp07/bess-scheduler/infra/store"
)

// Available lists the registered type names per kind.
func Available() map[string][]string {
	out := map[string][]string{
		"forecast":  scheduler.ForecastTypes(),
		"publisher": scheduler.PublisherTypes(),
		"metrics":   coremetrics.SinkTypes(),
	}
	for _, v := range out {
		sort.Strings(v)
	}
	return out
}
