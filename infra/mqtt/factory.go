package mqtt

import (
	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
)

func init() {
	factory.MustRegister(scheduler.RegisterPublisher, "mqtt", func(conf map[string]any) (scheduler.Publisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}
