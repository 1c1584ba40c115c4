package scheduler

import "github.com/kilianp07/bess-scheduler/core/factory"

var (
	publisherRegistry = factory.NewRegistry[Publisher]()
	forecastRegistry  = factory.NewRegistry[ForecastSource]()
)

// RegisterPublisher adds a publisher factory identified by name.
func RegisterPublisher(name string, f factory.Factory[Publisher]) error {
	return publisherRegistry.Register(name, f)
}

// NewPublishers creates every configured publisher in order.
func NewPublishers(cfgs []factory.ModuleConfig) ([]Publisher, error) {
	return publisherRegistry.CreateAll(cfgs)
}

// RegisterForecastSource adds a forecast source factory identified by name.
func RegisterForecastSource(name string, f factory.Factory[ForecastSource]) error {
	return forecastRegistry.Register(name, f)
}

// NewForecastSource creates the configured forecast source.
func NewForecastSource(cfg factory.ModuleConfig) (ForecastSource, error) {
	return forecastRegistry.Create(cfg)
}

// PublisherTypes lists the registered publisher names.
func PublisherTypes() []string { return publisherRegistry.Names() }

// ForecastTypes lists the registered forecast source names.
func ForecastTypes() []string { return forecastRegistry.Names() }
