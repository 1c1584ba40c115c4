// Package app assembles the scheduler service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/kilianp07/bess-scheduler/app/plugins"

	"github.com/kilianp07/bess-scheduler/api/schedule"
	"github.com/kilianp07/bess-scheduler/config"
	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/monitoring"
	"github.com/kilianp07/bess-scheduler/core/optimize"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/logger"
	"github.com/kilianp07/bess-scheduler/infra/metrics"
	inframon "github.com/kilianp07/bess-scheduler/infra/monitoring"
	"github.com/kilianp07/bess-scheduler/infra/store"
	"github.com/kilianp07/bess-scheduler/internal/eventbus"
)

// Service owns the runner and everything it writes to.
type Service struct {
	Runner *scheduler.Runner

	cfg     *config.Config
	store   *store.SQLStore
	api     *schedule.Server
	bus     *eventbus.TypedBus[scheduler.RunNotification]
	closers []func() error
	log     logger.Logger
	now     func() time.Time
}

// New creates a Service from the configuration. Resources opened before a
// failure are released.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	s := &Service{cfg: cfg, log: logger.New("service"), now: time.Now}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if cfg.Store.DSN != "" {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		s.store = st
		s.track(st)
	}

	fs, err := s.forecastSource()
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	s.track(sink)

	opt := optimize.New(cfg.Optimizer.Solver(), cfg.Optimizer.Options(), logger.New("optimizer"), sink)
	r := scheduler.NewRunner(cfg.Battery, cfg.Scheduler, fs, opt)
	r.Log = logger.New("scheduler")
	r.Metrics = sink
	if s.store != nil {
		r.SOC = s.store
		r.Sink = s.store
	}

	pubs, err := scheduler.NewPublishers(cfg.Publishers)
	if err != nil {
		return nil, fmt.Errorf("publishers: %w", err)
	}
	for _, p := range pubs {
		s.track(p)
	}
	r.Publishers = pubs

	s.bus = eventbus.NewTyped[scheduler.RunNotification]()
	r.Bus = s.bus
	s.Runner = r

	if cfg.API.Enabled {
		deps := schedule.Deps{
			Solver:  cfg.Optimizer.Solver(),
			Options: cfg.Optimizer.Options(),
			Runner:  r,
			Log:     logger.New("api"),
		}
		if s.store != nil {
			deps.Schedules = s.store
		}
		s.api = schedule.NewServer(cfg.API.Config, deps)
	}
	return s, nil
}

// forecastSource reuses the result store when the forecast lives in the same
// database.
func (s *Service) forecastSource() (scheduler.ForecastSource, error) {
	fc := s.cfg.Forecast
	if s.store != nil && strings.EqualFold(fc.Type, "sql") {
		dsn, _ := fc.Conf["dsn"].(string)
		if dsn == "" || dsn == s.cfg.Store.DSN {
			table, _ := fc.Conf["forecast_table"].(string)
			if table == "" {
				table = s.cfg.Store.ForecastTable
			}
			return s.store.Forecast(table)
		}
	}
	fs, err := scheduler.NewForecastSource(fc)
	if err != nil {
		return nil, err
	}
	s.track(fs)
	return fs, nil
}

func (s *Service) track(v any) {
	switch c := v.(type) {
	case io.Closer:
		s.closers = append(s.closers, c.Close)
	case interface{ Close() }:
		s.closers = append(s.closers, func() error { c.Close(); return nil })
	}
}

// Tick computes the configured number of chained horizons starting at the
// current time truncated to the alignment.
func (s *Service) Tick(ctx context.Context) ([]model.ScheduleResult, error) {
	start := s.now().UTC().Truncate(s.cfg.Scheduler.Align)
	res, err := s.Runner.RunSequence(ctx, start, s.cfg.Scheduler.Runs, nil)
	if err != nil || len(res) == 0 {
		return res, err
	}
	last := res[len(res)-1]
	s.log.Infof("tick %s: %d run(s), final soc %.3f kWh", start.Format(time.RFC3339), len(res), last.FinalSOC)
	return res, nil
}

// Run starts the optional servers, ticks once immediately and then on every
// interval until ctx is done. Failed ticks are logged and retried on the
// next interval.
func (s *Service) Run(ctx context.Context) error {
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		monitoring.Go(func() {
			if err := metrics.StartPromServer(ctx, port); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	if s.api != nil {
		monitoring.Go(func() {
			if err := s.api.Start(ctx); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		})
	}
	events := s.bus.Subscribe()
	monitoring.Go(func() { s.watch(events) })
	defer s.bus.Unsubscribe(events)

	s.tick(ctx)
	ticker := time.NewTicker(s.cfg.Scheduler.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Errorf("tick failed (%s): %v", scheduler.FailureReason(err), err)
	}
}

func (s *Service) watch(events <-chan scheduler.RunNotification) {
	for n := range events {
		fields := map[string]any{"run_id": n.RunID}
		if n.Err != nil {
			fields["error"] = n.Err.Error()
		} else {
			fields["mode"] = string(n.Result.Mode)
			fields["cost"] = n.Result.Cost
			fields["steps"] = len(n.Result.Entries)
		}
		s.log.Debugw("run finished", fields)
	}
}

// Close releases resources in reverse order of acquisition and flushes the
// error monitor.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}
