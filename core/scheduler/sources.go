package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/optimize"
)

// ForecastSource returns the forecast for horizon steps starting at start. It
// fails with a *model.DataError when no rows match.
type ForecastSource interface {
	GetForecast(ctx context.Context, start time.Time, horizon int) (model.ForecastWindow, error)
}

// SOCSource returns the state of charge known at ts. ok is false when no
// previous run covers ts.
type SOCSource interface {
	GetInitialSoc(ctx context.Context, ts time.Time) (soc float64, ok bool, err error)
}

// ResultSink persists a schedule. Upserts are idempotent per timestamp.
type ResultSink interface {
	UpsertResults(ctx context.Context, res model.ScheduleResult) error
}

// Publisher announces a persisted schedule to downstream consumers.
type Publisher interface {
	PublishSchedule(ctx context.Context, res model.ScheduleResult) error
}

// Optimizer computes a schedule. *optimize.Optimizer satisfies it.
type Optimizer interface {
	Optimize(ctx context.Context, req optimize.Request) (model.ScheduleResult, error)
}

// MultiSink writes to several sinks in order and stops at the first error.
type MultiSink []ResultSink

func (m MultiSink) UpsertResults(ctx context.Context, res model.ScheduleResult) error {
	for _, s := range m {
		if err := s.UpsertResults(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// ErrSink wraps persistence failures.
var ErrSink = errors.New("result sink")
