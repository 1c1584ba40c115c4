package model

import (
	"math"
	"time"
)

// ForecastWindow is the snapshot a schedule is computed against. All series
// share the timestep axis and are read-only once constructed.
type ForecastWindow struct {
	timesteps []time.Time
	solar     []float64
	load      []float64
	price     []float64
}

// NewForecastWindow validates and copies the series. Timestamps must be
// strictly increasing, solar and load non-negative, and every series the same
// non-zero length. Prices may have any sign.
func NewForecastWindow(timesteps []time.Time, solar, load, price []float64) (ForecastWindow, error) {
	n := len(timesteps)
	if n == 0 {
		return ForecastWindow{}, dataErr("window is empty")
	}
	if len(solar) != n || len(load) != n || len(price) != n {
		return ForecastWindow{}, dataErr("series length mismatch: timesteps=%d solar=%d load=%d price=%d",
			n, len(solar), len(load), len(price))
	}
	for i := 1; i < n; i++ {
		if !timesteps[i].After(timesteps[i-1]) {
			return ForecastWindow{}, dataErr("timestep %d (%s) does not follow %s", i,
				timesteps[i].Format(time.RFC3339), timesteps[i-1].Format(time.RFC3339))
		}
	}
	for i := 0; i < n; i++ {
		if !finite(solar[i]) || solar[i] < 0 {
			return ForecastWindow{}, dataErr("solar[%d]=%v must be a non-negative number", i, solar[i])
		}
		if !finite(load[i]) || load[i] < 0 {
			return ForecastWindow{}, dataErr("load[%d]=%v must be a non-negative number", i, load[i])
		}
		if !finite(price[i]) {
			return ForecastWindow{}, dataErr("price[%d] is not finite", i)
		}
	}
	return ForecastWindow{
		timesteps: append([]time.Time(nil), timesteps...),
		solar:     append([]float64(nil), solar...),
		load:      append([]float64(nil), load...),
		price:     append([]float64(nil), price...),
	}, nil
}

// HourlyWindow builds a window with one-hour steps starting at start.
func HourlyWindow(start time.Time, solar, load, price []float64) (ForecastWindow, error) {
	ts := make([]time.Time, len(load))
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return NewForecastWindow(ts, solar, load, price)
}

// Len returns the number of timesteps.
func (w ForecastWindow) Len() int { return len(w.timesteps) }

func (w ForecastWindow) Timestep(t int) time.Time { return w.timesteps[t] }
func (w ForecastWindow) Solar(t int) float64      { return w.solar[t] }
func (w ForecastWindow) Load(t int) float64       { return w.load[t] }
func (w ForecastWindow) Price(t int) float64      { return w.price[t] }

// Timesteps returns a copy of the timestamp axis.
func (w ForecastWindow) Timesteps() []time.Time { return append([]time.Time(nil), w.timesteps...) }

// SolarSeries, LoadSeries and PriceSeries return copies of the series.
func (w ForecastWindow) SolarSeries() []float64 { return append([]float64(nil), w.solar...) }
func (w ForecastWindow) LoadSeries() []float64  { return append([]float64(nil), w.load...) }
func (w ForecastWindow) PriceSeries() []float64 { return append([]float64(nil), w.price...) }

// StepHours returns the length of step t in hours. The last step reuses the
// previous interval and a single-step window is one hour long.
func (w ForecastWindow) StepHours(t int) float64 {
	n := len(w.timesteps)
	switch {
	case n < 2:
		return 1
	case t < n-1:
		return w.timesteps[t+1].Sub(w.timesteps[t]).Hours()
	default:
		return w.timesteps[n-1].Sub(w.timesteps[n-2]).Hours()
	}
}

// Start returns the first timestamp.
func (w ForecastWindow) Start() time.Time { return w.timesteps[0] }

// End returns the instant following the last step.
func (w ForecastWindow) End() time.Time {
	last := len(w.timesteps) - 1
	return w.timesteps[last].Add(time.Duration(w.StepHours(last) * float64(time.Hour)))
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
