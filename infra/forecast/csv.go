// Package forecast provides forecast sources backed by CSV files and HTTP
// forecast providers.
package forecast

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
)

// Column names. "load" is accepted for demand.
const (
	ColTimestamp = "timestamp"
	ColSolar     = "solar"
	ColDemand    = "demand"
	ColPrice     = "price"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"}

// Table is a parsed forecast file.
type Table struct {
	// Timestamps is nil when the file has no timestamp column; rows are then
	// positional steps.
	Timestamps []time.Time
	Solar      []float64
	Demand     []float64
	Price      []float64
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Demand) }

// ReadCSV parses a forecast with a header row. Timestamps may be RFC 3339,
// "2006-01-02 15:04[:05]" in loc, or unix seconds.
func ReadCSV(r io.Reader, loc *time.Location) (Table, error) {
	if loc == nil {
		loc = time.UTC
	}
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.WithTypes(map[string]series.Type{
			ColTimestamp: series.String,
			ColSolar:     series.Float,
			ColDemand:    series.Float,
			"load":       series.Float,
			ColPrice:     series.Float,
		}),
	)
	if df.Err != nil {
		return Table{}, &model.DataError{Source: "forecast", Reason: "read csv", Err: df.Err}
	}
	cols := map[string]bool{}
	for _, n := range df.Names() {
		cols[n] = true
	}
	if !cols[ColDemand] && cols["load"] {
		df = df.Rename(ColDemand, "load")
		cols[ColDemand] = true
	}
	for _, c := range []string{ColSolar, ColDemand, ColPrice} {
		if !cols[c] {
			return Table{}, &model.DataError{Source: "forecast", Reason: fmt.Sprintf("csv has no %q column", c)}
		}
	}
	t := Table{
		Solar:  df.Col(ColSolar).Float(),
		Demand: df.Col(ColDemand).Float(),
		Price:  df.Col(ColPrice).Float(),
	}
	if cols[ColTimestamp] {
		recs := df.Col(ColTimestamp).Records()
		t.Timestamps = make([]time.Time, len(recs))
		for i, rec := range recs {
			ts, err := parseTime(rec, loc)
			if err != nil {
				return Table{}, &model.DataError{Source: "forecast", Reason: fmt.Sprintf("row %d", i+1), Err: err}
			}
			t.Timestamps[i] = ts
		}
	}
	return t, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	for _, l := range timeLayouts {
		if ts, err := time.ParseInLocation(l, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Window selects up to horizon rows from start on. Positional tables start
// at row 0 with origin and step as the time axis.
func (t Table) Window(start time.Time, horizon int, origin time.Time, step time.Duration) (model.ForecastWindow, error) {
	if horizon <= 0 {
		horizon = t.Len()
	}
	if t.Timestamps == nil {
		if origin.IsZero() {
			origin = start
		}
		if step <= 0 {
			step = time.Hour
		}
		first := 0
		if start.After(origin) {
			first = int(start.Sub(origin) / step)
		}
		ts := make([]time.Time, 0, horizon)
		for i := first; i < t.Len() && len(ts) < horizon; i++ {
			ts = append(ts, origin.Add(time.Duration(i)*step))
		}
		return t.slice(ts, first, start)
	}
	first := -1
	for i, ts := range t.Timestamps {
		if !ts.Before(start) {
			first = i
			break
		}
	}
	if first < 0 {
		return model.ForecastWindow{}, noRows(start)
	}
	last := first + horizon
	if last > t.Len() {
		last = t.Len()
	}
	return t.slice(t.Timestamps[first:last], first, start)
}

func (t Table) slice(ts []time.Time, first int, start time.Time) (model.ForecastWindow, error) {
	n := len(ts)
	if n == 0 {
		return model.ForecastWindow{}, noRows(start)
	}
	return model.NewForecastWindow(ts, t.Solar[first:first+n], t.Demand[first:first+n], t.Price[first:first+n])
}

func noRows(start time.Time) error {
	return &model.DataError{Source: "forecast", Reason: "no rows from " + start.UTC().Format(time.RFC3339)}
}

// CSVConfig configures a CSVSource. Origin and Step only apply to files
// without a timestamp column.
type CSVConfig struct {
	Path     string        `json:"path"`
	Location string        `json:"location"`
	Origin   time.Time     `json:"origin"`
	Step     time.Duration `json:"step"`
}

// CSVSource reads the file on every call so that a refreshed forecast is
// picked up by the next run.
type CSVSource struct {
	cfg CSVConfig
	loc *time.Location
}

func NewCSVSource(cfg CSVConfig) (*CSVSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("forecast: csv path required")
	}
	loc := time.UTC
	if cfg.Location != "" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("forecast: %w", err)
		}
		loc = l
	}
	return &CSVSource{cfg: cfg, loc: loc}, nil
}

func (s *CSVSource) GetForecast(ctx context.Context, start time.Time, horizon int) (model.ForecastWindow, error) {
	if err := ctx.Err(); err != nil {
		return model.ForecastWindow{}, err
	}
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "open " + s.cfg.Path, Err: err}
	}
	defer func() { _ = f.Close() }()
	t, err := ReadCSV(f, s.loc)
	if err != nil {
		return model.ForecastWindow{}, err
	}
	return t.Window(start, horizon, s.cfg.Origin, s.cfg.Step)
}

func init() {
	factory.MustRegister(scheduler.RegisterForecastSource, "csv", func(conf map[string]any) (scheduler.ForecastSource, error) {
		var c CSVConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewCSVSource(c)
	})
}
