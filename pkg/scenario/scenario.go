// Package scenario loads self-contained optimisation inputs from YAML or JSON
// files for offline runs.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/optimize"
	"github.com/kilianp07/bess-scheduler/infra/forecast"
)

// Scenario describes one offline optimisation. The forecast is given either
// inline (solar, demand, price) or as a CSV file relative to the scenario.
type Scenario struct {
	Name        string                 `json:"name" yaml:"name"`
	Battery     model.Battery          `json:"battery" yaml:"battery"`
	Options     *optimize.Options      `json:"options,omitempty" yaml:"options,omitempty"`
	InitialSOC  float64                `json:"initial_soc" yaml:"initial_soc"`
	Start       time.Time              `json:"start" yaml:"start"`
	StepMinutes int                    `json:"step_minutes" yaml:"step_minutes"`
	Solar       []float64              `json:"solar" yaml:"solar"`
	Demand      []float64              `json:"demand" yaml:"demand"`
	Price       []float64              `json:"price" yaml:"price"`
	ForecastCSV string                 `json:"forecast_csv" yaml:"forecast_csv"`
	Dispatch    []model.DispatchWindow `json:"dispatch" yaml:"dispatch"`
	// DispatchHours marks steps by index, for scenarios without a calendar.
	DispatchHours []int   `json:"dispatch_hours" yaml:"dispatch_hours"`
	TargetKW      float64 `json:"target_kw" yaml:"target_kw"`

	dir string
}

// Load reads path, choosing the decoder from its extension.
func Load(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	s, err := Decode(bytes.NewReader(b), format)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// Decode parses a scenario in the given format ("yaml" or "json"). Unknown
// fields are rejected.
func Decode(r io.Reader, format string) (Scenario, error) {
	var s Scenario
	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Scenario{}, err
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return Scenario{}, err
		}
	default:
		return Scenario{}, fmt.Errorf("unknown scenario format %q", format)
	}
	s.Battery = s.Battery.WithDefaults()
	return s, nil
}

// Step returns the step length, one hour by default.
func (s Scenario) Step() time.Duration {
	if s.StepMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.StepMinutes) * time.Minute
}

// Window builds the forecast window.
func (s Scenario) Window() (model.ForecastWindow, error) {
	start := s.Start
	if start.IsZero() {
		start = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if s.ForecastCSV != "" {
		p := s.ForecastCSV
		if !filepath.IsAbs(p) && s.dir != "" {
			p = filepath.Join(s.dir, p)
		}
		f, err := os.Open(p)
		if err != nil {
			return model.ForecastWindow{}, &model.DataError{Source: "scenario", Reason: "open forecast", Err: err}
		}
		defer func() { _ = f.Close() }()
		tab, err := forecast.ReadCSV(f, time.UTC)
		if err != nil {
			return model.ForecastWindow{}, err
		}
		if tab.Timestamps != nil && s.Start.IsZero() {
			start = tab.Timestamps[0]
		}
		return tab.Window(start, 0, start, s.Step())
	}
	ts := make([]time.Time, len(s.Demand))
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * s.Step())
	}
	return model.NewForecastWindow(ts, s.Solar, s.Demand, s.Price)
}

// Event combines calendar windows and step indices into one event.
func (s Scenario) Event(w model.ForecastWindow) (model.DispatchEvent, error) {
	ev := model.EventFromWindows(w, s.Dispatch)
	if len(s.DispatchHours) == 0 {
		return ev, nil
	}
	if len(ev.Mask) == 0 {
		ev = model.DispatchEvent{Mask: make([]bool, w.Len()), TargetKW: make([]float64, w.Len())}
	}
	for _, h := range s.DispatchHours {
		if h < 0 || h >= w.Len() {
			return model.DispatchEvent{}, &model.DataError{Source: "scenario",
				Reason: fmt.Sprintf("dispatch hour %d outside window of %d steps", h, w.Len())}
		}
		ev.Mask[h] = true
		if s.TargetKW > ev.TargetKW[h] {
			ev.TargetKW[h] = s.TargetKW
		}
	}
	return ev, nil
}

// Request assembles the optimiser request.
func (s Scenario) Request(runID string) (optimize.Request, error) {
	w, err := s.Window()
	if err != nil {
		return optimize.Request{}, err
	}
	ev, err := s.Event(w)
	if err != nil {
		return optimize.Request{}, err
	}
	return optimize.Request{RunID: runID, Battery: s.Battery, Window: w, InitialSOC: s.InitialSOC, Event: ev}, nil
}

// OptionsOr returns the scenario options or def when none are set.
func (s Scenario) OptionsOr(def optimize.Options) optimize.Options {
	if s.Options == nil {
		return def
	}
	return *s.Options
}
