package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatteryValidation(t *testing.T) {
	cases := []struct {
		name  string
		args  [5]float64
		field string
	}{
		{"zero capacity", [5]float64{0, 10, 10, 0.9, 0.9}, "capacity_kwh"},
		{"negative charge", [5]float64{50, -1, 10, 0.9, 0.9}, "max_charge_kw"},
		{"zero discharge", [5]float64{50, 10, 0, 0.9, 0.9}, "max_discharge_kw"},
		{"charge efficiency above one", [5]float64{50, 10, 10, 1.1, 0.9}, "charge_efficiency"},
		{"zero discharge efficiency", [5]float64{50, 10, 10, 0.9, 0}, "discharge_efficiency"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewBattery(c.args[0], c.args[1], c.args[2], c.args[3], c.args[4])
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, c.field, cfgErr.Field)
		})
	}

	b, err := NewBattery(50, 10, 10, 1, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 50.0, b.CapacityKWh)
}

func TestBatteryCheckSOC(t *testing.T) {
	b, err := NewBattery(50, 10, 10, 0.9, 0.9)
	require.NoError(t, err)
	assert.NoError(t, b.CheckSOC(0))
	assert.NoError(t, b.CheckSOC(50))
	err = b.CheckSOC(50.1)
	assert.True(t, errors.Is(err, ErrInfeasibleConfiguration))
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Error(t, b.CheckSOC(-1))
}

func TestNewForecastWindow(t *testing.T) {
	start := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}

	_, err := NewForecastWindow(nil, nil, nil, nil)
	var dErr *DataError
	require.ErrorAs(t, err, &dErr)

	_, err = NewForecastWindow(ts, []float64{1, 2}, []float64{1, 2, 3}, []float64{1, 2, 3})
	require.ErrorAs(t, err, &dErr)

	_, err = NewForecastWindow([]time.Time{start, start, start}, []float64{0, 0, 0}, []float64{1, 1, 1}, []float64{1, 1, 1})
	require.ErrorAs(t, err, &dErr)

	_, err = NewForecastWindow(ts, []float64{0, -1, 0}, []float64{1, 1, 1}, []float64{1, 1, 1})
	require.ErrorAs(t, err, &dErr)

	w, err := NewForecastWindow(ts, []float64{0, 1, 2}, []float64{3, 4, 5}, []float64{-0.1, 0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 1.0, w.StepHours(0))
	assert.Equal(t, 1.0, w.StepHours(2))
	assert.Equal(t, start.Add(3*time.Hour), w.End())

	solar := w.SolarSeries()
	solar[0] = 99
	assert.Equal(t, 0.0, w.Solar(0), "window must not share its backing arrays")
}

func TestStepHoursHalfHourly(t *testing.T) {
	start := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{start, start.Add(30 * time.Minute)}
	w, err := NewForecastWindow(ts, []float64{0, 0}, []float64{1, 1}, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.5, w.StepHours(0))
	assert.Equal(t, 0.5, w.StepHours(1))
	assert.Equal(t, start.Add(time.Hour), w.End())
}

func TestEventFromWindows(t *testing.T) {
	start := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	w, err := HourlyWindow(start, make([]float64, 24), make([]float64, 24), make([]float64, 24))
	require.NoError(t, err)

	ev := EventFromWindows(w, []DispatchWindow{
		{Start: start.Add(18 * time.Hour), End: start.Add(20 * time.Hour), TargetKW: 5},
		{Start: start.Add(19 * time.Hour), End: start.Add(21 * time.Hour), TargetKW: 8},
	})
	require.True(t, ev.Active())
	assert.False(t, ev.Masked(17))
	assert.True(t, ev.Masked(18))
	assert.Equal(t, 5.0, ev.Target(18))
	assert.Equal(t, 8.0, ev.Target(19))
	assert.Equal(t, 8.0, ev.Target(20))
	assert.False(t, ev.Masked(21))
	assert.NoError(t, ev.Validate(24))

	none := EventFromWindows(w, []DispatchWindow{{Start: start.Add(48 * time.Hour), End: start.Add(50 * time.Hour)}})
	assert.False(t, none.Active())
}

func TestDispatchEventValidate(t *testing.T) {
	assert.NoError(t, DispatchEvent{}.Validate(3))
	var dErr *DataError
	assert.ErrorAs(t, DispatchEvent{Mask: []bool{true}}.Validate(3), &dErr)
	var cErr *ConfigurationError
	assert.ErrorAs(t, DispatchEvent{Mask: []bool{true, false, false}, TargetKW: []float64{-1, 0, 0}}.Validate(3), &cErr)
}
