package forecast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

const timedCSV = `timestamp,solar,demand,price
2024-06-01T00:00:00Z,0,3,0.10
2024-06-01T01:00:00Z,0,3.5,0.08
2024-06-01T02:00:00Z,1.5,4,0.05
2024-06-01T03:00:00Z,6,4,-0.02
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "forecast.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestReadCSVWithTimestamps(t *testing.T) {
	tab, err := ReadCSV(strings.NewReader(timedCSV), nil)
	require.NoError(t, err)
	require.Equal(t, 4, tab.Len())
	assert.Equal(t, day.Add(3*time.Hour), tab.Timestamps[3])
	assert.Equal(t, []float64{0, 0, 1.5, 6}, tab.Solar)
	assert.InDelta(t, -0.02, tab.Price[3], 1e-12)

	w, err := tab.Window(day.Add(time.Hour), 2, time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, day.Add(time.Hour), w.Start())
	assert.Equal(t, []float64{3.5, 4}, w.LoadSeries())
}

func TestReadCSVLoadAliasAndUnixTime(t *testing.T) {
	in := "timestamp,solar,load,price\n1717200000,1,2,0.3\n1717203600,1,2,0.3\n"
	tab, err := ReadCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, tab.Demand)
	assert.Equal(t, day, tab.Timestamps[0])
}

func TestReadCSVLocalTime(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	in := "timestamp,solar,demand,price\n2024-06-01 02:00,0,1,0.1\n"
	tab, err := ReadCSV(strings.NewReader(in), loc)
	require.NoError(t, err)
	assert.True(t, tab.Timestamps[0].Equal(day))
}

func TestReadCSVErrors(t *testing.T) {
	var de *model.DataError

	_, err := ReadCSV(strings.NewReader("timestamp,solar,price\n2024-06-01T00:00:00Z,1,0.1\n"), nil)
	require.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "demand")

	_, err = ReadCSV(strings.NewReader("timestamp,solar,demand,price\nyesterday,1,1,0.1\n"), nil)
	assert.True(t, errors.As(err, &de))
}

func TestPositionalRows(t *testing.T) {
	in := "solar,demand,price\n0,5,0.1\n2,5,0.2\n4,5,0.3\n"
	tab, err := ReadCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	assert.Nil(t, tab.Timestamps)

	w, err := tab.Window(day, 0, time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, day.Add(2*time.Hour), w.Timestep(2))

	// later starts skip the rows already covered by the origin
	w, err = tab.Window(day.Add(time.Hour), 5, day, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, w.SolarSeries())
	assert.Equal(t, day.Add(time.Hour), w.Start())

	_, err = tab.Window(day.Add(5*time.Hour), 5, day, time.Hour)
	var de *model.DataError
	assert.True(t, errors.As(err, &de))
}

func TestNaNRejected(t *testing.T) {
	in := "timestamp,solar,demand,price\n2024-06-01T00:00:00Z,,1,0.1\n"
	tab, err := ReadCSV(strings.NewReader(in), nil)
	require.NoError(t, err)
	_, err = tab.Window(day, 1, time.Time{}, 0)
	var de *model.DataError
	assert.True(t, errors.As(err, &de))
}

func TestCSVSource(t *testing.T) {
	src, err := NewCSVSource(CSVConfig{Path: writeFile(t, timedCSV)})
	require.NoError(t, err)
	w, err := src.GetForecast(context.Background(), day, 24)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Len())

	_, err = src.GetForecast(context.Background(), day.Add(24*time.Hour), 24)
	var de *model.DataError
	assert.True(t, errors.As(err, &de))

	missing, err := NewCSVSource(CSVConfig{Path: filepath.Join(t.TempDir(), "none.csv")})
	require.NoError(t, err)
	_, err = missing.GetForecast(context.Background(), day, 1)
	assert.True(t, errors.As(err, &de))
}

func TestCSVSourceConfig(t *testing.T) {
	_, err := NewCSVSource(CSVConfig{})
	assert.Error(t, err)
	_, err = NewCSVSource(CSVConfig{Path: "x.csv", Location: "Mars/Olympus"})
	assert.Error(t, err)

	src, err := scheduler.NewForecastSource(factory.ModuleConfig{Type: "csv", Conf: map[string]any{
		"path": writeFile(t, "solar,demand,price\n1,1,1\n"), "origin": "2024-06-01T00:00:00Z", "step": "30m",
	}})
	require.NoError(t, err)
	w, err := src.GetForecast(context.Background(), day, 1)
	require.NoError(t, err)
	assert.Equal(t, day, w.Start())
}
