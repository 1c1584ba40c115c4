package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bess-scheduler/auth"
	"github.com/kilianp07/bess-scheduler/core/model"
)

func providerSteps(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{Timestamp: day.Add(time.Duration(i) * time.Hour), Solar: float64(i), Demand: 2, Price: 0.1}
	}
	return steps
}

func TestHTTPSource(t *testing.T) {
	var gotStart, gotHorizon string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		gotHorizon = r.URL.Query().Get("horizon")
		_ = json.NewEncoder(w).Encode(response{Steps: providerSteps(6)})
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPConfig{URL: srv.URL + "/forecast"})
	require.NoError(t, err)
	w, err := src.GetForecast(context.Background(), day, 4)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T00:00:00Z", gotStart)
	assert.Equal(t, "4", gotHorizon)
	assert.Equal(t, 4, w.Len())
	assert.Equal(t, []float64{0, 1, 2, 3}, w.SolarSeries())
}

func TestHTTPSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			_, _ = w.Write([]byte(`{"steps":[]}`))
		case "/bad":
			_, _ = w.Write([]byte(`{"steps":`))
		default:
			http.Error(w, "down", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	var de *model.DataError
	for _, path := range []string{"/empty", "/bad", "/down"} {
		src, err := NewHTTPSource(HTTPConfig{URL: srv.URL + path})
		require.NoError(t, err)
		_, err = src.GetForecast(context.Background(), day, 4)
		assert.True(t, errors.As(err, &de), path)
	}

	_, err := NewHTTPSource(HTTPConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestHTTPSourceRefreshesTokenOnUnauthorized(t *testing.T) {
	var tokens int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&tokens, 1)
		w.Header().Set("Content-Type", "application/json")
		tok := "stale"
		if n > 1 {
			tok = "fresh"
		}
		_, _ = w.Write([]byte(`{"access_token":"` + tok + `","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(response{Steps: providerSteps(2)})
	}))
	defer api.Close()

	src, err := NewHTTPSource(HTTPConfig{URL: api.URL, Auth: auth.Conf{ClientID: "id", ClientSecret: "s", AuthURL: tokenSrv.URL}})
	require.NoError(t, err)
	w, err := src.GetForecast(context.Background(), day, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokens))
}
