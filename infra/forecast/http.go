package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kilianp07/bess-scheduler/auth"
	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/logger"
)

// HTTPConfig points at a provider answering
// GET <url>?start=<RFC 3339>&horizon=<steps> with {"steps": [...]}.
type HTTPConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Auth    auth.Conf     `json:"auth"`
}

// Step is one row of a provider response.
type Step struct {
	Timestamp time.Time `json:"timestamp"`
	Solar     float64   `json:"solar"`
	Demand    float64   `json:"demand"`
	Price     float64   `json:"price"`
}

type response struct {
	Steps []Step `json:"steps"`
}

// HTTPSource fetches forecasts from a remote provider, authenticating with
// OAuth2 client credentials when configured.
type HTTPSource struct {
	url    string
	client *http.Client
	creds  *auth.ClientCred
	log    logger.Logger
}

func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("forecast: invalid url %q: %w", cfg.URL, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &HTTPSource{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		log:    logger.New("forecast-http"),
	}
	if cfg.Auth.Enabled() {
		s.creds = auth.NewClientCred(cfg.Auth)
	}
	return s, nil
}

func (s *HTTPSource) GetForecast(ctx context.Context, start time.Time, horizon int) (model.ForecastWindow, error) {
	resp, err := s.fetch(ctx, start, horizon, false)
	if err != nil {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "fetch " + s.url, Err: err}
	}
	steps := resp.Steps
	if horizon > 0 && len(steps) > horizon {
		steps = steps[:horizon]
	}
	if len(steps) == 0 {
		return model.ForecastWindow{}, noRows(start)
	}
	ts := make([]time.Time, len(steps))
	solar := make([]float64, len(steps))
	load := make([]float64, len(steps))
	price := make([]float64, len(steps))
	for i, st := range steps {
		ts[i], solar[i], load[i], price[i] = st.Timestamp, st.Solar, st.Demand, st.Price
	}
	s.log.Debugf("fetched %d steps from %s", len(steps), s.url)
	return model.NewForecastWindow(ts, solar, load, price)
}

func (s *HTTPSource) fetch(ctx context.Context, start time.Time, horizon int, retried bool) (response, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("horizon", strconv.Itoa(horizon))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"?"+q.Encode(), nil)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if s.creds != nil {
		if err := s.creds.SetAuthHeader(req); err != nil {
			return response{}, err
		}
	}
	res, err := s.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusUnauthorized && s.creds != nil && !retried {
		_, _ = io.Copy(io.Discard, res.Body)
		if _, err := s.creds.ForceRefresh(ctx); err != nil {
			return response{}, err
		}
		return s.fetch(ctx, start, horizon, true)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return response{}, fmt.Errorf("status %d: %s", res.StatusCode, body)
	}
	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return response{}, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func init() {
	factory.MustRegister(scheduler.RegisterForecastSource, "http", func(conf map[string]any) (scheduler.ForecastSource, error) {
		var c HTTPConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewHTTPSource(c)
	})
}
