package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
)

// ForecastSource reads forecast rows (ts, solar, demand, price) from a table
// of the store's database. ts is in unix seconds.
type ForecastSource struct {
	store *SQLStore
	table string
	owned bool
}

// Forecast returns a source backed by table, "forecast" when empty.
func (s *SQLStore) Forecast(table string) (*ForecastSource, error) {
	if table == "" {
		table = "forecast"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("store: invalid forecast table %q", table)
	}
	return &ForecastSource{store: s, table: table}, nil
}

// GetForecast returns up to horizon rows from start on. Fewer rows than
// requested yield a shorter window; none is a *model.DataError.
func (f *ForecastSource) GetForecast(ctx context.Context, start time.Time, horizon int) (model.ForecastWindow, error) {
	if horizon <= 0 {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: fmt.Sprintf("horizon %d must be positive", horizon)}
	}
	q := f.store.rebind(`SELECT ts, solar, demand, price FROM ` + f.table + ` WHERE ts >= ? ORDER BY ts LIMIT ?`)
	rows, err := f.store.db.QueryContext(ctx, q, start.Unix(), horizon)
	if err != nil {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "query " + f.table, Err: err}
	}
	defer func() { _ = rows.Close() }()
	var (
		ts                  []time.Time
		solar, load, prices []float64
	)
	for rows.Next() {
		var sec int64
		var s, l, p float64
		if err := rows.Scan(&sec, &s, &l, &p); err != nil {
			return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "scan", Err: err}
		}
		ts = append(ts, time.Unix(sec, 0).UTC())
		solar = append(solar, s)
		load = append(load, l)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "read rows", Err: err}
	}
	if len(ts) == 0 {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast",
			Reason: fmt.Sprintf("no rows in %s from %s", f.table, start.UTC().Format(time.RFC3339))}
	}
	return model.NewForecastWindow(ts, solar, load, prices)
}

// Put creates the table when missing and upserts every step of w.
func (f *ForecastSource) Put(ctx context.Context, w model.ForecastWindow) error {
	num := "REAL"
	if f.store.dialect == DialectPostgres {
		num = "DOUBLE PRECISION"
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + f.table + ` (
        ts BIGINT PRIMARY KEY,
        solar ` + num + ` NOT NULL,
        demand ` + num + ` NOT NULL,
        price ` + num + ` NOT NULL
    )`
	if _, err := f.store.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: create %s: %w", f.table, err)
	}
	tx, err := f.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	q := f.store.rebind(`INSERT INTO ` + f.table + ` (ts, solar, demand, price) VALUES (?, ?, ?, ?)
        ON CONFLICT (ts) DO UPDATE SET solar = excluded.solar, demand = excluded.demand, price = excluded.price`)
	for t := 0; t < w.Len(); t++ {
		if _, err := tx.ExecContext(ctx, q, w.Timestep(t).Unix(), w.Solar(t), w.Load(t), w.Price(t)); err != nil {
			return fmt.Errorf("store: put forecast: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the database when the source opened it itself.
func (f *ForecastSource) Close() error {
	if f.owned {
		return f.store.Close()
	}
	return nil
}

func init() {
	factory.MustRegister(scheduler.RegisterForecastSource, "sql", func(conf map[string]any) (scheduler.ForecastSource, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s, err := Open(context.Background(), c)
		if err != nil {
			return nil, err
		}
		fs, err := s.Forecast(c.ForecastTable)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		fs.owned = true
		return fs, nil
	})
}
