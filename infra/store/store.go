// Package store persists schedules in SQLite or PostgreSQL and serves the
// initial state of charge and forecasts back to the runner.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/bess-scheduler/core/model"
)

// Dialects understood by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Config selects the database. ForecastTable defaults to "forecast".
type Config struct {
	Driver        string `json:"driver"`
	DSN           string `json:"dsn"`
	ForecastTable string `json:"forecast_table"`
}

// Row is one persisted schedule step.
type Row struct {
	RunID string `json:"run_id"`
	model.ScheduleEntry
	UpdatedAt time.Time `json:"updated_at"`
}

// SQLStore implements the runner's result sink and SOC source.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Open connects and creates the schedule tables when missing.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	dialect := strings.ToLower(cfg.Driver)
	switch dialect {
	case "", DialectSQLite:
		dialect = DialectSQLite
	case DialectPostgres, "postgresql", "pq":
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: dsn required")
	}
	db, err := sql.Open(dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// a single connection keeps in-memory databases alive and serialises writers
		db.SetMaxOpenConns(1)
	}
	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	num := "REAL"
	if s.dialect == DialectPostgres {
		num = "DOUBLE PRECISION"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schedule_results (
            ts BIGINT PRIMARY KEY,
            run_id TEXT NOT NULL,
            charge ` + num + ` NOT NULL,
            discharge ` + num + ` NOT NULL,
            soc ` + num + ` NOT NULL,
            grid ` + num + ` NOT NULL,
            grid_import ` + num + ` NOT NULL,
            grid_export ` + num + ` NOT NULL,
            solar_used ` + num + ` NOT NULL,
            solar_gen ` + num + ` NOT NULL,
            demand ` + num + ` NOT NULL,
            price ` + num + ` NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS schedule_runs (
            run_id TEXT PRIMARY KEY,
            start_ts BIGINT NOT NULL,
            end_ts BIGINT NOT NULL,
            final_soc ` + num + ` NOT NULL,
            cost ` + num + ` NOT NULL,
            mode TEXT NOT NULL,
            created_at BIGINT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS schedule_runs_end ON schedule_runs (end_ts)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UpsertResults writes every entry keyed by timestamp and records the run,
// in one transaction. A later run overwrites the overlapping steps.
func (s *SQLStore) UpsertResults(ctx context.Context, res model.ScheduleResult) error {
	if len(res.Entries) == 0 {
		return fmt.Errorf("store: empty schedule %s", res.RunID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO schedule_results
        (ts, run_id, charge, discharge, soc, grid, grid_import, grid_export, solar_used, solar_gen, demand, price, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (ts) DO UPDATE SET
            run_id = excluded.run_id,
            charge = excluded.charge,
            discharge = excluded.discharge,
            soc = excluded.soc,
            grid = excluded.grid,
            grid_import = excluded.grid_import,
            grid_export = excluded.grid_export,
            solar_used = excluded.solar_used,
            solar_gen = excluded.solar_gen,
            demand = excluded.demand,
            price = excluded.price,
            updated_at = excluded.updated_at`))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	now := s.now().Unix()
	for _, e := range res.Entries {
		if _, err := stmt.ExecContext(ctx, e.Timestamp.Unix(), res.RunID, e.Charge, e.Discharge, e.SOC, e.Grid,
			e.GridImport, e.GridExport, e.SolarUsed, e.SolarGen, e.Load, e.Price, now); err != nil {
			return fmt.Errorf("store: upsert %s: %w", e.Timestamp.Format(time.RFC3339), err)
		}
	}

	created := res.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schedule_runs
        (run_id, start_ts, end_ts, final_soc, cost, mode, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (run_id) DO UPDATE SET
            start_ts = excluded.start_ts,
            end_ts = excluded.end_ts,
            final_soc = excluded.final_soc,
            cost = excluded.cost,
            mode = excluded.mode,
            created_at = excluded.created_at`),
		res.RunID, res.Start().Unix(), res.End.Unix(), res.FinalSOC, res.Cost, string(res.Mode), created.Unix()); err != nil {
		return fmt.Errorf("store: record run: %w", err)
	}
	return tx.Commit()
}

// GetInitialSoc returns the planned state of charge at ts. The stored step
// starting at ts wins; otherwise the latest run ending at ts provides its
// final SOC.
func (s *SQLStore) GetInitialSoc(ctx context.Context, ts time.Time) (float64, bool, error) {
	var soc float64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT soc FROM schedule_results WHERE ts = ?`), ts.Unix()).Scan(&soc)
	switch {
	case err == nil:
		return soc, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, err
	}
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT final_soc FROM schedule_runs
        WHERE end_ts = ? ORDER BY created_at DESC LIMIT 1`), ts.Unix()).Scan(&soc)
	switch {
	case err == nil:
		return soc, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// Query returns stored steps with start <= ts < end ordered by time. A zero
// end leaves the range open.
func (s *SQLStore) Query(ctx context.Context, start, end time.Time) ([]Row, error) {
	q := `SELECT ts, run_id, charge, discharge, soc, grid, grid_import, grid_export, solar_used, solar_gen, demand, price, updated_at
        FROM schedule_results WHERE ts >= ?`
	args := []any{start.Unix()}
	if !end.IsZero() {
		q += ` AND ts < ?`
		args = append(args, end.Unix())
	}
	q += ` ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Row
	for rows.Next() {
		var r Row
		var ts, updated int64
		if err := rows.Scan(&ts, &r.RunID, &r.Charge, &r.Discharge, &r.SOC, &r.Grid, &r.GridImport, &r.GridExport,
			&r.SolarUsed, &r.SolarGen, &r.Load, &r.Price, &updated); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(ts, 0).UTC()
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }
