package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
)

// Config sets the archive location and rotation limits in megabytes and days.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// JSONLSink appends every schedule it receives as one JSON line. Files are
// rotated by lumberjack; rotated files stay readable by Query unless
// compressed.
type JSONLSink struct {
	mu   sync.Mutex
	w    *lumberjack.Logger
	path string
}

// NewJSONLSink creates the parent directory of cfg.Path when needed.
func NewJSONLSink(cfg Config) (*JSONLSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("archive: path required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 50
	}
	return &JSONLSink{
		w: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    size,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		path: cfg.Path,
	}, nil
}

// UpsertResults appends res. Re-running a window adds a new line; Query
// keeps the latest one per run.
func (s *JSONLSink) UpsertResults(_ context.Context, res model.ScheduleResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(b)
	return err
}

// PublishSchedule lets the archive be configured as a publisher.
func (s *JSONLSink) PublishSchedule(ctx context.Context, res model.ScheduleResult) error {
	return s.UpsertResults(ctx, res)
}

// Query returns the archived schedules starting in [start, end], oldest
// first. Zero bounds are open. Malformed lines are skipped.
func (s *JSONLSink) Query(ctx context.Context, start, end time.Time) ([]model.ScheduleResult, error) {
	ext := filepath.Ext(s.path)
	base := strings.TrimSuffix(filepath.Base(s.path), ext)
	// lumberjack names backups <base>-<timestamp><ext>.
	files, err := filepath.Glob(filepath.Join(filepath.Dir(s.path), base+"*"+ext))
	if err != nil {
		return nil, err
	}
	byRun := map[string]model.ScheduleResult{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := scanFile(f, func(r model.ScheduleResult) {
			st := r.Start()
			if !start.IsZero() && st.Before(start) {
				return
			}
			if !end.IsZero() && st.After(end) {
				return
			}
			if prev, ok := byRun[r.RunID]; ok && prev.CreatedAt.After(r.CreatedAt) {
				return
			}
			byRun[r.RunID] = r
		}); err != nil {
			return nil, err
		}
	}
	out := make([]model.ScheduleResult, 0, len(byRun))
	for _, r := range byRun {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start().Equal(out[j].Start()) {
			return out[i].Start().Before(out[j].Start())
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func scanFile(path string, fn func(model.ScheduleResult)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r model.ScheduleResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		fn(r)
	}
	return sc.Err()
}

// Close closes the current file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

func init() {
	factory.MustRegister(scheduler.RegisterPublisher, "jsonl", func(conf map[string]any) (scheduler.Publisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLSink(c)
	})
}
