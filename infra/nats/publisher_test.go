package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bess-scheduler/core/model"
)

type fakeConn struct {
	msgs     []*nats.Msg
	pubErr   error
	flushErr error
	flushes  int
	drained  bool
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("flush without deadline")
	}
	f.flushes++
	return f.flushErr
}

func (f *fakeConn) Drain() error { f.drained = true; return nil }

func result() model.ScheduleResult {
	return model.ScheduleResult{
		RunID: "abc",
		Mode:  model.ModeCostOnly,
		Entries: []model.ScheduleEntry{
			{Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Grid: -2, GridExport: 2},
		},
	}
}

func TestPublishSchedule(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "")
	require.NoError(t, p.PublishSchedule(context.Background(), result()))

	require.Len(t, fc.msgs, 1)
	m := fc.msgs[0]
	assert.Equal(t, DefaultSubject, m.Subject)
	assert.Equal(t, "abc", m.Header.Get("Run-Id"))
	assert.Equal(t, "cost_only", m.Header.Get("Mode"))
	assert.Equal(t, 1, fc.flushes)

	var got model.ScheduleResult
	require.NoError(t, json.Unmarshal(m.Data, &got))
	assert.InDelta(t, -2, got.Entries[0].Grid, 1e-9)
}

func TestPublishErrors(t *testing.T) {
	boom := errors.New("connection closed")
	p := newPublisher(&fakeConn{pubErr: boom}, "site.schedule")
	require.ErrorIs(t, p.PublishSchedule(context.Background(), result()), boom)

	p = newPublisher(&fakeConn{flushErr: nats.ErrTimeout}, "site.schedule")
	require.ErrorIs(t, p.PublishSchedule(context.Background(), result()), nats.ErrTimeout)
}

func TestCloseDrains(t *testing.T) {
	fc := &fakeConn{}
	require.NoError(t, newPublisher(fc, "x").Close())
	assert.True(t, fc.drained)
}
