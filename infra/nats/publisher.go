package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/logger"
)

// DefaultSubject is used when Config.Subject is empty.
const DefaultSubject = "bess.schedule"

// Config holds the server URL and the subject schedules are published on.
type Config struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Token   string `json:"token"`
}

type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher sends schedules as core NATS messages.
type Publisher struct {
	nc      conn
	subject string
	log     logger.Logger
}

// NewPublisher connects to cfg.URL, nats.DefaultURL when empty.
func NewPublisher(cfg Config) (*Publisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	name := cfg.Name
	if name == "" {
		name = "bess-scheduler"
	}
	opts := []nats.Option{nats.Name(name), nats.MaxReconnects(-1), nats.ReconnectWait(2 * time.Second)}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	log := logger.New("nats_publisher")
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) { log.Infof("reconnected to %s", nc.ConnectedUrl()) }),
	)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	p := newPublisher(nc, cfg.Subject)
	p.log = log
	return p, nil
}

func newPublisher(nc conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject, log: logger.New("nats_publisher")}
}

// PublishSchedule publishes res and flushes so that a lost connection is
// reported to the caller.
func (p *Publisher) PublishSchedule(ctx context.Context, res model.ScheduleResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("nats: encode schedule: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Run-Id", res.RunID)
	msg.Header.Set("Mode", string(res.Mode))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish %s: %w", p.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	p.log.Infof("published run %s on %s", res.RunID, p.subject)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error { return p.nc.Drain() }

func init() {
	factory.MustRegister(scheduler.RegisterPublisher, "nats", func(conf map[string]any) (scheduler.Publisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}
