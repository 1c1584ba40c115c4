package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/bess-scheduler/core/factory"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/logger"
)

// Config selects the brokers and topic schedules are written to.
type Config struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one record per schedule, keyed by run id so a compacted
// topic keeps the latest version of each run.
type Publisher struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	log     logger.Logger
}

// NewPublisher builds a synchronous writer that waits for the leader ack.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newPublisher(w, cfg), nil
}

func newPublisher(w messageWriter, cfg Config) *Publisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{w: w, topic: cfg.Topic, timeout: timeout, log: logger.New("kafka_publisher")}
}

// PublishSchedule writes res as JSON.
func (p *Publisher) PublishSchedule(ctx context.Context, res model.ScheduleResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("kafka: encode schedule: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(res.RunID),
		Value: b,
		Time:  res.CreatedAt,
		Headers: []kafka.Header{
			{Key: "mode", Value: []byte(res.Mode)},
			{Key: "start", Value: []byte(res.Start().UTC().Format(time.RFC3339))},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", p.topic, err)
	}
	p.log.Infof("published run %s to %s", res.RunID, p.topic)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error { return p.w.Close() }

func init() {
	factory.MustRegister(scheduler.RegisterPublisher, "kafka", func(conf map[string]any) (scheduler.Publisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}
