package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// RecognitionHandler processes one decoded recognition event. A returned
// error naks the message for redelivery.
type RecognitionHandler func(ctx context.Context, e models.RecognitionEvent) error

// ConsumeOptions tune ConsumeRecognitions.
type ConsumeOptions struct {
	// Workers is the number of goroutines handling messages; <= 0 means 1.
	Workers int
	// NewOnly skips messages published before the consumer was created.
	// The API uses it for live broadcast; the worker replays everything.
	NewOnly bool
	// Outcomes restricts delivery to these outcomes. Empty means all.
	Outcomes []models.Outcome
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func consumerConfig(name string, opts ConsumeOptions) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Name:       name,
		Durable:    name,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    30 * time.Second,
		MaxDeliver: 5,
	}
	if opts.NewOnly {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}
	switch len(opts.Outcomes) {
	case 0:
		cfg.FilterSubject = RecognitionsSubjectBase + ".>"
	case 1:
		cfg.FilterSubject = Subject(opts.Outcomes[0])
	default:
		for _, o := range opts.Outcomes {
			cfg.FilterSubjects = append(cfg.FilterSubjects, Subject(o))
		}
	}
	return cfg
}

// ConsumeRecognitions starts a durable pull consumer on the RECOGNITIONS
// stream and returns once it is running. Processing stops when ctx is done.
func (c *Consumer) ConsumeRecognitions(ctx context.Context, consumerName string, handler RecognitionHandler, opts ConsumeOptions) error {
	stream, err := c.js.Stream(ctx, RecognitionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", RecognitionsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig(consumerName, opts))
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	workers := max(1, opts.Workers)
	msgCh := make(chan jetstream.Msg, workers*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workers*5, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch recognitions error", "consumer", consumerName, "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workers; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				handleMessage(ctx, workerID, msg, handler)
			}
		}(i)
	}

	slog.Info("recognition consumer started", "consumer", consumerName, "workers", workers)
	return nil
}

func handleMessage(ctx context.Context, workerID int, msg jetstream.Msg, handler RecognitionHandler) {
	var e models.RecognitionEvent
	if err := json.Unmarshal(msg.Data(), &e); err != nil {
		slog.Error("malformed recognition event, dropping", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if err := handler(ctx, e); err != nil {
		slog.Error("process recognition error", "worker", workerID, "error", err, "subject", msg.Subject(), "event_id", e.ID)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
