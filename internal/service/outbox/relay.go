package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/observability"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

var ErrRelayNotConfigured = errors.New("outbox: relay missing dependencies")

// Publisher delivers one message to the bus. A nil error means the bus
// acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// Lease hides a claimed event from other relays. An event whose delivery
	// was not acknowledged within the lease is claimed again.
	Lease       time.Duration
	Backoff     []time.Duration
	TopicPrefix string
	Source      string
}

// Relay drains PENDING outbox events to the bus with at-least-once delivery.
type Relay struct {
	store repository.OutboxStore
	pub   Publisher
	log   *slog.Logger
	cfg   Config
	now   func() time.Time
}

func New(store repository.OutboxStore, pub Publisher, log *slog.Logger, cfg Config) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute}
	}
	if cfg.Source == "" {
		cfg.Source = "app://calendar-engine"
	}
	if log == nil {
		log = slog.Default()
	}

	return &Relay{store: store, pub: pub, log: log, cfg: cfg, now: time.Now}
}

// WithClock replaces time.Now when scheduling retries.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

// Run polls until ctx is done. Failed polls are logged and retried on the
// next tick.
func (r *Relay) Run(ctx context.Context) error {
	if r.store == nil || r.pub == nil {
		return ErrRelayNotConfigured
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := r.ProcessOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.log.Error("outbox poll failed", slog.String("err", err.Error()))
					}
					break
				}
				// A full batch means more may be waiting.
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// ProcessOnce claims and handles one batch. It returns the number of events
// claimed.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	const op = "service.outbox.ProcessOnce"

	events, err := r.store.ClaimOutbox(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, ev := range events {
		if err := r.deliver(ctx, ev); err != nil {
			return len(events), fmt.Errorf("%s: %w", op, err)
		}
	}

	return len(events), nil
}

func (r *Relay) deliver(ctx context.Context, ev domain.OutboxEvent) error {
	payload, headers, err := r.envelope(ev)
	if err == nil {
		err = r.pub.Publish(ctx, r.cfg.TopicPrefix+ev.Topic, ev.PartitionKey, payload, headers)
	}
	if err == nil {
		observability.ObserveDelivery("sent")
		return r.store.MarkOutboxSent(ctx, ev.ID)
	}
	if ctx.Err() != nil {
		// Shutting down; the lease expires and the event is claimed again.
		return ctx.Err()
	}

	attempts := ev.RetryCount + 1
	if attempts >= r.cfg.MaxAttempts {
		observability.ObserveDelivery("failed")
		r.log.Error("outbox event delivery abandoned",
			slog.String("event_id", ev.ID.String()),
			slog.String("event_type", ev.EventType),
			slog.String("aggregate_id", ev.AggregateID),
			slog.Int("attempts", attempts),
			slog.String("err", err.Error()),
		)
		return r.store.MarkOutboxFailed(ctx, ev.ID, attempts, err.Error())
	}

	observability.ObserveDelivery("retry")
	next := r.now().Add(r.backoff(attempts))
	r.log.Warn("outbox event delivery failed",
		slog.String("event_id", ev.ID.String()),
		slog.Int("attempts", attempts),
		slog.Time("next_attempt_at", next),
		slog.String("err", err.Error()),
	)
	return r.store.MarkOutboxRetry(ctx, ev.ID, attempts, err.Error(), next)
}

func (r *Relay) backoff(attempts int) time.Duration {
	i := attempts - 1
	if i >= len(r.cfg.Backoff) {
		i = len(r.cfg.Backoff) - 1
	}
	return r.cfg.Backoff[i]
}

// Envelope is the CloudEvents-style frame put on the bus. Consumers dedupe
// on (aggregateId, eventType, version).
type Envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	AggregateType   string          `json:"aggregateType"`
	AggregateID     string          `json:"aggregateId"`
	EventType       string          `json:"eventType"`
	Version         int64           `json:"version"`
	PartitionKey    string          `json:"partitionKey"`
	Data            json.RawMessage `json:"data"`
}

func (r *Relay) envelope(ev domain.OutboxEvent) ([]byte, map[string]string, error) {
	data := json.RawMessage(ev.Payload)
	if !json.Valid(data) {
		return nil, nil, fmt.Errorf("event %s: payload is not valid JSON", ev.ID)
	}

	b, err := json.Marshal(Envelope{
		SpecVersion:     "1.0",
		ID:              ev.ID.String(),
		Type:            ev.EventType + ".v1",
		Source:          r.cfg.Source,
		Time:            ev.CreatedAt.UTC(),
		DataContentType: "application/json",
		AggregateType:   ev.AggregateType,
		AggregateID:     ev.AggregateID,
		EventType:       ev.EventType,
		Version:         ev.Version,
		PartitionKey:    ev.PartitionKey,
		Data:            data,
	})
	if err != nil {
		return nil, nil, err
	}

	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce-id":        ev.ID.String(),
		"ce-type":      ev.EventType,
	}

	return b, headers, nil
}
