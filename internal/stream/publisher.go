// Package stream publishes committed engine events to NATS JetStream for
// downstream consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
)

// StreamName is the JetStream stream holding outbound ledger events.
const StreamName = "SYNTH_LEDGER_EVENTS"

// SubjectPrefix is the subject root; the event type name is appended,
// e.g. synth.ledger.events.PositionLiquidated.
const SubjectPrefix = "synth.ledger.events"

// Publisher drains the engine's publish channel and fans events out to
// JetStream. The engine sends on this channel without blocking, so a slow
// or down broker never stalls ledger operations; the operation log in
// Postgres remains the source of truth.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Envelope
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan event.Envelope, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run publishes until ctx is cancelled or the channel closes. Publish
// failures are logged and counted, never fatal.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				p.logger.Warn().
					Int64("sequence", env.Sequence).
					Str("event_type", env.TypeName).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, env.TypeName)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
