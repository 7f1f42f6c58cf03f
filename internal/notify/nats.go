// Package notify publishes finished batch outcomes to NATS JetStream for
// downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ffl/batch-ingester/internal/batch"
)

const (
	// StreamName is the JetStream stream holding batch outcomes.
	StreamName = "FFL_BATCHES"

	// SubjectPrefix is followed by the batch status, e.g. ffl.batches.failed.
	SubjectPrefix = "ffl.batches"
)

// JetStreamPublisher is the subset of jetstream.JetStream used here.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher sends one message per batch outcome. The batch ID is the
// message ID, so a redelivered publish is deduplicated by the stream.
type Publisher struct {
	js JetStreamPublisher
}

// NewPublisher creates a publisher over js.
func NewPublisher(js JetStreamPublisher) *Publisher {
	return &Publisher{js: js}
}

// Notify implements batch.Notifier.
func (p *Publisher) Notify(ctx context.Context, o batch.Outcome) error {
	data, err := json.Marshal(o.Event())
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	subject := Subject(o.Status)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(o.BatchID.String()))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	slog.Debug("batch outcome published", "batch_id", o.BatchID, "subject", subject, "seq", ack.Sequence)
	return nil
}

// Subject returns the subject outcomes with status are published on.
func Subject(status batch.Status) string {
	return SubjectPrefix + "." + string(status)
}

// EnsureStream creates or updates the outcome stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	slog.Info("ensured outcome stream", "stream", StreamName)
	return nil
}
