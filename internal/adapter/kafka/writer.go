// Package kafka publishes event changes to a Kafka topic for downstream
// consumers. Publishing is optional and never blocks ingestion.
package kafka

import (
	"context"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sambandhq/samband-ingest/internal/fetch"
)

// Writer produces event change messages to a Kafka topic.
// It implements fetch.ChangePublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the change topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishChanges serializes and publishes new and updated events in a single
// WriteMessages call. The message value carries the event payload verbatim
// as received from the feed.
func (w *Writer) PublishChanges(ctx context.Context, changes []fetch.Change) error {
	if len(changes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(changes))
	for i := range changes {
		msgs[i] = changeToMessage(changes[i])
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// changeToMessage maps one upsert change onto a Kafka message keyed by the
// feed event id so updates to an event land on the same partition.
func changeToMessage(change fetch.Change) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(change.Raw.ID, 10)),
		Value: change.Raw.Payload,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(change.Outcome.String())},
			{Key: "event_type", Value: []byte(change.Raw.Type)},
		},
	}
}
