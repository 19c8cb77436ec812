package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/lake-water-quality/internal/config"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes period records to a Kafka topic.
// It implements pipeline.RecordSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// ExportRecords publishes one message per record in a single WriteMessages
// call. Messages are keyed by period id so reruns of a period land on the
// same partition.
func (w *Writer) ExportRecords(ctx context.Context, table, runID string, records []domain.PeriodRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(table, runID, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s: %w", table, err)
	}
	w.logger.Debug("records published", "table", table, "count", len(msgs), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PeriodRecord into a Kafka message.
func serializeToMessage(table, runID string, rec domain.PeriodRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize period record %s: %w", rec.PeriodID, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.PeriodID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(table)},
			{Key: "kind", Value: []byte(rec.Kind)},
			{Key: "status", Value: []byte(rec.Status)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
