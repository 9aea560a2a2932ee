package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-vtec/internal/config"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
)

// Reader consumes raw products from a Kafka topic as part of a consumer group.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  cfg.BatchFlushInterval,
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch blocks for the first product, then collects more until
// batchSize is reached or the flush interval elapses. Offsets are committed
// through each product's Commit callback.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawProduct, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	batch := []domain.RawProduct{r.toRawProduct(msg)}

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break
			}
			r.logger.Warn("fetch message failed, flushing partial batch", "error", err, "batch_size", len(batch))
			break
		}
		batch = append(batch, r.toRawProduct(msg))
	}
	return batch, nil
}

// Close leaves the consumer group.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) toRawProduct(msg kafkago.Message) domain.RawProduct {
	raw := mapMessageToRawProduct(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

func mapMessageToRawProduct(msg kafkago.Message) domain.RawProduct {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawProduct{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
