package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
)

func TestMapMessageToRawProduct(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("FFWOAX"),
		Value:     []byte("WGUS53 KOAX 121830\nFFWOAX\n"),
		Topic:     "raw-nws-products",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("noaaport")},
		},
	}

	raw := mapMessageToRawProduct(msg)

	assert.Equal(t, []byte("FFWOAX"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, "raw-nws-products", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "noaaport", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestToMessage(t *testing.T) {
	event := domain.OutputEvent{
		Key:   []byte("FFWOAX-0123456789abcdef"),
		Value: []byte(`{"changes":[]}`),
		Headers: map[string]string{
			"processed_at": "2026-05-12T19:00:00Z",
			"kind":         domain.KindChanges,
			"pil":          "FFWOAX",
		},
	}

	msg := toMessage(event)

	assert.Equal(t, event.Key, msg.Key)
	assert.JSONEq(t, `{"changes":[]}`, string(msg.Value))
	assert.Equal(t, []kafkago.Header{
		{Key: "kind", Value: []byte("changes")},
		{Key: "pil", Value: []byte("FFWOAX")},
		{Key: "processed_at", Value: []byte("2026-05-12T19:00:00Z")},
	}, msg.Headers)
}
