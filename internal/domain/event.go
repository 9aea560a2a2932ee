package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RawProduct is one NWS text product read from the source topic. Value holds
// the bulletin text exactly as transmitted.
type RawProduct struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Message kinds carried in the "kind" header of output events.
const (
	KindChanges      = "changes"
	KindNotification = "notification"
)

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// MessageKey derives a stable key from the parts identifying a message, so a
// replayed product produces the same key. The prefix is kept readable.
func MessageKey(prefix string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	short := hex.EncodeToString(hash[:8])
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}
