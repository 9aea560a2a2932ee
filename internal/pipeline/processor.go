package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-vtec/internal/decoder"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/ingest"
	"github.com/couchcryptid/storm-data-vtec/internal/observability"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// Decoder parses product text.
type Decoder interface {
	Decode(text string, ref time.Time) (*decoder.Product, error)
}

// Ingester applies decoded records to the store.
type Ingester interface {
	Merge(ctx context.Context, decoded []vtec.Record, now time.Time) (*ingest.Result, error)
}

// HeadlineSource names hazard types, e.g. "FF.W" as "FLASH FLOOD WARNING".
type HeadlineSource interface {
	Headline(hazardType string) string
}

// ChangeSummary is the message published for a product that changed the
// store.
type ChangeSummary struct {
	Header      decoder.Header      `json:"header"`
	Changes     []ingest.Change     `json:"changes"`
	Headlines   map[string]string   `json:"headlines,omitempty"`
	Purged      int                 `json:"purged"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
	ProcessedAt time.Time           `json:"processedAt"`
}

// VTECProcessor implements Processor with the decoder and ingester.
type VTECProcessor struct {
	decoder   Decoder
	ingester  Ingester
	headlines HeadlineSource
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// ProcessorOption configures a VTECProcessor.
type ProcessorOption func(*VTECProcessor)

// WithHeadlines adds hazard headlines to change summaries.
func WithHeadlines(h HeadlineSource) ProcessorOption {
	return func(p *VTECProcessor) { p.headlines = h }
}

// NewProcessor creates a VTECProcessor.
func NewProcessor(d Decoder, in Ingester, metrics *observability.Metrics, logger *slog.Logger, opts ...ProcessorOption) *VTECProcessor {
	p := &VTECProcessor{decoder: d, ingester: in, metrics: metrics, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process decodes raw and merges its records. Day-hour-minute stamps are
// resolved against the message timestamp when present.
func (p *VTECProcessor) Process(ctx context.Context, raw domain.RawProduct) ([]domain.OutputEvent, error) {
	now := domain.Now()
	ref := raw.Timestamp
	if ref.IsZero() {
		ref = now
	}

	prod, err := p.decoder.Decode(string(raw.Value), ref)
	if err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	p.observeDiagnostics(prod.Diagnostics)
	p.metrics.RecordsDecoded.Add(float64(len(prod.Records)))

	res, err := p.ingester.Merge(ctx, prod.Records, now)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", prod.Header.PIL, err)
	}
	p.observeDiagnostics(res.Diagnostics)
	p.metrics.RecordsPurged.Add(float64(len(res.Purged)))
	for _, r := range res.Decoded {
		p.metrics.StoreChanges.WithLabelValues(string(r.Action)).Inc()
	}

	var out []domain.OutputEvent
	if len(res.Changes) > 0 {
		diags := append(append([]domain.Diagnostic(nil), prod.Diagnostics...), res.Diagnostics...)
		ev, err := changesMessage(ChangeSummary{
			Header:      prod.Header,
			Changes:     res.Changes,
			Headlines:   p.headlinesFor(res.Changes),
			Purged:      len(res.Purged),
			Diagnostics: diags,
			ProcessedAt: now,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	for _, n := range res.Notifications {
		ev, err := notificationMessage(n, prod.Header, now)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}

	p.logger.Debug("product processed",
		"pil", prod.Header.PIL, "office", prod.Header.Office,
		"records", len(prod.Records), "changes", len(res.Changes), "messages", len(out))
	return out, nil
}

func (p *VTECProcessor) observeDiagnostics(diags []domain.Diagnostic) {
	for _, d := range diags {
		p.metrics.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
		if d.Kind == domain.MalformedInput {
			p.metrics.SegmentsRejected.Inc()
		}
	}
}

func (p *VTECProcessor) headlinesFor(changes []ingest.Change) map[string]string {
	if p.headlines == nil {
		return nil
	}
	out := make(map[string]string, len(changes))
	for _, c := range changes {
		if h := p.headlines.Headline(c.PhenSig); h != "" {
			out[c.PhenSig] = h
		}
	}
	return out
}

func changesMessage(s ChangeSummary) (domain.OutputEvent, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize change summary: %w", err)
	}
	h := s.Header
	return domain.OutputEvent{
		Key:   []byte(domain.MessageKey(h.PIL, h.Office, h.PIL, h.DDHHMM, h.BBB)),
		Value: data,
		Headers: map[string]string{
			"kind":         domain.KindChanges,
			"office":       h.Office,
			"pil":          h.PIL,
			"processed_at": s.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}

func notificationMessage(n ingest.Notification, h decoder.Header, now time.Time) (domain.OutputEvent, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize notification: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(domain.MessageKey(n.Kind, n.Office, n.PhenSig, strconv.Itoa(n.ETN), h.DDHHMM, h.BBB)),
		Value: data,
		Headers: map[string]string{
			"kind":         domain.KindNotification,
			"office":       n.Office,
			"pil":          n.PIL,
			"phensig":      n.PhenSig,
			"processed_at": now.Format(time.RFC3339),
		},
	}, nil
}
