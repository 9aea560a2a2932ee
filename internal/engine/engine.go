// Package engine turns the hazard events at a site into segmented products
// carrying fully formed VTEC records.
//
// A run reads the record store, filters events that cannot be issued, assigns
// ETNs, derives an action per event and zone against the most recent stored
// record, and groups the records into products and segments in a stable order.
// When a run is issued it advances the ETN counters and hands the records to a
// Sink (normally the ingester) for persistence.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/hazard"
	"github.com/couchcryptid/storm-data-vtec/internal/ingest"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// ErrETNCollision aborts a run when an event's ETN is already held by an
// active record of another event.
var ErrETNCollision = errors.New("etn collision")

var errNoPartnerETN = errors.New("no partner record to adopt etn from")

// RecordReader reads the current VTEC record store.
type RecordReader interface {
	Records(ctx context.Context) ([]vtec.Record, error)
}

// CounterStore holds the per-year ETN counters.
type CounterStore interface {
	Current(ctx context.Context, key string) (int, error)
	Advance(ctx context.Context, key string, etn int) error
}

// Sink persists the records of an issued run.
type Sink interface {
	Merge(ctx context.Context, records []vtec.Record, now time.Time) (*ingest.Result, error)
}

// Segment is one part of a product: a zone set and the records governing it.
type Segment struct {
	Index     int           `json:"index"`
	UGCs      []string      `json:"ugcs"`
	EventIDs  []string      `json:"eventIds"`
	VTEC      []string      `json:"vtec"`
	PurgeTime time.Time     `json:"purgeTime"`
	Records   []vtec.Record `json:"records"`
}

// Product is the set of segments sharing a PIL.
type Product struct {
	PIL      string    `json:"pil"`
	Segments []Segment `json:"segments"`
}

// Output is the result of one engine run.
type Output struct {
	IssueTime   time.Time           `json:"issueTime"`
	Issued      bool                `json:"issued"`
	Products    []Product           `json:"products"`
	Events      []hazard.Event      `json:"events"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
	Ingest      *ingest.Result      `json:"ingest,omitempty"`
}

// Records returns every record of every product in output order.
func (o *Output) Records() []vtec.Record {
	var out []vtec.Record
	for _, p := range o.Products {
		for _, s := range p.Segments {
			out = append(out, s.Records...)
		}
	}
	return out
}

// Engine derives VTEC for hazard events.
type Engine struct {
	records  RecordReader
	counters CounterStore
	sink     Sink
	table    *hazard.Table
	partners []vtec.Partner
	clock    clockwork.Clock
	class    string
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Runs happen at the clock's current minute.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSink persists issued runs.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithTable replaces the default hazard type table.
func WithTable(t *hazard.Table) Option {
	return func(e *Engine) { e.table = t }
}

// WithPartners replaces the default partner offices.
func WithPartners(p []vtec.Partner) Option {
	return func(e *Engine) { e.partners = p }
}

// WithClass sets the product class letter (O operational, T test/practice,
// E experimental, X experimental VTEC).
func WithClass(class string) Option {
	return func(e *Engine) { e.class = class }
}

// New creates an Engine reading records and counters from the given stores.
func New(records RecordReader, counters CounterStore, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		records:  records,
		counters: counters,
		partners: vtec.DefaultPartners(),
		clock:    clockwork.NewRealClock(),
		class:    vtec.ClassOperational,
		logger:   logger,
	}
	for _, o := range opts {
		o(e)
	}
	if e.table == nil {
		e.table = hazard.DefaultTable()
	}
	return e
}

type candidate struct {
	ev  hazard.Event
	pol hazard.Policy
}

type planned struct {
	ev   hazard.Event
	pol  hazard.Policy
	pil  string
	recs []vtec.Record
}

// Run derives products for events. With issue false the run is a preview:
// ETNs are assigned provisionally, counters are not advanced and nothing is
// persisted.
func (e *Engine) Run(ctx context.Context, events []hazard.Event, issue bool) (*Output, error) {
	now := e.clock.Now().UTC().Truncate(time.Minute)
	stored, err := e.records.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read vtec records: %w", err)
	}

	out := &Output{IssueTime: now, Issued: issue}
	cands := e.eligible(events, stored, out)

	minted := map[string]int{}
	var plans []planned
	for _, c := range cands {
		etn, fresh, err := e.assignETN(ctx, c.ev, stored, now, minted)
		if errors.Is(err, errNoPartnerETN) {
			out.Diagnostics = append(out.Diagnostics, domain.Diagnosef(domain.MissingDependency,
				c.ev.EventID, "%s has no active partner record to take an etn from", c.ev.PhenSig()))
			e.logger.Warn("event filtered", "event_id", c.ev.EventID, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		ev := c.ev.Clone()
		if fresh {
			ev.ETNs = append(ev.ETNs, etn)
		}
		recs, diags := e.eventRecords(ev, c.pol, stored, now)
		out.Diagnostics = append(out.Diagnostics, diags...)
		plans = append(plans, planned{ev: ev, pol: c.pol, pil: productPIL(c.pol, ev.SiteID), recs: recs})
	}

	out.Products = segment(plans)
	out.Events = updateEvents(plans, out.Products, now, issue)

	if issue {
		for _, key := range sortedKeys(minted) {
			if err := e.counters.Advance(ctx, key, minted[key]); err != nil {
				return nil, fmt.Errorf("advance etn counter %s: %w", key, err)
			}
		}
		if e.sink != nil {
			res, err := e.sink.Merge(ctx, out.Records(), now)
			if err != nil {
				return nil, fmt.Errorf("persist vtec records: %w", err)
			}
			out.Ingest = res
		}
	}

	e.logger.Info("vtec engine run",
		"events", len(events), "products", len(out.Products),
		"records", len(out.Records()), "diagnostics", len(out.Diagnostics), "issue", issue)
	return out, nil
}

// eligible drops events that cannot be issued, in event id order.
func (e *Engine) eligible(events []hazard.Event, stored []vtec.Record, out *Output) []candidate {
	var cands []candidate
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			out.Diagnostics = append(out.Diagnostics, domain.Diagnosef(domain.MissingDependency, ev.EventID, "%v", err))
			e.logger.Warn("event filtered", "event_id", ev.EventID, "error", err)
			continue
		}
		if prev, ok := issuedIdentity(stored, ev.EventID); ok {
			if err := hazard.CheckUpdate(prev, ev); err != nil {
				out.Diagnostics = append(out.Diagnostics, domain.Diagnosef(domain.PolicyViolation, ev.EventID, "%v", err))
				e.logger.Warn("event filtered", "event_id", ev.EventID, "error", err)
				continue
			}
		}
		switch ev.Status {
		case hazard.StatusPotential, hazard.StatusEnded, hazard.StatusElapsed:
			e.logger.Debug("event not in product", "event_id", ev.EventID, "status", ev.Status)
			continue
		}
		pol, ok := e.table.Lookup(ev.HazardType())
		if !ok || pol.PIL == "" {
			out.Diagnostics = append(out.Diagnostics, domain.Diagnosef(domain.MissingDependency,
				ev.EventID, "no product policy for hazard type %s", ev.HazardType()))
			e.logger.Warn("event filtered", "event_id", ev.EventID, "hazard_type", ev.HazardType())
			continue
		}
		cands = append(cands, candidate{ev: ev, pol: pol})
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		return cmp.Compare(a.ev.EventID, b.ev.EventID)
	})
	return cands
}

// issuedIdentity rebuilds the identity an event was last issued under from
// its most recent stored record.
func issuedIdentity(stored []vtec.Record, eventID string) (hazard.Event, bool) {
	var last *vtec.Record
	for i, r := range stored {
		if !slices.Contains(r.EventIDs, eventID) {
			continue
		}
		if last == nil || r.IssueTime.After(last.IssueTime) {
			last = &stored[i]
		}
	}
	if last == nil {
		return hazard.Event{}, false
	}
	prev := hazard.Event{
		EventID: eventID,
		SiteID:  last.OfficeID,
		Phen:    last.Phen,
		Sig:     last.Sig,
		Subtype: last.Subtype,
		Status:  hazard.StatusIssued,
	}
	if last.ETN > 0 {
		prev.ETNs = []int{last.ETN}
	}
	return prev, true
}

// updateEvents records the run on each event: its ETN, the VTEC lines and
// PILs it appeared in and, when issued, its new status.
func updateEvents(plans []planned, products []Product, now time.Time, issue bool) []hazard.Event {
	lines := map[string][]string{}
	for _, p := range products {
		for _, s := range p.Segments {
			for _, r := range s.Records {
				for _, id := range r.EventIDs {
					if !slices.Contains(lines[id], r.VTECStr) {
						lines[id] = append(lines[id], r.VTECStr)
					}
				}
			}
		}
	}
	events := make([]hazard.Event, 0, len(plans))
	for _, p := range plans {
		ev := p.ev
		ev.VTECCodes = lines[ev.EventID]
		if len(ev.VTECCodes) > 0 && !slices.Contains(ev.PILs, p.pil) {
			ev.PILs = append(ev.PILs, p.pil)
		}
		switch {
		case !issue:
		case len(ev.VTECCodes) > 0:
			switch ev.Status {
			case hazard.StatusPending, hazard.StatusProposed:
				ev.Status = hazard.StatusIssued
				if ev.IssueTime.IsZero() {
					ev.IssueTime = now
				}
			case hazard.StatusIssued:
				if allExpired(p.recs) {
					ev.Status = hazard.StatusElapsed
				}
			case hazard.StatusEnding:
				ev.Status = hazard.StatusEnded
			}
		case ev.Status == hazard.StatusIssued || ev.Status == hazard.StatusEnding:
			if !vtec.IsUFN(ev.EndTime) && now.After(ev.EndTime.Add(expireGrace)) {
				ev.Status = hazard.StatusElapsed
			}
		}
		events = append(events, ev)
	}
	return events
}

func allExpired(recs []vtec.Record) bool {
	for _, r := range recs {
		if r.Action != vtec.ActionEXP {
			return false
		}
	}
	return len(recs) > 0
}

func productPIL(p hazard.Policy, site string) string {
	if len(site) == 4 {
		return p.PIL + site[1:]
	}
	return p.PIL + site
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
