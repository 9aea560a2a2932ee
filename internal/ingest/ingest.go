// Package ingest merges decoded VTEC records into the record store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/store"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// RecordStore is the persistent VTEC record list.
type RecordStore interface {
	Records(ctx context.Context) ([]vtec.Record, error)
	Update(ctx context.Context, fn store.UpdateFunc) error
}

// Backupper writes a timestamped copy of the store.
type Backupper interface {
	Backup(now time.Time, retention time.Duration) (string, error)
}

// Change summarizes one action applied to a set of zones.
type Change struct {
	PIL     string      `json:"pil"`
	Office  string      `json:"officeid"`
	PhenSig string      `json:"phensig"`
	ETN     int         `json:"etn"`
	Action  vtec.Action `json:"act"`
	UGCs    []string    `json:"ugcs"`
}

// Notification announces a partner product that touches the local office.
type Notification struct {
	Kind    string   `json:"kind"`
	Office  string   `json:"office"`
	PIL     string   `json:"pil"`
	PhenSig string   `json:"phensig"`
	ETN     int      `json:"etn"`
	UGCs    []string `json:"ugcs"`
}

// Result is the audit trail of one merge.
type Result struct {
	Purged        []vtec.Record       `json:"purgedRecords"`
	Replaced      []vtec.Record       `json:"replacedRecords"`
	Decoded       []vtec.Record       `json:"decodedRecords"`
	DBChanged     bool                `json:"dbChanged"`
	OldRecords    []vtec.Record       `json:"oldVtecRecords"`
	Changes       []Change            `json:"changeSummary"`
	Notifications []Notification      `json:"notifications,omitempty"`
	Diagnostics   []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// Ingester applies decoded records to the store.
type Ingester struct {
	store     RecordStore
	logger    *slog.Logger
	backup    Backupper
	retention time.Duration
	partners  []vtec.Partner
	notify    bool
	local     map[string]bool
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithBackups writes a backup after every merge that changes the store.
func WithBackups(b Backupper, retention time.Duration) Option {
	return func(in *Ingester) {
		in.backup = b
		in.retention = retention
	}
}

// WithPartnerNotifications emits notifications for records issued by
// partners.
func WithPartnerNotifications(partners []vtec.Partner) Option {
	return func(in *Ingester) {
		in.partners = partners
		in.notify = true
	}
}

// WithLocalZones limits partner notifications to records for the given
// zones. Without it every partner record is reported.
func WithLocalZones(ugcs []string) Option {
	return func(in *Ingester) {
		if len(ugcs) == 0 {
			return
		}
		in.local = make(map[string]bool, len(ugcs))
		for _, u := range ugcs {
			in.local[strings.ToUpper(u)] = true
		}
	}
}

// New creates an Ingester over s.
func New(s RecordStore, logger *slog.Logger, opts ...Option) *Ingester {
	in := &Ingester{store: s, logger: logger, retention: store.DefaultRetention}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Merge squeezes expired records and applies decoded, all under the store's
// write lock. Decoded records are applied in order.
func (in *Ingester) Merge(ctx context.Context, decoded []vtec.Record, now time.Time) (*Result, error) {
	res := &Result{}
	err := in.store.Update(ctx, func(records []vtec.Record) ([]vtec.Record, bool, error) {
		res.OldRecords = cloneAll(records)

		kept := make([]vtec.Record, 0, len(records)+len(decoded))
		for _, r := range records {
			if Squeezable(r, now) {
				res.Purged = append(res.Purged, r)
				continue
			}
			kept = append(kept, r)
		}

		index := make(map[vtec.Identity]int, len(kept))
		for i, r := range kept {
			index[r.Identity()] = i
		}

		var applied []vtec.Record
		for _, d := range decoded {
			i, exists := index[d.Identity()]
			if exists {
				prior := kept[i]
				if sameRecord(prior, d) {
					continue
				}
				if prior.Action.Terminal() {
					res.Diagnostics = append(res.Diagnostics, domain.Diagnosef(domain.StoreConflict,
						d.Identity().String(), "%s arrived after terminal %s; stored record kept", d.Action, prior.Action))
					in.logger.Warn("decoded record conflicts with closed record",
						"vtec", d.VTECStr, "ugc", d.UGC, "stored_action", prior.Action)
					continue
				}
				if d.Action == vtec.ActionCOR {
					d.PrevAction = prior.Action
				}
				res.Replaced = append(res.Replaced, prior)
				kept[i] = d.Clone()
			} else {
				index[d.Identity()] = len(kept)
				kept = append(kept, d.Clone())
			}
			applied = append(applied, d)
		}

		res.Decoded = applied
		res.DBChanged = len(res.Purged) > 0 || len(applied) > 0
		return kept, res.DBChanged, nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge vtec records: %w", err)
	}

	res.Changes = summarize(res.Decoded)
	if in.notify {
		res.Notifications = in.notifications(res.Decoded)
	}
	if res.DBChanged && in.backup != nil {
		if name, err := in.backup.Backup(now, in.retention); err != nil {
			in.logger.Warn("vtec backup failed", "error", err)
		} else if name != "" {
			in.logger.Debug("vtec backup written", "path", name)
		}
	}
	in.logger.Info("vtec records merged",
		"decoded", len(decoded), "applied", len(res.Decoded),
		"purged", len(res.Purged), "replaced", len(res.Replaced), "changed", res.DBChanged)
	return res, nil
}

// Squeezable reports whether r may be dropped from the store at now: its
// purge time has passed and the event is closed or over.
func Squeezable(r vtec.Record, now time.Time) bool {
	if !r.PurgeTime.Before(now) {
		return false
	}
	return r.Action.Terminal() || (!r.UFN && r.EndTime.Before(now))
}

func sameRecord(a, b vtec.Record) bool {
	if a.Action != b.Action || a.VTECStr != b.VTECStr || a.PIL != b.PIL || a.Seg != b.Seg || a.UFN != b.UFN {
		return false
	}
	if !a.StartTime.Equal(b.StartTime) || !a.EndTime.Equal(b.EndTime) ||
		!a.IssueTime.Equal(b.IssueTime) || !a.PurgeTime.Equal(b.PurgeTime) {
		return false
	}
	switch {
	case a.HVTEC == nil && b.HVTEC == nil:
		return true
	case a.HVTEC == nil || b.HVTEC == nil:
		return false
	}
	return vtec.FormatH(*a.HVTEC) == vtec.FormatH(*b.HVTEC)
}

func summarize(recs []vtec.Record) []Change {
	var out []Change
	for _, r := range recs {
		i := slices.IndexFunc(out, func(c Change) bool {
			return c.PIL == r.PIL && c.Office == r.OfficeID && c.PhenSig == r.PhenSig() &&
				c.ETN == r.ETN && c.Action == r.Action
		})
		if i < 0 {
			out = append(out, Change{PIL: r.PIL, Office: r.OfficeID, PhenSig: r.PhenSig(), ETN: r.ETN, Action: r.Action})
			i = len(out) - 1
		}
		out[i].UGCs = append(out[i].UGCs, r.UGC)
	}
	return out
}

// notifications groups applied partner records for local zones by product
// and event. Watch county lists are reported as WCL; other partner products by
// partner name.
func (in *Ingester) notifications(recs []vtec.Record) []Notification {
	var out []Notification
	for _, r := range recs {
		p, ok := vtec.PartnerByOffice(in.partners, r.OfficeID)
		if !ok || !p.Issues(r.PhenSig()) {
			continue
		}
		if in.local != nil && !in.local[r.UGC] {
			continue
		}
		kind := p.Name
		if strings.HasPrefix(r.PIL, "WCL") {
			kind = "WCL"
		}
		i := slices.IndexFunc(out, func(n Notification) bool {
			return n.Kind == kind && n.PIL == r.PIL && n.PhenSig == r.PhenSig() && n.ETN == r.ETN
		})
		if i < 0 {
			out = append(out, Notification{Kind: kind, Office: r.OfficeID, PIL: r.PIL, PhenSig: r.PhenSig(), ETN: r.ETN})
			i = len(out) - 1
		}
		out[i].UGCs = append(out[i].UGCs, r.UGC)
	}
	return out
}

func cloneAll(recs []vtec.Record) []vtec.Record {
	out := make([]vtec.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
