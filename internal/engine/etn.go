package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-vtec/internal/hazard"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// assignETN returns the ETN ev is issued under and whether it is new to the
// event. Statements carry no ETN. Partner-owned hazard types adopt the ETN of
// the partner's active product; all others mint the next number for the
// office, type and year. minted tracks numbers handed out earlier in the run.
func (e *Engine) assignETN(ctx context.Context, ev hazard.Event, stored []vtec.Record, now time.Time, minted map[string]int) (int, bool, error) {
	if ev.Sig == "S" {
		return 0, false, nil
	}
	if etn := ev.ETN(); etn > 0 {
		if holder, ok := collision(stored, ev, etn, now); ok {
			return 0, false, fmt.Errorf("%w: %s.%04d for %s is held by %s", ErrETNCollision,
				ev.PhenSig(), etn, ev.EventID, holder)
		}
		return etn, false, nil
	}

	if p, ok := vtec.PartnerFor(e.partners, ev.PhenSig()); ok && p.Office != ev.SiteID {
		etn := partnerETN(stored, p.Office, ev, now)
		if etn == 0 {
			return 0, false, fmt.Errorf("%w: %s from %s", errNoPartnerETN, ev.PhenSig(), p.Office)
		}
		return etn, true, nil
	}

	key := vtec.CounterKey(ev.SiteID, ev.Phen, ev.Sig, now.Year())
	last, ok := minted[key]
	if !ok {
		cur, err := e.counters.Current(ctx, key)
		if err != nil {
			return 0, false, fmt.Errorf("read etn counter %s: %w", key, err)
		}
		last = max(cur, storedETN(stored, ev, now.Year()))
	}
	minted[key] = last + 1
	return last + 1, true, nil
}

// collision reports the event holding etn when it is not ev. Records without
// event ids (decoded from other offices' products) never collide.
func collision(stored []vtec.Record, ev hazard.Event, etn int, now time.Time) (string, bool) {
	for _, r := range stored {
		if r.OfficeID != ev.SiteID || r.Phen != ev.Phen || r.Sig != ev.Sig || r.ETN != etn {
			continue
		}
		if !r.Active(now) || len(r.EventIDs) == 0 || slices.Contains(r.EventIDs, ev.EventID) {
			continue
		}
		return r.EventIDs[0], true
	}
	return "", false
}

// storedETN is the highest ETN the store holds for the event's office and
// type in year.
func storedETN(stored []vtec.Record, ev hazard.Event, year int) int {
	highest := 0
	for _, r := range stored {
		if r.OfficeID == ev.SiteID && r.Phen == ev.Phen && r.Sig == ev.Sig && r.IssueTime.Year() == year {
			highest = max(highest, r.ETN)
		}
	}
	return highest
}

// partnerETN picks the partner's most recently issued active record of the
// event's type, preferring one that covers the event's zones.
func partnerETN(stored []vtec.Record, office string, ev hazard.Event, now time.Time) int {
	var best, bestCovering *vtec.Record
	for i := range stored {
		r := &stored[i]
		if r.OfficeID != office || r.Phen != ev.Phen || r.Sig != ev.Sig || !r.Active(now) {
			continue
		}
		if best == nil || r.IssueTime.After(best.IssueTime) {
			best = r
		}
		if slices.Contains(ev.UGCs, r.UGC) && (bestCovering == nil || r.IssueTime.After(bestCovering.IssueTime)) {
			bestCovering = r
		}
	}
	switch {
	case bestCovering != nil:
		return bestCovering.ETN
	case best != nil:
		return best.ETN
	}
	return 0
}
