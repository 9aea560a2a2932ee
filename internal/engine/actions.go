package engine

import (
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/hazard"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

const (
	// expireGrace is how close to its end an ending event may be and still
	// expire rather than cancel.
	expireGrace = 30 * time.Minute
	ufnPurge    = 12 * time.Hour
	minPurge    = 10 * time.Minute
)

// eventRecords derives one record per zone of ev, plus CAN records for zones
// the event no longer covers. Zones whose record ran out within the grace
// window get EXP. An issued event never gets NEW again.
func (e *Engine) eventRecords(ev hazard.Event, pol hazard.Policy, stored []vtec.Record, now time.Time) ([]vtec.Record, []domain.Diagnostic) {
	var diags []domain.Diagnostic
	priors := priorRecords(stored, ev, now)
	active := liveRecords(priors, now)

	start, end := ev.StartTime, ev.EndTime
	if start.IsZero() {
		start = now
	}
	ufn := vtec.IsUFN(end)
	if ufn {
		end = vtec.UFN
	}
	if p, ok := first(active); ok && !pol.AllowTimeChange && timeChanged(p, start, end, now) {
		diags = append(diags, domain.Diagnosef(domain.PolicyViolation, ev.EventID,
			"%s does not allow time changes; keeping %s", ev.HazardType(), p.VTECStr))
		e.logger.Warn("time change not allowed", "event_id", ev.EventID, "hazard_type", ev.HazardType())
		start, end, ufn = p.StartTime, p.EndTime, p.UFN
	}

	base := vtec.Record{
		Key:       ev.PhenSig(),
		Phen:      ev.Phen,
		Sig:       ev.Sig,
		Subtype:   ev.Subtype,
		ETN:       ev.ETN(),
		OfficeID:  ev.SiteID,
		Class:     e.class,
		StartTime: start,
		EndTime:   end,
		IssueTime: now,
		UFN:       ufn,
		HVTEC:     hydroVTEC(ev),
		EventIDs:  []string{ev.EventID},
	}
	ending := ev.Status == hazard.StatusEnding
	issued := ev.Status.HasBeenIssued()

	var recs []vtec.Record
	for _, ugc := range ev.UGCs {
		prior, had := priors[ugc]
		expired := had && !prior.Active(now)
		var act vtec.Action
		switch {
		case ev.Sig == "S":
			act = vtec.ActionROU
		case expired:
			act = vtec.ActionEXP
		case ending:
			if !had {
				continue
			}
			act = endAction(ev, end, ufn, now)
		case !had && len(active) > 0:
			if !pol.AllowAreaChange {
				diags = append(diags, domain.Diagnosef(domain.PolicyViolation, ev.EventID,
					"%s does not allow area changes; %s not added", ev.HazardType(), ugc))
				e.logger.Warn("area change not allowed", "event_id", ev.EventID, "ugc", ugc)
				continue
			}
			act = vtec.ActionEXA
			if p, _ := first(active); timeChanged(p, start, end, now) {
				act = vtec.ActionEXB
			}
		case !had && issued:
			e.logger.Debug("issued event has no record to continue", "event_id", ev.EventID, "ugc", ugc)
			continue
		case !had:
			act = vtec.ActionNEW
		case timeChanged(prior, start, end, now):
			act = vtec.ActionEXT
		default:
			act = vtec.ActionCON
		}

		r := base.Clone()
		r.UGC, r.Action = ugc, act
		if expired {
			r.StartTime, r.EndTime, r.UFN = prior.StartTime, prior.EndTime, prior.UFN
		}
		if ev.Correction && had && !act.Terminal() {
			r.Action, r.PrevAction = vtec.ActionCOR, prior.Action
		}
		r.PurgeTime = purgeTime(r, pol, now)
		r.VTECStr = vtec.Format(r)
		recs = append(recs, r)
	}

	for _, ugc := range sortedUGCs(priors) {
		if slices.Contains(ev.UGCs, ugc) {
			continue
		}
		prior := priors[ugc]
		r := prior.Clone()
		switch {
		case !prior.Active(now):
			r.Action = vtec.ActionEXP
		case ending:
			r.Action = endAction(ev, r.EndTime, r.UFN, now)
		default:
			r.Action = vtec.ActionCAN
		}
		r.PrevAction = ""
		r.Class, r.IssueTime, r.EventIDs = e.class, now, []string{ev.EventID}
		r.PIL, r.Seg = "", 0
		r.PurgeTime = purgeTime(r, pol, now)
		r.VTECStr = vtec.Format(r)
		recs = append(recs, r)
	}
	return recs, diags
}

// priorRecords returns, per zone, the most recent stored record for the
// event's office, type and ETN that is still active or ended within the
// grace window. Records carrying other events' ids are not the event's
// history.
func priorRecords(stored []vtec.Record, ev hazard.Event, now time.Time) map[string]vtec.Record {
	out := map[string]vtec.Record{}
	etn := ev.ETN()
	if etn == 0 {
		return out
	}
	for _, r := range stored {
		if r.OfficeID != ev.SiteID || r.Phen != ev.Phen || r.Sig != ev.Sig || r.ETN != etn {
			continue
		}
		if len(r.EventIDs) > 0 && !slices.Contains(r.EventIDs, ev.EventID) {
			continue
		}
		if cur, ok := out[r.UGC]; ok && cur.IssueTime.After(r.IssueTime) {
			continue
		}
		out[r.UGC] = r
	}
	for ugc, r := range out {
		if !r.Active(now) && !lapsed(r, now) {
			delete(out, ugc)
		}
	}
	return out
}

// lapsed reports whether r ran past its end no more than expireGrace ago
// without being closed.
func lapsed(r vtec.Record, now time.Time) bool {
	if r.Action.Terminal() || r.UFN {
		return false
	}
	return !r.EndTime.After(now) && !now.After(r.EndTime.Add(expireGrace))
}

func liveRecords(priors map[string]vtec.Record, now time.Time) map[string]vtec.Record {
	out := make(map[string]vtec.Record, len(priors))
	for ugc, r := range priors {
		if r.Active(now) {
			out[ugc] = r
		}
	}
	return out
}

func timeChanged(p vtec.Record, start, end, now time.Time) bool {
	if !p.EndTime.Equal(end) {
		return true
	}
	return p.StartTime.After(now) && !p.StartTime.Equal(start)
}

// endAction closes an event: UPG when replaced by another hazard, EXP when
// within the grace window of its end, CAN otherwise.
func endAction(ev hazard.Event, end time.Time, ufn bool, now time.Time) vtec.Action {
	switch {
	case ev.ReplacedBy != "":
		return vtec.ActionUPG
	case !ufn && !end.After(now.Add(expireGrace)):
		return vtec.ActionEXP
	}
	return vtec.ActionCAN
}

func purgeTime(r vtec.Record, pol hazard.Policy, now time.Time) time.Time {
	post := max(pol.ExpirationPost, minPurge)
	switch {
	case r.Action == vtec.ActionCAN || r.Action == vtec.ActionUPG:
		return now.Add(post)
	case r.UFN:
		return now.Add(ufnPurge)
	}
	if t := r.EndTime.Add(post); t.After(now) {
		return t
	}
	return now.Add(post)
}

func hydroVTEC(ev hazard.Event) *vtec.HVTEC {
	if !ev.IsHydro() {
		return nil
	}
	h := ev.Hydro
	return &vtec.HVTEC{
		NWSLI:          h.PointID,
		FloodSeverity:  orDefault(h.FloodSeverity, "0"),
		ImmediateCause: orDefault(h.ImmediateCause, "ER"),
		FloodBegin:     h.RiseAbove,
		FloodCrest:     h.Crest,
		FloodEnd:       h.FallBelow,
		FloodRecord:    orDefault(h.FloodRecord, "OO"),
	}
}

// first returns the active record of the lowest zone code.
func first(active map[string]vtec.Record) (vtec.Record, bool) {
	ugcs := sortedUGCs(active)
	if len(ugcs) == 0 {
		return vtec.Record{}, false
	}
	return active[ugcs[0]], true
}

func sortedUGCs(m map[string]vtec.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
