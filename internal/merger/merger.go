// Package merger reconciles recommended hazard events with the events already
// in a session.
package merger

import (
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/hazard"
)

// FallingLimbWindow is how soon a river must fall below action stage for a
// warning to ride out its falling limb instead of dropping to an advisory.
const FallingLimbWindow = 5 * time.Hour

// Result lists the current events to delete and the events to keep, updated
// or newly recommended.
type Result struct {
	ToBeDeleted []string            `json:"toBeDeletedIds"`
	Merged      []hazard.Event      `json:"mergedEvents"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// Merger applies recommender output to current events.
type Merger struct {
	table  *hazard.Table
	logger *slog.Logger
	newID  func() string
}

// Option configures a Merger.
type Option func(*Merger)

// WithIDs sets the generator for ids of new events.
func WithIDs(gen func() string) Option {
	return func(m *Merger) { m.newID = gen }
}

// New creates a Merger using the hazard type policy in table.
func New(table *hazard.Table, logger *slog.Logger, opts ...Option) *Merger {
	m := &Merger{
		table:  table,
		logger: logger,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type session struct {
	current []hazard.Event
	matched map[int]bool
	deleted map[int]bool
	ids     map[string]bool
	res     Result
}

// Merge reconciles recommended with current at now. Current events without a
// recommendation are deleted when never issued and set ending otherwise.
func (m *Merger) Merge(current, recommended []hazard.Event, now time.Time) Result {
	s := &session{
		current: make([]hazard.Event, len(current)),
		matched: map[int]bool{},
		deleted: map[int]bool{},
		ids:     map[string]bool{},
	}
	for i, c := range current {
		s.current[i] = c.Clone()
		s.ids[c.EventID] = true
	}

	var fresh []hazard.Event
	for _, rec := range recommended {
		if r, ok := m.apply(s, rec.Clone(), now); ok {
			fresh = append(fresh, r)
		}
	}

	for i, c := range s.current {
		switch {
		case s.deleted[i]:
		case s.matched[i]:
			s.res.Merged = append(s.res.Merged, c)
		case c.Status.Finished() || c.Status == hazard.StatusEnding:
		case c.Status.HasBeenIssued():
			c.Status = hazard.StatusEnding
			s.res.Merged = append(s.res.Merged, c)
		default:
			s.res.ToBeDeleted = append(s.res.ToBeDeleted, c.EventID)
		}
	}
	s.res.Merged = append(s.res.Merged, fresh...)

	m.logger.Info("recommendations merged",
		"current", len(current), "recommended", len(recommended),
		"merged", len(s.res.Merged), "deleted", len(s.res.ToBeDeleted))
	return s.res
}

// apply handles one recommendation, updating the matched current event in
// place. It returns the recommendation when it joins the session as a new
// event.
func (m *Merger) apply(s *session, r hazard.Event, now time.Time) (hazard.Event, bool) {
	if r.EventID == "" {
		r.EventID = m.newID()
	}
	if err := r.Validate(); err != nil {
		s.res.Diagnostics = append(s.res.Diagnostics, domain.Diagnosef(domain.MissingDependency, r.EventID, "%v", err))
		m.logger.Warn("recommendation skipped", "event_id", r.EventID, "error", err)
		return r, false
	}

	i := match(s.current, r)
	if i < 0 {
		return m.admit(s, r), true
	}
	s.matched[i] = true
	c := &s.current[i]

	switch {
	case c.Status.Finished():
		return m.admit(s, r), true

	case (c.Status == hazard.StatusPotential || c.Status == hazard.StatusPending) &&
		c.HazardType() == r.HazardType() && (c.Sig == "W" || c.Sig == "Y"):
		m.logger.Debug("duplicate pending recommendation dropped", "event_id", c.EventID)
		return r, false

	case c.HazardType() != r.HazardType():
		return m.transition(s, i, r, now)
	}

	copyForecast(c, r)
	adjustEnd(c, r, now)
	return r, false
}

// transition handles a recommendation of a different hazard type than the
// current event.
func (m *Merger) transition(s *session, i int, r hazard.Event, now time.Time) (hazard.Event, bool) {
	c := &s.current[i]
	pol, _ := m.table.Lookup(c.HazardType())
	if !pol.MayBeReplacedBy(r.HazardType()) {
		s.res.Diagnostics = append(s.res.Diagnostics, domain.Diagnosef(domain.PolicyViolation, c.EventID,
			"%s may not be replaced by %s", c.HazardType(), r.HazardType()))
		m.logger.Warn("disallowed hazard transition", "event_id", c.EventID,
			"from", c.HazardType(), "to", r.HazardType())
		if c.Status.HasBeenIssued() {
			c.Status = hazard.StatusEnding
			return m.admit(s, r), true
		}
		s.res.ToBeDeleted = append(s.res.ToBeDeleted, c.EventID)
		s.deleted[i] = true
		return m.admit(s, r), true
	}

	if c.Status.HasBeenIssued() && c.PhenSig() == "FL.W" && r.PhenSig() == "FL.Y" && fallingLimb(*c, r, now) {
		m.logger.Debug("advisory suppressed on falling limb", "event_id", c.EventID)
		copyForecast(c, r)
		return r, false
	}

	c.Status = hazard.StatusEnding
	c.ReplacedBy = m.headline(r.HazardType())
	r.Replaces = m.headline(c.HazardType())
	return m.admit(s, r), true
}

// admit prepares r as a new pending event with an id unique in the session.
func (m *Merger) admit(s *session, r hazard.Event) hazard.Event {
	if s.ids[r.EventID] {
		r.EventID = m.newID()
	}
	s.ids[r.EventID] = true
	r.Status = hazard.StatusPending
	r.ETNs, r.VTECCodes, r.PILs = nil, nil, nil
	return r
}

func (m *Merger) headline(hazardType string) string {
	return cases.Title(language.English).String(m.table.Headline(hazardType))
}

// match finds the current event r refers to: by point for point hazards and
// by event id otherwise. Among several events at a point the latest
// unfinished one wins.
func match(current []hazard.Event, r hazard.Event) int {
	if !r.IsHydro() {
		return slices.IndexFunc(current, func(c hazard.Event) bool { return c.EventID == r.EventID })
	}
	best := -1
	for i, c := range current {
		if c.PointID() != r.PointID() {
			continue
		}
		if best < 0 || (current[best].Status.Finished() && !c.Status.Finished()) ||
			(current[best].Status.Finished() == c.Status.Finished() && c.CreationTime.After(current[best].CreationTime)) {
			best = i
		}
	}
	return best
}

// fallingLimb reports whether the forecast falls below action stage within
// FallingLimbWindow of now.
func fallingLimb(c, r hazard.Event, now time.Time) bool {
	fall := time.Time{}
	if r.Hydro != nil {
		fall = r.Hydro.FallBelowAction
	}
	if fall.IsZero() && c.Hydro != nil {
		fall = c.Hydro.FallBelowAction
	}
	return !fall.IsZero() && !fall.After(now.Add(FallingLimbWindow))
}

// copyForecast carries the recommender's hydrologic fields into c.
func copyForecast(c *hazard.Event, r hazard.Event) {
	if r.Hydro == nil {
		return
	}
	if c.Hydro == nil {
		c.Hydro = &hazard.Hydro{PointID: r.Hydro.PointID}
	}
	h, rh := c.Hydro, r.Hydro
	h.RiseAbove, h.Crest, h.FallBelow, h.FallBelowAction = rh.RiseAbove, rh.Crest, rh.FallBelow, rh.FallBelowAction
	if rh.FloodSeverity != "" {
		h.FloodSeverity = rh.FloodSeverity
	}
	if rh.ImmediateCause != "" {
		h.ImmediateCause = rh.ImmediateCause
	}
	if rh.FloodRecord != "" {
		h.FloodRecord = rh.FloodRecord
	}
	if rh.FloodStage != nil {
		h.FloodStage = rh.FloodStage
	}
	if rh.ActionStage != nil {
		h.ActionStage = rh.ActionStage
	}
	if len(rh.Impacts) > 0 {
		h.Impacts = slices.Clone(rh.Impacts)
	}
}

// adjustEnd takes the recommended end time and moves an ending event back to
// issued when the end is pushed out.
func adjustEnd(c *hazard.Event, r hazard.Event, now time.Time) {
	if r.EndTime.IsZero() || r.EndTime.Equal(c.EndTime) {
		return
	}
	extended := r.EndTime.After(c.EndTime)
	c.EndTime = r.EndTime
	if c.Status == hazard.StatusEnding && extended && r.EndTime.After(now) {
		c.Status = hazard.StatusIssued
	}
}
