// Package hazard holds the hazard event record and the hazard type policy
// table consulted by the VTEC engine and the merger.
package hazard

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrMissingDependency marks an event lacking a field the engine needs.
	ErrMissingDependency = errors.New("hazard event missing required field")
	// ErrImmutableIdentity is returned when an issued event's identity changes.
	ErrImmutableIdentity = errors.New("issued hazard identity is immutable")
)

// Status is the lifecycle state of a hazard event.
type Status string

const (
	StatusPotential Status = "POTENTIAL"
	StatusPending   Status = "PENDING"
	StatusProposed  Status = "PROPOSED"
	StatusIssued    Status = "ISSUED"
	StatusEnding    Status = "ENDING"
	StatusEnded     Status = "ENDED"
	StatusElapsed   Status = "ELAPSED"
)

// HasBeenIssued reports whether the event has gone out in a product.
func (s Status) HasBeenIssued() bool {
	return s == StatusIssued || s == StatusEnding || s == StatusEnded || s == StatusElapsed
}

// Finished reports whether the event has left the active lifecycle.
func (s Status) Finished() bool { return s == StatusEnded || s == StatusElapsed }

// Hydro carries the point-hazard attributes used for H-VTEC and the merger.
type Hydro struct {
	PointID        string    `json:"pointId"`
	FloodSeverity  string    `json:"floodSeverity,omitempty"`
	ImmediateCause string    `json:"immediateCause,omitempty"`
	FloodRecord    string    `json:"floodRecord,omitempty"`
	FloodStage     *float64  `json:"floodStage,omitempty"`
	ActionStage    *float64  `json:"actionStage,omitempty"`
	RiseAbove      time.Time `json:"riseAbove,omitzero"`
	Crest          time.Time `json:"crest,omitzero"`
	FallBelow      time.Time `json:"fallBelow,omitzero"`
	// FallBelowAction is when the forecast drops below action stage.
	FallBelowAction time.Time `json:"fallBelowAction,omitzero"`
	Impacts         []string  `json:"impacts,omitempty"`
}

// Event is a hazard event as held by the session. It is mutable until issued.
type Event struct {
	EventID        string          `json:"eventId"`
	SiteID         string          `json:"siteId"`
	Phen           string          `json:"phen"`
	Sig            string          `json:"sig"`
	Subtype        string          `json:"subtype,omitempty"`
	Status         Status          `json:"status"`
	StartTime      time.Time       `json:"startTime"`
	EndTime        time.Time       `json:"endTime"`
	CreationTime   time.Time       `json:"creationTime,omitzero"`
	IssueTime      time.Time       `json:"issueTime,omitzero"`
	ExpirationTime time.Time       `json:"expirationTime,omitzero"`
	Geometry       json.RawMessage `json:"geometry,omitempty"`
	UGCs           []string        `json:"ugcs"`
	Hydro          *Hydro          `json:"hydro,omitempty"`
	ETNs           []int           `json:"etns,omitempty"`
	VTECCodes      []string        `json:"vtecCodes,omitempty"`
	PILs           []string        `json:"pils,omitempty"`
	// Correction requests a COR product for this event.
	Correction bool   `json:"correction,omitempty"`
	ReplacedBy string `json:"replacedBy,omitempty"`
	Replaces   string `json:"replaces,omitempty"`
}

// HazardType is "PP.S" or "PP.S.subtype".
func (e Event) HazardType() string {
	ht := e.Phen + "." + e.Sig
	if e.Subtype != "" {
		ht += "." + e.Subtype
	}
	return ht
}

// PhenSig is "PP.S" regardless of subtype.
func (e Event) PhenSig() string { return e.Phen + "." + e.Sig }

// ETN is the most recent tracking number, or 0 before issuance.
func (e Event) ETN() int {
	if len(e.ETNs) == 0 {
		return 0
	}
	return e.ETNs[len(e.ETNs)-1]
}

// PointID is the gage identifier of a point hazard, or "".
func (e Event) PointID() string {
	if e.Hydro == nil {
		return ""
	}
	return e.Hydro.PointID
}

// IsHydro reports whether the event is a point (gage) hazard.
func (e Event) IsHydro() bool { return e.PointID() != "" }

// Clone returns a deep copy.
func (e Event) Clone() Event {
	c := e
	c.Geometry = slices.Clone(e.Geometry)
	c.UGCs = slices.Clone(e.UGCs)
	c.ETNs = slices.Clone(e.ETNs)
	c.VTECCodes = slices.Clone(e.VTECCodes)
	c.PILs = slices.Clone(e.PILs)
	if e.Hydro != nil {
		h := *e.Hydro
		h.Impacts = slices.Clone(e.Hydro.Impacts)
		c.Hydro = &h
	}
	return c
}

// Validate checks the fields every engine run depends on.
func (e Event) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: eventId", ErrMissingDependency)
	case len(e.SiteID) != 4:
		return fmt.Errorf("%w: siteId of %s", ErrMissingDependency, e.EventID)
	case len(e.Phen) != 2 || len(e.Sig) != 1:
		return fmt.Errorf("%w: phen/sig of %s", ErrMissingDependency, e.EventID)
	case len(e.UGCs) == 0:
		return fmt.Errorf("%w: ugcs of %s", ErrMissingDependency, e.EventID)
	case e.EndTime.IsZero():
		return fmt.Errorf("%w: endTime of %s", ErrMissingDependency, e.EventID)
	case e.IsHydro() && e.Hydro.FloodStage == nil:
		return fmt.Errorf("%w: flood stage of %s at %s", ErrMissingDependency, e.EventID, e.PointID())
	}
	return nil
}

// CheckUpdate rejects changes to the identity of an issued event.
func CheckUpdate(prev, next Event) error {
	if !prev.Status.HasBeenIssued() {
		return nil
	}
	if prev.HazardType() != next.HazardType() || prev.SiteID != next.SiteID || prev.ETN() != next.ETN() {
		return fmt.Errorf("%w: %s was %s/%s/%04d", ErrImmutableIdentity,
			prev.EventID, prev.HazardType(), prev.SiteID, prev.ETN())
	}
	return nil
}
