package vtec

import (
	"fmt"
	"slices"
	"time"
)

// Action is a three-letter P-VTEC action code.
type Action string

const (
	ActionNEW Action = "NEW"
	ActionCON Action = "CON"
	ActionEXT Action = "EXT"
	ActionEXA Action = "EXA"
	ActionEXB Action = "EXB"
	ActionUPG Action = "UPG"
	ActionCAN Action = "CAN"
	ActionEXP Action = "EXP"
	ActionCOR Action = "COR"
	ActionROU Action = "ROU"
)

// Actions lists every valid action code.
var Actions = []Action{
	ActionNEW, ActionCON, ActionEXT, ActionEXA, ActionEXB,
	ActionUPG, ActionCAN, ActionEXP, ActionCOR, ActionROU,
}

// Valid reports whether a is a known action code.
func (a Action) Valid() bool { return slices.Contains(Actions, a) }

// Terminal reports whether a closes the event for the zone.
func (a Action) Terminal() bool {
	return a == ActionCAN || a == ActionEXP || a == ActionUPG
}

// Product classes.
const (
	ClassOperational  = "O"
	ClassTest         = "T"
	ClassExperimental = "E"
	ClassExpVTEC      = "X"
)

// UFN is the end-time sentinel for until-further-notice events.
var UFN = time.Unix(1<<31-1, 0).UTC().Truncate(time.Minute)

// IsUFN reports whether t is the until-further-notice sentinel.
func IsUFN(t time.Time) bool { return !t.Before(UFN) }

// HVTEC is the hydrologic sub-record attached to a P-VTEC record.
type HVTEC struct {
	NWSLI          string    `json:"nwsli"`
	FloodSeverity  string    `json:"floodSeverity"`
	ImmediateCause string    `json:"immediateCause"`
	FloodBegin     time.Time `json:"floodBegin"`
	FloodCrest     time.Time `json:"floodCrest"`
	FloodEnd       time.Time `json:"floodEnd"`
	FloodRecord    string    `json:"floodRecord"`
}

// Record is the persisted state of one event in one zone. Records are
// exploded per UGC; identity is (office, phen, sig, etn, ugc).
type Record struct {
	Key        string    `json:"key"`
	Phen       string    `json:"phen"`
	Sig        string    `json:"sig"`
	Subtype    string    `json:"subtype,omitempty"`
	ETN        int       `json:"etn"`
	OfficeID   string    `json:"officeid"`
	UGC        string    `json:"id"`
	Action     Action    `json:"act"`
	PrevAction Action    `json:"prevAct,omitempty"`
	Class      string    `json:"status"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	IssueTime  time.Time `json:"issueTime"`
	PurgeTime  time.Time `json:"purgeTime"`
	UFN        bool      `json:"ufn"`
	PIL        string    `json:"pil,omitempty"`
	Seg        int       `json:"seg,omitempty"`
	VTECStr    string    `json:"vtecstr"`
	HVTEC      *HVTEC    `json:"hvtec,omitempty"`
	EventIDs   []string  `json:"eventIds,omitempty"`
}

// Identity is the store key of a record.
type Identity struct {
	Office string
	Phen   string
	Sig    string
	ETN    int
	UGC    string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s.%s.%s.%04d.%s", id.Office, id.Phen, id.Sig, id.ETN, id.UGC)
}

// Identity returns the record's store key.
func (r Record) Identity() Identity {
	return Identity{Office: r.OfficeID, Phen: r.Phen, Sig: r.Sig, ETN: r.ETN, UGC: r.UGC}
}

// PhenSig is "PP.S".
func (r Record) PhenSig() string { return r.Phen + "." + r.Sig }

// Active reports whether the record still describes a running event at t.
func (r Record) Active(t time.Time) bool {
	if r.Action.Terminal() {
		return false
	}
	return r.UFN || r.EndTime.After(t)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	if r.HVTEC != nil {
		h := *r.HVTEC
		c.HVTEC = &h
	}
	c.EventIDs = slices.Clone(r.EventIDs)
	return c
}

// CounterKey names the ETN counter of (office, phen, sig) in a calendar year.
func CounterKey(office, phen, sig string, year int) string {
	return fmt.Sprintf("%s.%s.%s.%d", office, phen, sig, year)
}
