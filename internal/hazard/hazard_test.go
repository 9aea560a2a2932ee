package hazard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/xmltree"
)

func ptr(f float64) *float64 { return &f }

func validEvent() Event {
	t0 := time.Date(2026, 5, 12, 18, 0, 0, 0, time.UTC)
	return Event{
		EventID: "HZ-1", SiteID: "KOAX", Phen: "FF", Sig: "W", Status: StatusPending,
		StartTime: t0, EndTime: t0.Add(2 * time.Hour), UGCs: []string{"NEC055"},
	}
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Event)
		ok     bool
	}{
		{"valid", func(*Event) {}, true},
		{"no id", func(e *Event) { e.EventID = "" }, false},
		{"bad site", func(e *Event) { e.SiteID = "OAX" }, false},
		{"no ugcs", func(e *Event) { e.UGCs = nil }, false},
		{"no end", func(e *Event) { e.EndTime = time.Time{} }, false},
		{"hydro without stage", func(e *Event) { e.Phen, e.Hydro = "FL", &Hydro{PointID: "OMHN1"} }, false},
		{"hydro with stage", func(e *Event) { e.Phen, e.Hydro = "FL", &Hydro{PointID: "OMHN1", FloodStage: ptr(29)} }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := validEvent()
			tc.mutate(&e)
			err := e.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrMissingDependency))
		})
	}
}

func TestEvent_Accessors(t *testing.T) {
	e := validEvent()
	e.Subtype = "Convective"
	e.ETNs = []int{3, 4}
	assert.Equal(t, "FF.W.Convective", e.HazardType())
	assert.Equal(t, "FF.W", e.PhenSig())
	assert.Equal(t, 4, e.ETN())
	assert.False(t, e.IsHydro())

	c := e.Clone()
	c.UGCs[0] = "NEC001"
	assert.Equal(t, "NEC055", e.UGCs[0])
}

func TestCheckUpdate(t *testing.T) {
	prev := validEvent()
	next := prev.Clone()
	next.Sig = "A"
	assert.NoError(t, CheckUpdate(prev, next))

	prev.Status = StatusIssued
	assert.True(t, errors.Is(CheckUpdate(prev, next), ErrImmutableIdentity))

	next = prev.Clone()
	next.UGCs = append(next.UGCs, "NEC153")
	assert.NoError(t, CheckUpdate(prev, next))
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	p, ok := tbl.Lookup("FF.W.Convective")
	require.True(t, ok)
	assert.False(t, p.AllowAreaChange)

	p, ok = tbl.Lookup("FL.A.Whatever")
	require.True(t, ok)
	assert.True(t, p.MayBeReplacedBy("FL.W"))
	assert.Equal(t, time.Hour, p.ExpirationPost)

	assert.Equal(t, "FLOOD WARNING", tbl.Headline("FL.W"))
	assert.Equal(t, "ZZ.Z", tbl.Headline("ZZ.Z"))
	assert.Contains(t, tbl.Types(), "HY.S")
}

func TestLoadTable_Overrides(t *testing.T) {
	site, err := confignode.ParseJSON([]byte(`{"hazardTypes":{
		"TO.W":{"allowAreaChange":true},
		"HT.Y":"_override_remove_",
		"ZZ.W":{"headline":"TEST WARNING","pil":"ZZW","expirationTime":[-5,5]}
	}}`))
	require.NoError(t, err)

	tbl, diags, err := LoadTable(site)
	require.NoError(t, err)
	assert.Empty(t, diags)

	p, _ := tbl.Lookup("TO.W")
	assert.True(t, p.AllowAreaChange)
	assert.False(t, p.AllowTimeChange)
	assert.Equal(t, "TORNADO WARNING", p.Headline)

	_, ok := tbl.Lookup("HT.Y")
	assert.False(t, ok)

	p, ok = tbl.Lookup("ZZ.W")
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, p.ExpirationPost)
}

func TestLoadTable_XMLOverride(t *testing.T) {
	doc, err := xmltree.Decode(strings.NewReader(`<hazardTypes>
  <SV.W><combinableSegments>true</combinableSegments><expirationTime override="replace">-15,15</expirationTime></SV.W>
</hazardTypes>`), xmltree.DefaultHints())
	require.NoError(t, err)

	tbl, _, err := LoadTable(doc)
	require.NoError(t, err)
	p, _ := tbl.Lookup("SV.W")
	assert.True(t, p.CombinableSegments)
	assert.Equal(t, -15*time.Minute, p.ExpirationPre)
	assert.Equal(t, 15*time.Minute, p.ExpirationPost)
}

func TestLoadTable_IncompatibleOverride(t *testing.T) {
	_, _, err := LoadTable(confignode.NewList())
	require.Error(t, err)
}
