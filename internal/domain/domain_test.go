package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestMessageKey(t *testing.T) {
	a := MessageKey("FFWOAX", "KOAX", "FFWOAX", "121800")
	assert.Equal(t, a, MessageKey("FFWOAX", "KOAX", "FFWOAX", "121800"))
	assert.NotEqual(t, a, MessageKey("FFWOAX", "KOAX", "FFWOAX", "121801"))
	assert.Regexp(t, `^FFWOAX-[0-9a-f]{16}$`, a)
	assert.Len(t, MessageKey("", "x"), 16)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnosef(StoreConflict, "KOAX.FF.W.0001.NEC055", "CON arrived after %s", "CAN")
	assert.Equal(t, "StoreConflict [KOAX.FF.W.0001.NEC055]: CON arrived after CAN", d.String())
	assert.Equal(t, "MalformedInput: bad", Diagnostic{Kind: MalformedInput, Message: "bad"}.String())
}

func TestSetClock(t *testing.T) {
	at := time.Date(2026, 5, 12, 18, 0, 0, 0, time.FixedZone("CDT", -5*3600))
	SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, at.UTC(), Now())
	assert.Equal(t, time.UTC, Now().Location())
}
