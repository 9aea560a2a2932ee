package vtec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrMalformed is returned for strings that do not match the VTEC grammar.
var ErrMalformed = errors.New("malformed vtec")

const (
	timeLayout = "060102T1504Z"
	zeroTime   = "000000T0000Z"
)

// PVTECPattern matches a P-VTEC string anywhere in a line.
var PVTECPattern = regexp.MustCompile(
	`/([OTEX])\.([A-Z]{3})\.([A-Z]{4})\.([A-Z]{2})\.([A-Z])\.(\d{4})\.(\d{6}T\d{4}Z)-(\d{6}T\d{4}Z)/`)

// HVTECPattern matches an H-VTEC string anywhere in a line.
var HVTECPattern = regexp.MustCompile(
	`/([A-Z0-9]{5})\.([0-3NU])\.([A-Z]{2})\.(\d{6}T\d{4}Z)\.(\d{6}T\d{4}Z)\.(\d{6}T\d{4}Z)\.([A-Z]{2})/`)

// Format renders r as a P-VTEC string. The start is all zeros once the event
// is in progress at issue time; the end is all zeros for UFN.
func Format(r Record) string {
	class := r.Class
	if class == "" {
		class = ClassOperational
	}
	start := r.StartTime.UTC().Format(timeLayout)
	if !r.IssueTime.IsZero() && !r.StartTime.After(r.IssueTime) {
		start = zeroTime
	}
	end := r.EndTime.UTC().Format(timeLayout)
	if r.UFN || IsUFN(r.EndTime) {
		end = zeroTime
	}
	return fmt.Sprintf("/%s.%s.%s.%s.%s.%04d.%s-%s/",
		class, r.Action, r.OfficeID, r.Phen, r.Sig, r.ETN, start, end)
}

// Parse decodes a P-VTEC string. An all-zero start resolves to issue and an
// all-zero end to the UFN sentinel.
func Parse(s string, issue time.Time) (Record, error) {
	m := PVTECPattern.FindStringSubmatch(s)
	if m == nil || len(m[0]) != len(s) {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	act := Action(m[2])
	if !act.Valid() {
		return Record{}, fmt.Errorf("%w: unknown action %s in %q", ErrMalformed, m[2], s)
	}
	etn, _ := strconv.Atoi(m[6])

	r := Record{
		Key:       m[4] + "." + m[5],
		Phen:      m[4],
		Sig:       m[5],
		ETN:       etn,
		OfficeID:  m[3],
		Action:    act,
		Class:     m[1],
		IssueTime: issue,
		VTECStr:   s,
	}

	var err error
	if m[7] == zeroTime {
		r.StartTime = issue
	} else if r.StartTime, err = parseTime(m[7]); err != nil {
		return Record{}, fmt.Errorf("%w: start of %q: %w", ErrMalformed, s, err)
	}
	if m[8] == zeroTime {
		r.EndTime, r.UFN = UFN, true
	} else if r.EndTime, err = parseTime(m[8]); err != nil {
		return Record{}, fmt.Errorf("%w: end of %q: %w", ErrMalformed, s, err)
	}
	return r, nil
}

// FormatH renders an H-VTEC string; zero times render as all zeros.
func FormatH(h HVTEC) string {
	return fmt.Sprintf("/%s.%s.%s.%s.%s.%s.%s/",
		h.NWSLI, h.FloodSeverity, h.ImmediateCause,
		formatOptional(h.FloodBegin), formatOptional(h.FloodCrest), formatOptional(h.FloodEnd),
		h.FloodRecord)
}

// ParseH decodes an H-VTEC string.
func ParseH(s string) (HVTEC, error) {
	m := HVTECPattern.FindStringSubmatch(s)
	if m == nil || len(m[0]) != len(s) {
		return HVTEC{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	h := HVTEC{NWSLI: m[1], FloodSeverity: m[2], ImmediateCause: m[3], FloodRecord: m[7]}
	var err error
	if h.FloodBegin, err = parseOptional(m[4]); err != nil {
		return HVTEC{}, fmt.Errorf("%w: %q: %w", ErrMalformed, s, err)
	}
	if h.FloodCrest, err = parseOptional(m[5]); err != nil {
		return HVTEC{}, fmt.Errorf("%w: %q: %w", ErrMalformed, s, err)
	}
	if h.FloodEnd, err = parseOptional(m[6]); err != nil {
		return HVTEC{}, fmt.Errorf("%w: %q: %w", ErrMalformed, s, err)
	}
	return h, nil
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return zeroTime
	}
	return t.UTC().Format(timeLayout)
}

func parseOptional(s string) (time.Time, error) {
	if s == zeroTime {
		return time.Time{}, nil
	}
	return parseTime(s)
}
