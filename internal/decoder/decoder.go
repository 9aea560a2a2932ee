// Package decoder parses NWS text products (WMO bulletins) into segments and
// per-zone VTEC records.
package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

var (
	ErrEmptyProduct  = errors.New("empty product")
	ErrNoHeader      = errors.New("no wmo header")
	ErrMalformedUGC  = errors.New("malformed ugc")
	ErrMalformedVTEC = errors.New("malformed vtec")
)

var (
	wmoLine   = regexp.MustCompile(`(?m)^([A-Z]{4}\d{2}) ([A-Z]{4}) (\d{6})(?: ([A-Z]{3}))?[ \t]*$`)
	awipsLine = regexp.MustCompile(`^[A-Z0-9]{4,6}$`)
	ugcStart  = regexp.MustCompile(`^[A-Z]{2}[CZ]\d{3}[->]`)
	ugcEnd    = regexp.MustCompile(`\d{6}-$`)
	dateLine  = regexp.MustCompile(`^\d{3,4} (AM|PM) [A-Z]{3,4} [A-Z][a-z]{2} [A-Z][a-z]{2} \d{1,2} \d{4}$`)
)

// Header is the WMO abbreviated heading plus the AWIPS identifier.
type Header struct {
	WMOID     string    `json:"wmoId"`
	Office    string    `json:"office"`
	DDHHMM    string    `json:"ddhhmm"`
	BBB       string    `json:"bbb,omitempty"`
	PIL       string    `json:"pil"`
	IssueTime time.Time `json:"issueTime"`
}

// Segment is one "$$"-delimited part of a product.
type Segment struct {
	Index     int       `json:"index"`
	UGCString string    `json:"ugcString"`
	UGCs      []string  `json:"ugcs"`
	PurgeTime time.Time `json:"purgeTime"`
	VTEC      []string  `json:"vtec"`
	HVTEC     []string  `json:"hvtec,omitempty"`
	Cities    []string  `json:"cities,omitempty"`
	Text      string    `json:"text"`
}

// Product is a decoded bulletin.
type Product struct {
	Header      Header              `json:"header"`
	Segments    []Segment           `json:"segments"`
	Records     []vtec.Record       `json:"records"`
	Filtered    int                 `json:"filtered"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// Decoder turns product text into VTEC records.
type Decoder struct {
	logger *slog.Logger
	filter OfficeFilter
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithOfficeFilter keeps only records from the given offices. A nil filter
// disables filtering.
func WithOfficeFilter(f OfficeFilter) Option {
	return func(d *Decoder) { d.filter = f }
}

// New creates a Decoder.
func New(logger *slog.Logger, opts ...Option) *Decoder {
	d := &Decoder{logger: logger}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode parses text. ref anchors the day-hour-minute stamps to a month and
// year; pass the receipt time (or a displaced real time). Problems confined to
// one segment are reported as diagnostics and the other segments continue.
func (d *Decoder) Decode(text string, ref time.Time) (*Product, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyProduct
	}
	lines, err := normalize(text)
	if err != nil {
		return nil, err
	}
	hdr, rest, err := parseHeader(lines, ref)
	if err != nil {
		return nil, err
	}

	p := &Product{Header: hdr}
	for i, raw := range splitSegments(rest) {
		seg, err := parseSegment(raw, i+1, hdr.IssueTime)
		if err != nil {
			p.reject(d.logger, hdr, i+1, err)
			continue
		}
		recs, err := segmentRecords(seg, hdr)
		if err != nil {
			p.reject(d.logger, hdr, seg.Index, err)
			continue
		}
		p.Segments = append(p.Segments, seg)
		for _, r := range recs {
			if !d.filter.Allows(r.OfficeID) {
				p.Filtered++
				continue
			}
			p.Records = append(p.Records, r)
		}
	}
	if p.Filtered > 0 {
		d.logger.Debug("records outside office filter dropped", "pil", hdr.PIL, "count", p.Filtered)
	}
	return p, nil
}

func (p *Product) reject(logger *slog.Logger, hdr Header, index int, err error) {
	subject := fmt.Sprintf("%s segment %d", hdr.PIL, index)
	p.Diagnostics = append(p.Diagnostics, domain.Diagnosef(domain.MalformedInput, subject, "%v", err))
	logger.Warn("segment rejected", "pil", hdr.PIL, "segment", index, "error", err)
}

// normalize drops everything before the WMO heading, carriage returns and
// trailing blanks (including those after ellipses).
func normalize(text string) ([]string, error) {
	text = strings.ReplaceAll(text, "\r", "")
	loc := wmoLine.FindStringIndex(text)
	if loc == nil {
		return nil, ErrNoHeader
	}
	lines := strings.Split(text[loc[0]:], "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return lines, nil
}

func parseHeader(lines []string, ref time.Time) (Header, []string, error) {
	m := wmoLine.FindStringSubmatch(lines[0])
	if m == nil {
		return Header{}, nil, ErrNoHeader
	}
	h := Header{WMOID: m[1], Office: m[2], DDHHMM: m[3], BBB: m[4]}
	issue, err := ResolveDDHHMM(m[3], ref)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrNoHeader, err)
	}
	h.IssueTime = issue

	i := 1
	for i < len(lines) && lines[i] == "" {
		i++
	}
	if i < len(lines) && awipsLine.MatchString(lines[i]) {
		h.PIL = lines[i]
		i++
	}
	return h, lines[i:], nil
}

// splitSegments cuts the body at "$$" lines and at UGC blocks that start
// without a preceding "$$". Text before the first UGC block (the mass news
// disseminator header) is dropped.
func splitSegments(lines []string) [][]string {
	var segs [][]string
	var cur []string
	inUGC := false
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "$$"):
			if cur != nil {
				segs = append(segs, cur)
			}
			cur, inUGC = nil, false
		case ugcStart.MatchString(l) && !inUGC:
			if cur != nil {
				segs = append(segs, cur)
			}
			cur = []string{l}
			inUGC = !ugcEnd.MatchString(l)
		case cur != nil:
			cur = append(cur, l)
			if inUGC && ugcEnd.MatchString(l) {
				inUGC = false
			}
		}
	}
	if cur != nil {
		segs = append(segs, cur)
	}
	return segs
}

func parseSegment(lines []string, index int, issue time.Time) (Segment, error) {
	seg := Segment{Index: index}

	i := 0
	var ugc strings.Builder
	for ; i < len(lines); i++ {
		ugc.WriteString(strings.TrimSpace(lines[i]))
		if ugcEnd.MatchString(lines[i]) {
			i++
			break
		}
	}
	seg.UGCString = ugc.String()
	codes, purge, err := ExpandUGC(seg.UGCString)
	if err != nil {
		return seg, err
	}
	seg.UGCs = codes
	if seg.PurgeTime, err = ResolveDDHHMM(purge, issue); err != nil {
		return seg, fmt.Errorf("%w: purge stamp %s: %w", ErrMalformedUGC, purge, err)
	}

	for ; i < len(lines); i++ {
		l := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(l, "/") || !strings.HasSuffix(l, "/") || len(l) < 20 {
			break
		}
		switch {
		case vtec.PVTECPattern.FindString(l) == l:
			seg.VTEC = append(seg.VTEC, l)
		case vtec.HVTECPattern.FindString(l) == l:
			seg.HVTEC = append(seg.HVTEC, l)
			seg.VTEC = append(seg.VTEC, l)
		default:
			return seg, fmt.Errorf("%w: %q", ErrMalformedVTEC, l)
		}
	}

	body := lines[i:]
	for j, l := range body {
		if !dateLine.MatchString(strings.TrimSpace(l)) {
			continue
		}
		seg.Cities = cities(body[:j])
		body = body[j+1:]
		break
	}
	seg.Text = strings.TrimSpace(strings.Join(body, "\n"))
	return seg, nil
}

// cities extracts "Including the cities of A, B, and C" lists.
func cities(area []string) []string {
	joined := strings.Join(area, " ")
	idx := strings.Index(strings.ToLower(joined), "including the cities of")
	if idx < 0 {
		return nil
	}
	list := joined[idx+len("including the cities of"):]
	list = strings.ReplaceAll(list, " and ", ",")
	var out []string
	for _, c := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' }) {
		c = strings.Trim(strings.TrimSpace(c), ".")
		if c != "" {
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}

// segmentRecords explodes the segment's P-VTEC lines per UGC. Each H-VTEC
// line attaches to the P-VTEC line before it.
func segmentRecords(seg Segment, hdr Header) ([]vtec.Record, error) {
	var recs []vtec.Record
	for i := 0; i < len(seg.VTEC); i++ {
		line := seg.VTEC[i]
		if vtec.HVTECPattern.FindString(line) == line {
			continue
		}
		base, err := vtec.Parse(line, hdr.IssueTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedVTEC, err)
		}
		if i+1 < len(seg.VTEC) && vtec.HVTECPattern.FindString(seg.VTEC[i+1]) == seg.VTEC[i+1] {
			h, err := vtec.ParseH(seg.VTEC[i+1])
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedVTEC, err)
			}
			base.HVTEC = &h
			i++
		}
		base.PIL = hdr.PIL
		base.Seg = seg.Index
		base.PurgeTime = seg.PurgeTime
		for _, ugc := range seg.UGCs {
			r := base.Clone()
			r.UGC = ugc
			recs = append(recs, r)
		}
	}
	return recs, nil
}

// ResolveDDHHMM places a day-hour-minute stamp in the month closest to ref.
func ResolveDDHHMM(s string, ref time.Time) (time.Time, error) {
	if len(s) != 6 {
		return time.Time{}, fmt.Errorf("bad ddhhmm %q", s)
	}
	day, err1 := strconv.Atoi(s[0:2])
	hour, err2 := strconv.Atoi(s[2:4])
	minute, err3 := strconv.Atoi(s[4:6])
	if err := errors.Join(err1, err2, err3); err != nil {
		return time.Time{}, fmt.Errorf("bad ddhhmm %q: %w", s, err)
	}
	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("bad ddhhmm %q", s)
	}
	ref = ref.UTC()
	var best time.Time
	for _, offset := range []int{-1, 0, 1} {
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, offset, 0)
		cand := time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, time.UTC)
		if cand.Month() != first.Month() {
			continue
		}
		if best.IsZero() || absDur(cand.Sub(ref)) < absDur(best.Sub(ref)) {
			best = cand
		}
	}
	return best, nil
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
