package decoder

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

var ref = time.Date(2026, 5, 12, 19, 0, 0, 0, time.UTC)

func TestExpandUGC(t *testing.T) {
	tests := []struct {
		block     string
		wantCodes []string
		wantPurge string
	}{
		{"NEC033-035>037-043-080000-", []string{"NEC033", "NEC035", "NEC036", "NEC037", "NEC043"}, "080000"},
		{"WIZ023-WIZ044>046-", nil, ""},
		{"WIZ023-WIZ044>046-121200-", []string{"WIZ023", "WIZ044", "WIZ045", "WIZ046"}, "121200"},
		{"NEC055-\nIAZ001-002-130300-", []string{"NEC055", "IAZ001", "IAZ002"}, "130300"},
		{"NEC055-055-130300-", []string{"NEC055"}, "130300"},
	}
	for _, tc := range tests {
		t.Run(tc.block, func(t *testing.T) {
			codes, purge, err := ExpandUGC(tc.block)
			if tc.wantCodes == nil {
				assert.True(t, errors.Is(err, ErrMalformedUGC))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantCodes, codes)
			assert.Equal(t, tc.wantPurge, purge)
		})
	}
}

func TestExpandUGC_Malformed(t *testing.T) {
	for _, block := range []string{
		"",
		"NEC055",
		"035-NEC055-130300-",
		"NEC055>050-130300-",
		"NEX055-130300-",
		"NEC55-130300-",
	} {
		_, _, err := ExpandUGC(block)
		assert.True(t, errors.Is(err, ErrMalformedUGC), block)
	}
}

func TestResolveDDHHMM(t *testing.T) {
	tests := []struct {
		name  string
		stamp string
		ref   time.Time
		want  time.Time
	}{
		{"same day", "121830", ref, time.Date(2026, 5, 12, 18, 30, 0, 0, time.UTC)},
		{"next day", "130300", ref, time.Date(2026, 5, 13, 3, 0, 0, 0, time.UTC)},
		{"previous month", "312350", time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC), time.Date(2025, 12, 31, 23, 50, 0, 0, time.UTC)},
		{"next month", "010005", time.Date(2026, 4, 30, 23, 0, 0, 0, time.UTC), time.Date(2026, 5, 1, 0, 5, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveDDHHMM(tc.stamp, tc.ref)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}

	_, err := ResolveDDHHMM("322500", ref)
	require.Error(t, err)
}

func TestDecode_FlashFloodWarning(t *testing.T) {
	d := New(testLogger())
	p, err := d.Decode(fixture(t, "ffw_koax.txt"), ref)
	require.NoError(t, err)

	assert.Equal(t, "WGUS53", p.Header.WMOID)
	assert.Equal(t, "KOAX", p.Header.Office)
	assert.Equal(t, "FFWOAX", p.Header.PIL)
	assert.True(t, time.Date(2026, 5, 12, 18, 30, 0, 0, time.UTC).Equal(p.Header.IssueTime))

	require.Len(t, p.Segments, 1)
	seg := p.Segments[0]
	assert.Equal(t, []string{"NEC055", "NEC153"}, seg.UGCs)
	assert.True(t, time.Date(2026, 5, 12, 20, 30, 0, 0, time.UTC).Equal(seg.PurgeTime))
	assert.Contains(t, seg.Text, "Douglas County")

	require.Len(t, p.Records, 2)
	for i, ugc := range []string{"NEC055", "NEC153"} {
		r := p.Records[i]
		assert.Equal(t, ugc, r.UGC)
		assert.Equal(t, vtec.ActionNEW, r.Action)
		assert.Equal(t, "FF.W", r.Key)
		assert.Equal(t, 1, r.ETN)
		assert.Equal(t, "FFWOAX", r.PIL)
		assert.Equal(t, 1, r.Seg)
		require.NotNil(t, r.HVTEC)
		assert.Equal(t, "00000", r.HVTEC.NWSLI)
	}
	assert.Empty(t, p.Diagnostics)
}

func TestDecode_FloodWarningWithBadSegment(t *testing.T) {
	d := New(testLogger())
	p, err := d.Decode(fixture(t, "flw_koax.txt"), ref)
	require.NoError(t, err)

	require.Len(t, p.Segments, 2)
	first := p.Segments[0]
	assert.Equal(t, []string{"Omaha", "Bellevue"}, first.Cities)
	assert.Equal(t, "The Flood Warning continues for\nthe Missouri River at Omaha.", first.Text)

	require.Len(t, p.Records, 5)
	assert.True(t, p.Records[0].UFN)
	assert.Equal(t, "OMHN1", p.Records[0].HVTEC.NWSLI)
	assert.Equal(t, []string{"NEC177", "IAC085", "IAC086", "IAC087"},
		[]string{p.Records[1].UGC, p.Records[2].UGC, p.Records[3].UGC, p.Records[4].UGC})
	assert.Equal(t, vtec.ActionEXT, p.Records[1].Action)
	assert.True(t, p.Header.IssueTime.Equal(p.Records[1].StartTime), "zero start means issue time")
	assert.Equal(t, 2, p.Records[4].Seg)

	require.Len(t, p.Diagnostics, 1)
	assert.Equal(t, domain.MalformedInput, p.Diagnostics[0].Kind)
	assert.Equal(t, "FLWOAX segment 3", p.Diagnostics[0].Subject)
}

func TestDecode_OfficeFilter(t *testing.T) {
	text := fixture(t, "wcn_kwns.txt")

	local := New(testLogger(), WithOfficeFilter(NewOfficeFilter("KOAX", vtec.DefaultPartners())))
	p, err := local.Decode(text, ref)
	require.NoError(t, err)
	assert.Len(t, p.Records, 3)

	elsewhere := New(testLogger(), WithOfficeFilter(NewOfficeFilter("KDMX", nil)))
	p, err = elsewhere.Decode(text, ref)
	require.NoError(t, err)
	assert.Empty(t, p.Records)
	assert.Equal(t, 3, p.Filtered)

	var none OfficeFilter
	assert.True(t, none.Allows("KXYZ"))
}

func TestDecode_MalformedVTECRejectsSegment(t *testing.T) {
	text := "WGUS53 KOAX 121830\nFFWOAX\n\nNEC055-122030-\n/O.NEW.KOAX.FF.W.001.260512T1830Z-260512T2030Z/\n\ntext\n$$\n"
	p, err := New(testLogger()).Decode(text, ref)
	require.NoError(t, err)
	assert.Empty(t, p.Records)
	require.Len(t, p.Diagnostics, 1)
	assert.Contains(t, p.Diagnostics[0].Message, "malformed vtec")
}

func TestDecode_StructuralErrors(t *testing.T) {
	d := New(testLogger())

	_, err := d.Decode("   \n", ref)
	assert.ErrorIs(t, err, ErrEmptyProduct)

	_, err = d.Decode("no header here\nNEC055-122030-\n", ref)
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = d.Decode("WGUS53 KOAX 991830\nFFWOAX\n", ref)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestDecode_CarriageReturns(t *testing.T) {
	text := "\x01\r\r\n000 \r\r\nWGUS53 KOAX 121830\r\r\nFFWOAX\r\r\n\r\r\nNEC055-122030-\r\r\n/O.NEW.KOAX.FF.W.0001.260512T1830Z-260512T2030Z/\r\r\n\r\r\nHEAVY RAIN... \r\r\n$$\r\r\n"
	p, err := New(testLogger()).Decode(text, ref)
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "HEAVY RAIN...", p.Segments[0].Text)
}
