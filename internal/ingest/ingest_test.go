package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-vtec/internal/decoder"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/store"
	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

var now = time.Date(2026, 5, 12, 19, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *store.FileStore {
	t.Helper()
	return store.NewFileStore(filepath.Join(t.TempDir(), "vtecRecords.json"), testLogger())
}

func decodeFixture(t *testing.T, name string, filter decoder.OfficeFilter) []vtec.Record {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "decoder", "testdata", name))
	require.NoError(t, err)
	p, err := decoder.New(testLogger(), decoder.WithOfficeFilter(filter)).Decode(string(data), now)
	require.NoError(t, err)
	return p.Records
}

func record(action vtec.Action, ugc string) vtec.Record {
	r := vtec.Record{
		Key: "FF.W", Phen: "FF", Sig: "W", ETN: 1, OfficeID: "KOAX", UGC: ugc, Action: action,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), IssueTime: now.Add(-time.Hour),
		PurgeTime: now.Add(time.Hour), PIL: "FFWOAX",
	}
	r.VTECStr = vtec.Format(r)
	return r
}

type countingBackup struct{ calls int }

func (b *countingBackup) Backup(time.Time, time.Duration) (string, error) {
	b.calls++
	return "backup", nil
}

func TestMerge_InsertAndSummarize(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	backups := &countingBackup{}
	in := New(s, testLogger(), WithBackups(backups, store.DefaultRetention))

	res, err := in.Merge(ctx, decodeFixture(t, "flw_koax.txt", nil), now)
	require.NoError(t, err)

	assert.True(t, res.DBChanged)
	assert.Len(t, res.Decoded, 5)
	assert.Empty(t, res.OldRecords)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, Change{PIL: "FLWOAX", Office: "KOAX", PhenSig: "FL.W", ETN: 12, Action: vtec.ActionNEW, UGCs: []string{"NEC055"}}, res.Changes[0])
	assert.Equal(t, []string{"NEC177", "IAC085", "IAC086", "IAC087"}, res.Changes[1].UGCs)
	assert.Equal(t, 1, backups.calls)

	stored, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestMerge_IdempotentReingest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	backups := &countingBackup{}
	in := New(s, testLogger(), WithBackups(backups, store.DefaultRetention))
	recs := decodeFixture(t, "ffw_koax.txt", nil)

	_, err := in.Merge(ctx, recs, now)
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	res, err := in.Merge(ctx, recs, now)
	require.NoError(t, err)
	assert.False(t, res.DBChanged)
	assert.Empty(t, res.Decoded)
	assert.Equal(t, 1, backups.calls)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMerge_FilteredPartnerProductLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := New(s, testLogger())
	_, err := in.Merge(ctx, decodeFixture(t, "ffw_koax.txt", nil), now)
	require.NoError(t, err)
	before, err := s.Records(ctx)
	require.NoError(t, err)

	filter := decoder.NewOfficeFilter("KOAX", nil)
	res, err := in.Merge(ctx, decodeFixture(t, "wcn_kwns.txt", filter), now)
	require.NoError(t, err)
	assert.False(t, res.DBChanged)

	after, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestMerge_UpdatesReplacePriorRecords(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := New(s, testLogger())

	_, err := in.Merge(ctx, []vtec.Record{record(vtec.ActionNEW, "NEC055")}, now)
	require.NoError(t, err)

	ext := record(vtec.ActionEXT, "NEC055")
	ext.EndTime = now.Add(3 * time.Hour)
	ext.VTECStr = vtec.Format(ext)
	res, err := in.Merge(ctx, []vtec.Record{ext}, now)
	require.NoError(t, err)

	require.Len(t, res.Replaced, 1)
	assert.Equal(t, vtec.ActionNEW, res.Replaced[0].Action)
	stored, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, vtec.ActionEXT, stored[0].Action)
	assert.True(t, ext.EndTime.Equal(stored[0].EndTime))
}

func TestMerge_CorrectionCarriesPreviousAction(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := New(s, testLogger())

	_, err := in.Merge(ctx, []vtec.Record{record(vtec.ActionEXA, "NEC055")}, now)
	require.NoError(t, err)
	_, err = in.Merge(ctx, []vtec.Record{record(vtec.ActionCOR, "NEC055")}, now)
	require.NoError(t, err)

	stored, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, vtec.ActionCOR, stored[0].Action)
	assert.Equal(t, vtec.ActionEXA, stored[0].PrevAction)
}

func TestMerge_ClosedRecordWinsConflict(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := New(s, testLogger())

	_, err := in.Merge(ctx, []vtec.Record{record(vtec.ActionCAN, "NEC055")}, now)
	require.NoError(t, err)

	res, err := in.Merge(ctx, []vtec.Record{record(vtec.ActionCON, "NEC055")}, now)
	require.NoError(t, err)
	assert.False(t, res.DBChanged)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, domain.StoreConflict, res.Diagnostics[0].Kind)

	stored, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, vtec.ActionCAN, stored[0].Action)
}

func TestMerge_Squeeze(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := New(s, testLogger())

	closed := record(vtec.ActionCAN, "NEC001")
	closed.PurgeTime = now.Add(-time.Minute)
	over := record(vtec.ActionCON, "NEC003")
	over.EndTime, over.PurgeTime = now.Add(-time.Hour), now.Add(-time.Minute)
	ufn := record(vtec.ActionCON, "NEC005")
	ufn.UFN, ufn.EndTime, ufn.PurgeTime = true, vtec.UFN, now.Add(-time.Minute)
	live := record(vtec.ActionCON, "NEC007")

	require.NoError(t, s.Update(ctx, func([]vtec.Record) ([]vtec.Record, bool, error) {
		return []vtec.Record{closed, over, ufn, live}, true, nil
	}))

	res, err := in.Merge(ctx, nil, now)
	require.NoError(t, err)
	assert.True(t, res.DBChanged)
	require.Len(t, res.Purged, 2)
	assert.Equal(t, "NEC001", res.Purged[0].UGC)
	assert.Equal(t, "NEC003", res.Purged[1].UGC)
	assert.Len(t, res.OldRecords, 4)

	stored, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestMerge_PartnerNotifications(t *testing.T) {
	ctx := context.Background()
	in := New(newStore(t), testLogger(), WithPartnerNotifications(vtec.DefaultPartners()))

	res, err := in.Merge(ctx, decodeFixture(t, "wcn_kwns.txt", nil), now)
	require.NoError(t, err)
	require.Len(t, res.Notifications, 1)
	n := res.Notifications[0]
	assert.Equal(t, "SPC", n.Kind)
	assert.Equal(t, "TO.A", n.PhenSig)
	assert.Equal(t, 212, n.ETN)
	assert.Equal(t, []string{"NEC055", "NEC153", "NEC177"}, n.UGCs)

	res, err = in.Merge(ctx, decodeFixture(t, "ffw_koax.txt", nil), now)
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)
}

func TestMerge_PartnerNotificationsLimitedToLocalZones(t *testing.T) {
	tests := []struct {
		name  string
		zones []string
		want  []string
	}{
		{"one local zone", []string{"nec055", "NEZ033"}, []string{"NEC055"}},
		{"no local zones", []string{"NEZ033"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := New(newStore(t), testLogger(),
				WithPartnerNotifications(vtec.DefaultPartners()), WithLocalZones(tc.zones))

			res, err := in.Merge(context.Background(), decodeFixture(t, "wcn_kwns.txt", nil), now)
			require.NoError(t, err)
			assert.True(t, res.DBChanged)
			if tc.want == nil {
				assert.Empty(t, res.Notifications)
				return
			}
			require.Len(t, res.Notifications, 1)
			assert.Equal(t, tc.want, res.Notifications[0].UGCs)
		})
	}
}

func TestSqueezable(t *testing.T) {
	r := record(vtec.ActionEXP, "NEC055")
	assert.False(t, Squeezable(r, now), "purge time not reached")
	r.PurgeTime = now.Add(-time.Second)
	assert.True(t, Squeezable(r, now))
}
