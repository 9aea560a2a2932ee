package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rec(ugc string, etn int) vtec.Record {
	t0 := time.Date(2026, 5, 12, 18, 0, 0, 0, time.UTC)
	return vtec.Record{
		Key: "FF.W", Phen: "FF", Sig: "W", ETN: etn, OfficeID: "KOAX", UGC: ugc,
		Action: vtec.ActionNEW, StartTime: t0, EndTime: t0.Add(time.Hour), IssueTime: t0,
	}
}

func TestFileStore_EmptyThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "vtec", "vtecRecords.json"), testLogger())

	recs, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	err = s.Update(ctx, func(r []vtec.Record) ([]vtec.Record, bool, error) {
		return append(r, rec("NEC055", 1), rec("NEC153", 1)), true, nil
	})
	require.NoError(t, err)

	recs, err = s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "NEC153", recs[1].UGC)
	assert.True(t, recs[0].EndTime.Equal(rec("", 0).EndTime))
}

func TestFileStore_UnchangedUpdateDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "vtecRecords.json"), testLogger())

	require.NoError(t, s.Update(ctx, func(r []vtec.Record) ([]vtec.Record, bool, error) {
		return append(r, rec("NEC055", 1)), false, nil
	}))
	_, err := os.Stat(s.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileStore_UpdateErrorAborts(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "vtecRecords.json"), testLogger())
	boom := errors.New("boom")

	err := s.Update(ctx, func(r []vtec.Record) ([]vtec.Record, bool, error) {
		return nil, true, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestFileStore_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "vtecRecords.json"), testLogger())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(r []vtec.Record) ([]vtec.Record, bool, error) {
				return append(r, rec("NEC055", i+1)), true, nil
			})
		}()
	}
	wg.Wait()

	recs, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vtecRecords.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path, testLogger()).Records(context.Background())
	require.Error(t, err)
}

func TestFileStore_BackupAndPurge(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "vtecRecords.json"), testLogger())
	now := time.Date(2026, 5, 12, 18, 0, 0, 0, time.UTC)

	name, err := s.Backup(now, DefaultRetention)
	require.NoError(t, err)
	assert.Empty(t, name, "nothing to back up before the first write")

	require.NoError(t, s.Update(ctx, func(r []vtec.Record) ([]vtec.Record, bool, error) {
		return []vtec.Record{rec("NEC055", 1)}, true, nil
	}))

	old, err := s.Backup(now.Add(-30*24*time.Hour), DefaultRetention)
	require.NoError(t, err)
	require.FileExists(t, old)

	fresh, err := s.Backup(now, DefaultRetention)
	require.NoError(t, err)
	assert.FileExists(t, fresh)
	assert.NoFileExists(t, old)
	assert.Equal(t, "vtecRecords.json.20260512T180000Z", filepath.Base(fresh))
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := NewCounters(filepath.Join(t.TempDir(), "etn.json"))
	key := vtec.CounterKey("KOAX", "FF", "W", 2026)

	n, err := c.Current(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.Advance(ctx, key, 3))
	require.NoError(t, c.Advance(ctx, key, 2))

	n, err = c.Current(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{key: 3}, all)
}
