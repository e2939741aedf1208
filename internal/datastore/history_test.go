package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
)

func openHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "db", "history.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestObserverRecordsSessionLifecycle(t *testing.T) {
	h := openHistory(t)

	started := time.Now().UTC().Truncate(time.Millisecond)
	info := audiocore.SessionInfo{
		ID:         "0b7c9d6e-1111-4222-8333-444455556666",
		Source:     "/a.wav",
		Kind:       audiocore.KindFile,
		SampleRate: 44100,
		Channels:   2,
		StartedAt:  started,
	}
	h.SessionStarted(info)

	rec, err := h.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "/a.wav", rec.Source)
	assert.True(t, rec.EndedAt.IsZero())
	assert.Zero(t, rec.Duration())

	info.EndedAt = started.Add(1500 * time.Millisecond)
	info.Complete = true
	info.Reason = audiocore.ReasonStopped
	h.SessionEnded(info)

	rec, err = h.Get(info.ID)
	require.NoError(t, err)
	assert.True(t, rec.Complete)
	assert.Equal(t, audiocore.ReasonStopped, rec.Reason)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration())

	n, err := h.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "end updates the start row")
}

func TestRecentNewestFirst(t *testing.T) {
	h := openHistory(t)

	base := time.Now().UTC()
	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, h.Save(&PlaybackRecord{
			SessionID: id,
			Kind:      audiocore.KindMemory,
			Source:    "memory",
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := h.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s3", records[0].SessionID)
	assert.Equal(t, "s2", records[1].SessionID)

	all, err := h.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetMissing(t *testing.T) {
	h := openHistory(t)

	_, err := h.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := Open(path, true)
	require.NoError(t, err)
	require.NoError(t, h.Save(&PlaybackRecord{SessionID: "keep", StartedAt: time.Now()}))
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	h, err = Open(path, false)
	require.NoError(t, err)
	defer h.Close()
	_, err = h.Get("keep")
	assert.NoError(t, err)
}
