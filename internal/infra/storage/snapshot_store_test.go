package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

func tempStore(t *testing.T, debounce time.Duration) *SnapshotStore {
	t.Helper()
	return NewSnapshotStore(filepath.Join(t.TempDir(), "state.json"), debounce)
}

func TestSnapshotMissingFileYieldsDefault(t *testing.T) {
	s := tempStore(t, time.Second)
	snap := s.Load(true)

	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.True(t, snap.Flags.ModerationEnabled)
	assert.True(t, snap.Flags.NotificationsEnabled)
	assert.NotNil(t, snap.Violations)
}

func TestSnapshotCorruptFileYieldsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{no es json"), 0o644))

	s := NewSnapshotStore(path, time.Second)
	snap := s.Load(false)
	assert.False(t, snap.Flags.ModerationEnabled)
	assert.Empty(t, snap.Violations)
}

func TestSnapshotSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t, time.Second)

	snap := DefaultSnapshot(true)
	snap.Violations["u1"] = domain.ViolationRecord{Count: 3, ActiveTier: domain.TierTimeoutLong}
	snap.VCTime["u1"] = 1234
	snap.CommandUsage["times"] = map[string]int64{"u1": 2}
	snap.UntimeoutAudit = append(snap.UntimeoutAudit, domain.UntimeoutAudit{
		ModeratorID: "mod1", UserID: "u1", At: time.Now().UTC().Truncate(time.Second),
	})
	snap.Flags.NotificationsEnabled = false
	require.NoError(t, s.Save(snap))

	got := s.Load(true)
	assert.Equal(t, 3, got.Violations["u1"].Count)
	assert.Equal(t, domain.TierTimeoutLong, got.Violations["u1"].ActiveTier)
	assert.Equal(t, int64(1234), got.VCTime["u1"])
	assert.Equal(t, int64(2), got.CommandUsage["times"]["u1"])
	require.Len(t, got.UntimeoutAudit, 1)
	assert.Equal(t, "mod1", got.UntimeoutAudit[0].ModeratorID)
	assert.False(t, got.Flags.NotificationsEnabled)
	assert.False(t, got.SavedAt.IsZero())
}

func TestSnapshotSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := NewSnapshotStore(path, time.Second)
	require.NoError(t, s.Save(DefaultSnapshot(true)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestSnapshotMarkDirtyCoalesces(t *testing.T) {
	s := tempStore(t, 40*time.Millisecond)

	calls := 0
	collect := func() Snapshot {
		calls++
		snap := DefaultSnapshot(true)
		snap.VCTime["u1"] = int64(calls)
		return snap
	}

	// tres mutaciones dentro de la ventana: una sola escritura, con el
	// collect evaluado al final
	s.MarkDirty(collect)
	s.MarkDirty(collect)
	s.MarkDirty(collect)

	assert.Eventually(t, func() bool {
		return s.Load(true).VCTime["u1"] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestSnapshotFlushWritesPendingState(t *testing.T) {
	s := tempStore(t, time.Hour)

	snap := DefaultSnapshot(true)
	snap.VCTime["u1"] = 99
	s.MarkDirty(func() Snapshot { return snap })

	require.NoError(t, s.Flush(func() Snapshot { return snap }))
	assert.Equal(t, int64(99), s.Load(true).VCTime["u1"])
}
