package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

func newEngineFixture(t *testing.T) *Engine {
	t.Helper()
	exec := newFakeExec()
	presence := NewPresenceService([]string{"vc-main"}, nil)
	punish := NewPunishmentsService(exec, &fakeNotifier{}, nil, "g1", "vc-castigo", time.Minute, 5*time.Minute)
	violations := NewViolationsService(presence, punish, 30*time.Second, 45*time.Second)
	stats := NewStatsService(nil)
	store := storage.NewSnapshotStore(filepath.Join(t.TempDir(), "state.json"), time.Hour)
	return NewEngine(presence, violations, punish, stats, store, &fakeNotifier{}, nil, nil, "g1", 15*time.Second, 4, 30)
}

func TestNextRollover(t *testing.T) {
	e := newEngineFixture(t)

	// antes de la hora de corte: hoy mismo
	now := time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 23, 4, 30, 0, 0, time.UTC), e.nextRollover(now))

	// justo en el corte o después: mañana
	at := time.Date(2026, 8, 23, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 4, 30, 0, 0, time.UTC), e.nextRollover(at))
	late := time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 4, 30, 0, 0, time.UTC), e.nextRollover(late))
}

func TestEngineFlagsSurviveSnapshot(t *testing.T) {
	e := newEngineFixture(t)
	e.RestoreFrom(storage.DefaultSnapshot(true))
	assert.True(t, e.ModerationEnabled())
	assert.True(t, e.NotificationsEnabled())

	e.SetModeration(false)
	e.SetNotifications(false)

	snap := e.collect()
	assert.False(t, snap.Flags.ModerationEnabled)
	assert.False(t, snap.Flags.NotificationsEnabled)

	e2 := newEngineFixture(t)
	e2.RestoreFrom(snap)
	assert.False(t, e2.ModerationEnabled())
	assert.False(t, e2.NotificationsEnabled())
}
