package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/skipcord-bot/internal/domain"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

func newPunish(exec *fakeExec, notifier *fakeNotifier) *PunishmentsService {
	return NewPunishmentsService(exec, notifier, nil, "g1", "vc-castigo", time.Minute, 5*time.Minute)
}

func TestPunishLadder(t *testing.T) {
	exec := newFakeExec()
	p := newPunish(exec, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		wantTier domain.Tier
		wantCall string
	}{
		{domain.TierMoved, "move:u1:vc-castigo"},
		{domain.TierTimeoutShort, "timeout:u1:1m0s"},
		{domain.TierTimeoutLong, "timeout:u1:5m0s"},
		{domain.TierTimeoutLong, "timeout:u1:5m0s"}, // sticky en el tope
	}
	for i, tc := range cases {
		p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
		assert.Equal(t, tc.wantCall, exec.wait(t), "violación #%d", i+1)

		rec := p.Record("u1")
		assert.Equal(t, i+1, rec.Count)
		assert.Equal(t, tc.wantTier, rec.ActiveTier)
	}
}

func TestPunishInFlightDropsViolation(t *testing.T) {
	exec := newFakeExec()
	exec.gate = make(chan struct{})
	p := newPunish(exec, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now()

	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	// la acción quedó trabada en el gate: la segunda violación se descarta
	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now.Add(time.Second))
	assert.Equal(t, 1, p.Record("u1").Count)

	close(exec.gate)
	exec.wait(t)
	require.Len(t, exec.snapshot(), 1)
}

func TestPunishFailureKeepsSingleIncrement(t *testing.T) {
	exec := newFakeExec()
	exec.err = fmt.Errorf("%w: 403", ErrPermission)
	notifier := &fakeNotifier{}
	p := newPunish(exec, notifier)
	ctx := context.Background()

	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, time.Now())
	exec.wait(t)

	// la falla no toca el contador ni reintenta
	assert.Equal(t, 1, p.Record("u1").Count)
	require.Len(t, exec.snapshot(), 1)

	assert.Eventually(t, func() bool {
		return len(notifier.operatorErrors()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, notifier.operatorErrors()[0], "missing permissions")
}

func TestRemoveAllTimeoutsKeepsCounts(t *testing.T) {
	exec := newFakeExec()
	p := newPunish(exec, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now()

	// u1 llega a timeout corto, u2 solo al move
	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)
	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)
	p.HandleViolation(ctx, "u2", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)

	n := p.RemoveAllTimeouts(ctx, "mod1", now)
	assert.Equal(t, 2, n)

	// los contadores quedan, los tiers bajan a NONE
	assert.Equal(t, 2, p.Record("u1").Count)
	assert.Equal(t, domain.TierNone, p.Record("u1").ActiveTier)
	assert.Equal(t, 1, p.Record("u2").Count)
	assert.Equal(t, domain.TierNone, p.Record("u2").ActiveTier)

	// solo u1 tenía timeout que remover en la plataforma
	assert.Equal(t, "untimeout:u1", exec.wait(t))

	audit := p.AuditEntries()
	require.Len(t, audit, 2)
	assert.Equal(t, "mod1", audit[0].ModeratorID)

	// idempotente: segunda pasada no hace nada
	assert.Equal(t, 0, p.RemoveAllTimeouts(ctx, "mod1", now))
	assert.Equal(t, 2, p.Record("u1").Count)
}

func TestRemoveAllTimeoutsResumesEarnedTier(t *testing.T) {
	exec := newFakeExec()
	p := newPunish(exec, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now()

	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)
	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)

	p.RemoveAllTimeouts(ctx, "mod1", now)
	exec.wait(t) // untimeout

	// la próxima violación retoma desde el contador ganado: #3 → largo
	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	assert.Equal(t, "timeout:u1:5m0s", exec.wait(t))
	assert.Equal(t, domain.TierTimeoutLong, p.Record("u1").ActiveTier)
}

func TestPunishRolloverAndClear(t *testing.T) {
	exec := newFakeExec()
	p := newPunish(exec, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now()

	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)
	p.RemoveAllTimeouts(ctx, "mod1", now)

	p.ResetForRollover()
	assert.Equal(t, 0, p.Record("u1").Count)
	// el rollover NO borra la auditoría
	assert.Len(t, p.AuditEntries(), 1)

	p.ClearHistory(ctx)
	assert.Empty(t, p.AuditEntries())
}

func TestPunishWritesArchive(t *testing.T) {
	exec := newFakeExec()
	audit := &fakeAudit{}
	p := NewPunishmentsService(exec, &fakeNotifier{}, audit, "g1", "vc-castigo", time.Minute, 5*time.Minute)
	ctx := context.Background()
	now := time.Now()
	since := now.Add(-time.Hour)

	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)

	// el archivado corre después de la acción, en el mismo goroutine
	require.Eventually(t, func() bool {
		entries, _ := p.ArchivedEntries(ctx, since, 10)
		return len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := p.ArchivedEntries(ctx, since, 10)
	require.NoError(t, err)
	assert.Equal(t, "moved", entries[0].Action)
	assert.Equal(t, "AutoMod", entries[0].Moderator)
	assert.True(t, entries[0].Succeeded)

	// el untimeout manual también queda archivado
	p.RemoveAllTimeouts(ctx, "mod1", now)
	entries, err = p.ArchivedEntries(ctx, since, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "untimeout", entries[1].Action)
	assert.Equal(t, "mod1", entries[1].Moderator)

	// el clear explícito vacía también el archivo
	p.ClearHistory(ctx)
	assert.Equal(t, 1, audit.cleared)
	entries, _ = p.ArchivedEntries(ctx, since, 10)
	assert.Empty(t, entries)
}

func TestPunishSnapshotRoundTrip(t *testing.T) {
	exec := newFakeExec()
	p := newPunish(exec, &fakeNotifier{})
	ctx := context.Background()
	now := time.Now()

	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)
	p.HandleViolation(ctx, "u1", "vc-main", domain.ReasonCameraOff, now)
	exec.wait(t)

	snap := storage.DefaultSnapshot(true)
	p.SnapshotInto(&snap)

	restored := newPunish(newFakeExec(), &fakeNotifier{})
	restored.RestoreFrom(snap)

	assert.Equal(t, 2, restored.Record("u1").Count)
	assert.Equal(t, domain.TierTimeoutShort, restored.Record("u1").ActiveTier)
}
