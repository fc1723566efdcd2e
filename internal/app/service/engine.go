package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

// Engine es el consumidor único: todos los eventos del gateway y los comandos
// entran como closures a una cola y se ejecutan en orden de llegada en un solo
// goroutine, junto con el tick del evaluador y el rollover diario. Así no hay
// carreras entre presencia, stats y castigos.
type Engine struct {
	presence   *PresenceService
	violations *ViolationsService
	punish     *PunishmentsService
	stats      *StatsService
	digests    *DigestService
	store      *storage.SnapshotStore
	notifier   Notifier
	reporter   Reporter
	reports    ReportArchive // nil si no hay archivo histórico

	guildID      string
	evalInterval time.Duration
	rolloverHour int
	rolloverMin  int

	queue chan func(ctx context.Context)

	flagMu        sync.Mutex
	moderation    bool
	notifications bool
}

func NewEngine(
	presence *PresenceService,
	violations *ViolationsService,
	punish *PunishmentsService,
	stats *StatsService,
	store *storage.SnapshotStore,
	notifier Notifier,
	reporter Reporter,
	reports ReportArchive,
	guildID string,
	evalInterval time.Duration,
	rolloverHour, rolloverMin int,
) *Engine {
	return &Engine{
		presence:     presence,
		violations:   violations,
		punish:       punish,
		stats:        stats,
		store:        store,
		notifier:     notifier,
		reporter:     reporter,
		reports:      reports,
		guildID:      guildID,
		evalInterval: evalInterval,
		rolloverHour: rolloverHour,
		rolloverMin:  rolloverMin,
		queue:        make(chan func(ctx context.Context), 256),
	}
}

// AttachDigests se llama después de construir el DigestService porque su gate
// de notificaciones apunta de vuelta al engine.
func (e *Engine) AttachDigests(d *DigestService) { e.digests = d }

// MarkDirty pide un guardado diferido del snapshot.
func (e *Engine) MarkDirty() { e.markDirty() }

// RestoreFrom levanta el estado del snapshot al arrancar.
func (e *Engine) RestoreFrom(snap storage.Snapshot) {
	e.punish.RestoreFrom(snap)
	e.stats.RestoreFrom(snap)
	e.flagMu.Lock()
	e.moderation = snap.Flags.ModerationEnabled
	e.notifications = snap.Flags.NotificationsEnabled
	e.flagMu.Unlock()
}

// Run procesa la cola hasta que el contexto muera. Al salir cierra lotes
// pendientes y fuerza el último guardado.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.evalInterval)
	defer ticker.Stop()

	rollover := time.NewTimer(time.Until(e.nextRollover(time.Now().UTC())))
	defer rollover.Stop()

	log.Printf("🚂 engine andando (tick=%s, rollover diario %02d:%02d UTC)",
		e.evalInterval, e.rolloverHour, e.rolloverMin)

	for {
		select {
		case <-ctx.Done():
			if e.digests != nil {
				e.digests.FlushAll()
			}
			e.store.Flush(e.collect)
			log.Println("🛑 engine apagado, estado guardado")
			return

		case fn := <-e.queue:
			fn(ctx)

		case <-ticker.C:
			if e.ModerationEnabled() {
				e.violations.Tick(ctx, time.Now().UTC())
			}

		case <-rollover.C:
			now := time.Now().UTC()
			e.runRollover(ctx, now)
			rollover.Reset(time.Until(e.nextRollover(now)))
		}
	}
}

// --- ingestión desde el gateway (router de Discord) ---

// OnVoiceUpdate: el usuario está (o sigue) en channelID con ese estado de
// cámara/deafen.
func (e *Engine) OnVoiceUpdate(userID, channelID string, cameraOn, selfDeafened bool) {
	e.enqueue(func(ctx context.Context) {
		now := time.Now().UTC()
		if e.presence.OnPresenceEvent(userID, channelID, cameraOn, selfDeafened, now) == TransitionJoined {
			e.stats.OnJoin(userID, now)
		}
	})
}

// OnVoiceLeave: el usuario dejó channelID.
func (e *Engine) OnVoiceLeave(userID, channelID string) {
	e.enqueue(func(ctx context.Context) {
		now := time.Now().UTC()
		if e.presence.OnLeave(userID, channelID, now) == TransitionLeft {
			e.stats.OnLeave(userID, now)
		}
	})
}

// OnMemberEvent: las salidas van al batcher, el resto sale como anuncio
// individual. Nada de esto pasa por la cola del engine; el batcher tiene su
// propio lock y el envío individual es un goroutine suelto.
func (e *Engine) OnMemberEvent(kind domain.EventKind, m domain.Member) {
	if kind == domain.EventLeave {
		if e.digests != nil {
			e.digests.Add(kind, m)
		}
		return
	}
	if e.notifier == nil || !e.NotificationsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.notifier.PostEvent(ctx, kind, m); err != nil {
			log.Printf("anuncio %s de %s falló: %v", kind, m.ID, err)
		}
	}()
}

// --- operaciones de comandos ---

// ManualReport arma el reporte del período en curso sin cerrarlo.
func (e *Engine) ManualReport() domain.StatsReport {
	var rep domain.StatsReport
	e.do(func(ctx context.Context) {
		rep = e.stats.Report(time.Now().UTC(), e.punish.ViolationCounts())
	})
	return rep
}

// UserTime devuelve los segundos en voz del usuario en el período en curso.
func (e *Engine) UserTime(userID string) int64 {
	var secs int64
	e.do(func(ctx context.Context) {
		secs = e.stats.VCSecondsFor(userID, time.Now().UTC())
	})
	return secs
}

// RemoveAllTimeouts levanta todos los castigos activos (contadores quedan).
func (e *Engine) RemoveAllTimeouts(moderatorID string) int {
	var n int
	e.do(func(ctx context.Context) {
		n = e.punish.RemoveAllTimeouts(ctx, moderatorID, time.Now().UTC())
	})
	return n
}

// ClearStats descarta las stats del período sin reportar.
func (e *Engine) ClearStats() {
	e.do(func(ctx context.Context) {
		e.stats.ClearStats(time.Now().UTC(), e.presence.PresentUsers())
		e.markDirty()
	})
}

// ClearViolations borra contadores, tiers y auditoría (y el archivo histórico).
func (e *Engine) ClearViolations() {
	e.do(func(ctx context.Context) {
		e.punish.ClearHistory(ctx)
	})
}

// RecordCommand cuenta el uso de un comando para el reporte del período.
func (e *Engine) RecordCommand(command, userID string) {
	e.enqueue(func(ctx context.Context) {
		e.stats.RecordCommand(command, userID)
		e.markDirty()
	})
}

// UntimeoutAudit devuelve el historial de untimeouts manuales del período.
func (e *Engine) UntimeoutAudit() []domain.UntimeoutAudit {
	return e.punish.AuditEntries()
}

// ArchivedAudit lista acciones del archivo histórico (vacío sin DB).
func (e *Engine) ArchivedAudit(ctx context.Context, since time.Time, limit int) ([]storage.AuditEntry, error) {
	return e.punish.ArchivedEntries(ctx, since, limit)
}

// LastReportArchivedAt: cuándo se archivó el último reporte diario (zero si
// nunca, o si no hay archivo).
func (e *Engine) LastReportArchivedAt(ctx context.Context) (time.Time, error) {
	if e.reports == nil {
		return time.Time{}, nil
	}
	return e.reports.LastGeneratedAt(ctx, e.guildID)
}

// --- flags ---

func (e *Engine) ModerationEnabled() bool {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	return e.moderation
}

func (e *Engine) NotificationsEnabled() bool {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	return e.notifications
}

func (e *Engine) SetModeration(on bool) {
	e.flagMu.Lock()
	e.moderation = on
	e.flagMu.Unlock()
	log.Printf("⚙️  moderación: %v", on)
	e.markDirty()
}

func (e *Engine) SetNotifications(on bool) {
	e.flagMu.Lock()
	e.notifications = on
	e.flagMu.Unlock()
	log.Printf("⚙️  notificaciones: %v", on)
	e.markDirty()
}

// --- internos ---

func (e *Engine) enqueue(fn func(ctx context.Context)) {
	e.queue <- fn
}

// do encola y espera: para comandos que necesitan el resultado.
func (e *Engine) do(fn func(ctx context.Context)) {
	done := make(chan struct{})
	e.queue <- func(ctx context.Context) {
		fn(ctx)
		close(done)
	}
	<-done
}

func (e *Engine) runRollover(ctx context.Context, now time.Time) {
	log.Printf("🕓 rollover diario %s", now.Format("2006-01-02 15:04"))

	violations := e.punish.ViolationCounts()
	rep := e.stats.Rollover(now, e.presence.PresentUsers(), violations)
	e.punish.ResetForRollover()
	e.markDirty()

	// Publicar y archivar salen de la cola: el reporter ya reintenta por su
	// cuenta y no queremos frenar el loop.
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if e.reporter != nil {
			if err := e.reporter.PostRollover(pctx, rep); err != nil {
				log.Printf("rollover: no pude publicar el reporte: %v", err)
			}
		}
		if e.reports != nil {
			if err := e.reports.Insert(pctx, e.guildID, rep); err != nil {
				log.Printf("rollover: no pude archivar el reporte: %v", err)
			}
		}
	}()
}

func (e *Engine) nextRollover(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), e.rolloverHour, e.rolloverMin, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func (e *Engine) markDirty() {
	e.store.MarkDirty(e.collect)
}

func (e *Engine) collect() storage.Snapshot {
	snap := storage.DefaultSnapshot(true)
	e.punish.SnapshotInto(&snap)
	e.stats.SnapshotInto(&snap)
	e.flagMu.Lock()
	snap.Flags.ModerationEnabled = e.moderation
	snap.Flags.NotificationsEnabled = e.notifications
	e.flagMu.Unlock()
	snap.SavedAt = time.Now().UTC()
	return snap
}
