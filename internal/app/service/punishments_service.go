package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

// PunishmentsService es la máquina de estados de castigo por usuario. Es el
// único dueño de ViolationRecord: nadie más lo muta.
//
// Escalera: 1 → mover al canal de castigo, 2 → timeout corto, 3+ → timeout
// largo (se re-aplica en cada violación siguiente, no escala más).
type PunishmentsService struct {
	exec     ActionExecutor
	notifier Notifier
	audit    AuditLog // nil si no hay archivo histórico

	guildID        string
	punishmentVCID string
	timeoutShort   time.Duration
	timeoutLong    time.Duration

	// onMutate avisa al engine que hay que persistir (escritura diferida).
	onMutate func()

	mu       sync.Mutex
	records  map[string]*domain.ViolationRecord
	inflight map[string]struct{} // usuarios con una acción todavía en vuelo
	auditLog []domain.UntimeoutAudit
}

func NewPunishmentsService(exec ActionExecutor, notifier Notifier, audit AuditLog, guildID, punishmentVCID string, timeoutShort, timeoutLong time.Duration) *PunishmentsService {
	return &PunishmentsService{
		exec:           exec,
		notifier:       notifier,
		audit:          audit,
		guildID:        guildID,
		punishmentVCID: punishmentVCID,
		timeoutShort:   timeoutShort,
		timeoutLong:    timeoutLong,
		onMutate:       func() {},
		records:        map[string]*domain.ViolationRecord{},
		inflight:       map[string]struct{}{},
	}
}

// SetOnMutate engancha la persistencia diferida (se llama al armar el engine).
func (s *PunishmentsService) SetOnMutate(fn func()) {
	if fn != nil {
		s.onMutate = fn
	}
}

// HandleViolation incrementa el contador del usuario y despacha la acción del
// tier que corresponde. Si todavía hay una acción en vuelo para el mismo
// usuario, la violación se descarta: nunca se superponen dos acciones.
func (s *PunishmentsService) HandleViolation(ctx context.Context, userID, channelID string, reason domain.NonComplianceReason, now time.Time) {
	s.mu.Lock()
	if _, busy := s.inflight[userID]; busy {
		s.mu.Unlock()
		log.Printf("castigo: acción en vuelo para %s, violación descartada", userID)
		return
	}
	rec, ok := s.records[userID]
	if !ok {
		rec = &domain.ViolationRecord{}
		s.records[userID] = rec
	}
	rec.Count++
	rec.LastViolationAt = now
	rec.ActiveTier = domain.TierFor(rec.Count)
	tier := rec.ActiveTier
	count := rec.Count
	s.inflight[userID] = struct{}{}
	s.mu.Unlock()

	s.onMutate()
	log.Printf("castigo: user=%s violación #%d → %s", userID, count, tier)

	go s.issue(ctx, userID, channelID, tier, reason)
}

func (s *PunishmentsService) issue(ctx context.Context, userID, channelID string, tier domain.Tier, reason domain.NonComplianceReason) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, userID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		err    error
		action string
		why    = fmt.Sprintf("camera rule (%s)", reason)
	)
	switch tier {
	case domain.TierMoved:
		action = "moved"
		err = s.exec.MoveUser(ctx, userID, channelID, s.punishmentVCID)
	case domain.TierTimeoutShort:
		action = "timeout_short"
		err = s.exec.ApplyTimeout(ctx, userID, s.timeoutShort, why)
	default:
		action = "timeout_long"
		err = s.exec.ApplyTimeout(ctx, userID, s.timeoutLong, why)
	}

	s.archive(storage.AuditEntry{
		GuildID:   s.guildID,
		UserID:    userID,
		Action:    action,
		Moderator: "AutoMod",
		Reason:    why,
		Succeeded: err == nil,
	})

	if err == nil {
		return
	}

	// Sin reintento: un castigo tardío aplicaría un tier ya desactualizado.
	// Solo se registra el intento fallido y se avisa al operador.
	cause := "transient failure"
	if errors.Is(err, ErrPermission) {
		cause = "missing permissions"
	}
	log.Printf("castigo: %s para %s falló (%s): %v", action, userID, cause, err)
	if s.notifier != nil {
		_ = s.notifier.PostOperatorError(ctx, fmt.Sprintf(
			"⚠️ No pude aplicar **%s** a <@%s> (%s): %v", action, userID, cause, err))
	}
}

// RemoveAllTimeouts es la acción administrativa: baja todos los tiers a NONE
// pero deja los contadores intactos, así la próxima violación retoma el tier
// ya ganado. Aplicarla dos veces da el mismo resultado que una.
func (s *PunishmentsService) RemoveAllTimeouts(ctx context.Context, moderatorID string, now time.Time) int {
	s.mu.Lock()
	var affected []string
	var needsRemove []string
	for userID, rec := range s.records {
		if rec.ActiveTier == domain.TierNone {
			continue
		}
		if rec.ActiveTier == domain.TierTimeoutShort || rec.ActiveTier == domain.TierTimeoutLong {
			needsRemove = append(needsRemove, userID)
		}
		rec.ActiveTier = domain.TierNone
		affected = append(affected, userID)
	}
	for _, userID := range affected {
		s.auditLog = append(s.auditLog, domain.UntimeoutAudit{
			ModeratorID: moderatorID,
			UserID:      userID,
			At:          now,
		})
	}
	s.mu.Unlock()

	if len(affected) == 0 {
		return 0
	}
	s.onMutate()

	for _, userID := range needsRemove {
		if err := s.exec.RemoveTimeout(ctx, userID); err != nil {
			log.Printf("castigo: remover timeout de %s falló: %v", userID, err)
		}
	}
	for _, userID := range affected {
		s.archive(storage.AuditEntry{
			GuildID:   s.guildID,
			UserID:    userID,
			Action:    "untimeout",
			Moderator: moderatorID,
			Succeeded: true,
		})
	}
	return len(affected)
}

// ResetForRollover arranca el período nuevo: contadores a cero y tiers a NONE.
// El historial de auditoría no se toca (eso solo lo borra el clear explícito).
func (s *PunishmentsService) ResetForRollover() {
	s.mu.Lock()
	s.records = map[string]*domain.ViolationRecord{}
	s.mu.Unlock()
	s.onMutate()
}

// ClearHistory es el clear explícito de un admin: contadores, tiers y
// auditoría, todo afuera (incluido el archivo en Postgres si existe).
func (s *PunishmentsService) ClearHistory(ctx context.Context) {
	s.mu.Lock()
	s.records = map[string]*domain.ViolationRecord{}
	s.auditLog = nil
	s.mu.Unlock()
	s.onMutate()

	if s.audit != nil {
		if _, err := s.audit.Clear(ctx, s.guildID); err != nil {
			log.Printf("castigo: clear del archivo histórico falló: %v", err)
		}
	}
}

// Record devuelve una copia del registro del usuario (zero value si no hay).
func (s *PunishmentsService) Record(userID string) domain.ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok {
		return *rec
	}
	return domain.ViolationRecord{}
}

// ViolationCounts para el reporte del período.
func (s *PunishmentsService) ViolationCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.records))
	for userID, rec := range s.records {
		if rec.Count > 0 {
			out[userID] = rec.Count
		}
	}
	return out
}

// ArchivedEntries lee las acciones recientes del archivo histórico. Sin DB
// configurada devuelve vacío.
func (s *PunishmentsService) ArchivedEntries(ctx context.Context, since time.Time, limit int) ([]storage.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.ListSince(ctx, s.guildID, since, limit)
}

// AuditEntries devuelve el historial de untimeouts manuales (más reciente al final).
func (s *PunishmentsService) AuditEntries() []domain.UntimeoutAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UntimeoutAudit, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// SnapshotInto / RestoreFrom conectan con la persistencia.

func (s *PunishmentsService) SnapshotInto(snap *storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Violations = make(map[string]domain.ViolationRecord, len(s.records))
	for userID, rec := range s.records {
		snap.Violations[userID] = *rec
	}
	snap.UntimeoutAudit = make([]domain.UntimeoutAudit, len(s.auditLog))
	copy(snap.UntimeoutAudit, s.auditLog)
}

func (s *PunishmentsService) RestoreFrom(snap storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*domain.ViolationRecord, len(snap.Violations))
	for userID, rec := range snap.Violations {
		r := rec
		s.records[userID] = &r
	}
	s.auditLog = make([]domain.UntimeoutAudit, len(snap.UntimeoutAudit))
	copy(s.auditLog, snap.UntimeoutAudit)
}

func (s *PunishmentsService) archive(e storage.AuditEntry) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.audit.Insert(ctx, e); err != nil {
		log.Printf("castigo: no pude archivar auditoría (%s/%s): %v", e.Action, e.UserID, err)
	}
}
