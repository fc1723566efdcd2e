package service

import (
	"log"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

// StatsService lleva el libro de tiempo en voz y el uso de comandos del
// período en curso. El período se corta en el rollover diario o con un clear
// manual; en ambos casos las sesiones de los presentes se cierran y se
// reabren en el mismo instante para no perder ni un segundo.
type StatsService struct {
	excluded map[string]struct{} // usuarios que no acumulan nada

	mu       sync.Mutex
	vcTime   map[string]*domain.VCTimeEntry
	commands map[string]map[string]int64 // comando → usuario → veces
}

func NewStatsService(excludedUsers map[string]struct{}) *StatsService {
	if excludedUsers == nil {
		excludedUsers = map[string]struct{}{}
	}
	return &StatsService{
		excluded: excludedUsers,
		vcTime:   map[string]*domain.VCTimeEntry{},
		commands: map[string]map[string]int64{},
	}
}

// OnJoin abre la sesión de tiempo del usuario. Si ya tenía una abierta (evento
// duplicado del gateway) no se toca nada.
func (s *StatsService) OnJoin(userID string, now time.Time) {
	if _, skip := s.excluded[userID]; skip {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(userID)
	if entry.SessionStart == nil {
		t := now
		entry.SessionStart = &t
	}
}

// OnLeave cierra la sesión y suma lo acumulado.
func (s *StatsService) OnLeave(userID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.vcTime[userID]
	if !ok || entry.SessionStart == nil {
		return
	}
	entry.AccumulatedSeconds += int64(now.Sub(*entry.SessionStart).Seconds())
	entry.SessionStart = nil
}

// RecordCommand cuenta un uso de comando. El filtro de excluidos se aplica acá,
// en el incremento, no al armar el reporte.
func (s *StatsService) RecordCommand(command, userID string) {
	if _, skip := s.excluded[userID]; skip {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.commands[command]
	if !ok {
		byUser = map[string]int64{}
		s.commands[command] = byUser
	}
	byUser[userID]++
}

// Report arma el snapshot del período SIN cerrarlo: las sesiones abiertas se
// proyectan hasta now pero siguen corriendo. Es lo que usa el comando manual.
func (s *StatsService) Report(now time.Time, violations map[string]int) domain.StatsReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportLocked(now, violations)
}

// Rollover cierra el período: finaliza las sesiones abiertas, arma el reporte
// y arranca el período nuevo reabriendo sesión a todos los presentes.
func (s *StatsService) Rollover(now time.Time, present []string, violations map[string]int) domain.StatsReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.vcTime {
		if entry.SessionStart != nil {
			entry.AccumulatedSeconds += int64(now.Sub(*entry.SessionStart).Seconds())
			entry.SessionStart = nil
		}
	}
	rep := s.reportLocked(now, violations)

	s.vcTime = map[string]*domain.VCTimeEntry{}
	s.commands = map[string]map[string]int64{}
	for _, userID := range present {
		if _, skip := s.excluded[userID]; skip {
			continue
		}
		t := now
		s.vcTime[userID] = &domain.VCTimeEntry{SessionStart: &t}
	}

	log.Printf("stats: período cerrado (%d usuarios con tiempo, %d presentes reabiertos)",
		len(rep.VCSeconds), len(present))
	return rep
}

// ClearStats descarta el período sin reportar. Mismo finalize+reopen que el
// rollover para que los presentes no pierdan la sesión.
func (s *StatsService) ClearStats(now time.Time, present []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vcTime = map[string]*domain.VCTimeEntry{}
	s.commands = map[string]map[string]int64{}
	for _, userID := range present {
		if _, skip := s.excluded[userID]; skip {
			continue
		}
		t := now
		s.vcTime[userID] = &domain.VCTimeEntry{SessionStart: &t}
	}
}

// VCSecondsFor devuelve los segundos acumulados del usuario proyectados a now.
func (s *StatsService) VCSecondsFor(userID string, now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.vcTime[userID]
	if !ok {
		return 0
	}
	total := entry.AccumulatedSeconds
	if entry.SessionStart != nil {
		total += int64(now.Sub(*entry.SessionStart).Seconds())
	}
	return total
}

// SnapshotInto / RestoreFrom conectan con la persistencia. Solo se guarda el
// tiempo ya acumulado: una sesión abierta al morir el proceso se pierde.

func (s *StatsService) SnapshotInto(snap *storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.VCTime = make(map[string]int64, len(s.vcTime))
	for userID, entry := range s.vcTime {
		total := entry.AccumulatedSeconds
		if total > 0 {
			snap.VCTime[userID] = total
		}
	}
	snap.CommandUsage = make(map[string]map[string]int64, len(s.commands))
	for cmd, byUser := range s.commands {
		dst := make(map[string]int64, len(byUser))
		for userID, n := range byUser {
			dst[userID] = n
		}
		snap.CommandUsage[cmd] = dst
	}
}

func (s *StatsService) RestoreFrom(snap storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vcTime = make(map[string]*domain.VCTimeEntry, len(snap.VCTime))
	for userID, secs := range snap.VCTime {
		s.vcTime[userID] = &domain.VCTimeEntry{AccumulatedSeconds: secs}
	}
	s.commands = make(map[string]map[string]int64, len(snap.CommandUsage))
	for cmd, byUser := range snap.CommandUsage {
		dst := make(map[string]int64, len(byUser))
		for userID, n := range byUser {
			dst[userID] = n
		}
		s.commands[cmd] = dst
	}
}

func (s *StatsService) entryLocked(userID string) *domain.VCTimeEntry {
	entry, ok := s.vcTime[userID]
	if !ok {
		entry = &domain.VCTimeEntry{}
		s.vcTime[userID] = entry
	}
	return entry
}

func (s *StatsService) reportLocked(now time.Time, violations map[string]int) domain.StatsReport {
	rep := domain.StatsReport{
		GeneratedAt:  now,
		VCSeconds:    map[string]int64{},
		CommandUsage: map[string]map[string]int64{},
		Violations:   map[string]int{},
	}
	for userID, entry := range s.vcTime {
		total := entry.AccumulatedSeconds
		if entry.SessionStart != nil {
			total += int64(now.Sub(*entry.SessionStart).Seconds())
		}
		if total > 0 {
			rep.VCSeconds[userID] = total
		}
	}
	for cmd, byUser := range s.commands {
		dst := make(map[string]int64, len(byUser))
		for userID, n := range byUser {
			dst[userID] = n
		}
		rep.CommandUsage[cmd] = dst
	}
	for userID, n := range violations {
		rep.Violations[userID] = n
	}
	return rep
}
