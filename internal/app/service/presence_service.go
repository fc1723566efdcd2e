package service

import (
	"log"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

// Transition describe qué le pasó a la membresía del usuario tras un evento.
type Transition int

const (
	TransitionNone Transition = iota
	// TransitionJoined: primer canal monitoreado que ocupa el usuario.
	TransitionJoined
	// TransitionLeft: ya no ocupa ningún canal monitoreado.
	TransitionLeft
)

type presenceKey struct{ userID, channelID string }

// PresenceService mantiene el estado actual de cámara/deafen/membresía por
// (usuario, canal monitoreado). Es el único que escribe UserPresence.
type PresenceService struct {
	mu        sync.Mutex
	monitored map[string]struct{}
	exempt    map[string]struct{} // usuarios que nunca se marcan incumplidores
	rows      map[presenceKey]*domain.UserPresence
}

func NewPresenceService(monitoredChannels []string, exemptUsers map[string]struct{}) *PresenceService {
	mon := make(map[string]struct{}, len(monitoredChannels))
	for _, id := range monitoredChannels {
		mon[id] = struct{}{}
	}
	if exemptUsers == nil {
		exemptUsers = map[string]struct{}{}
	}
	return &PresenceService{
		monitored: mon,
		exempt:    exemptUsers,
		rows:      map[presenceKey]*domain.UserPresence{},
	}
}

// OnPresenceEvent crea o actualiza la fila del (usuario, canal). Canales no
// monitoreados se ignoran en silencio. Devuelve la transición de membresía
// para que el engine avise a stats y al batcher.
func (p *PresenceService) OnPresenceEvent(userID, channelID string, cameraOn, selfDeafened bool, now time.Time) Transition {
	if _, ok := p.monitored[channelID]; !ok {
		return TransitionNone
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := presenceKey{userID, channelID}
	row, exists := p.rows[key]
	joined := !exists && !p.occupiesAnyLocked(userID)

	if !exists {
		row = &domain.UserPresence{UserID: userID, ChannelID: channelID, JoinedAt: now}
		p.rows[key] = row
	}
	row.CameraOn = cameraOn
	row.SelfDeafened = selfDeafened

	if _, ok := p.exempt[userID]; ok {
		row.NonCompliantSince = nil
		row.Reason = ""
	} else if row.Compliant() {
		if row.NonCompliantSince != nil {
			log.Printf("presence: %s volvió a cumplir en %s", userID, channelID)
		}
		row.NonCompliantSince = nil
		row.Reason = ""
	} else {
		// La cámara apagada manda sobre el deafen si pasan las dos cosas.
		reason := domain.ReasonSelfDeafen
		if !cameraOn {
			reason = domain.ReasonCameraOff
		}
		// Cambiar de motivo sin cumplir en el medio NO abre episodio nuevo:
		// el episodio dura mientras el usuario siga sin cumplir.
		if row.NonCompliantSince == nil {
			t := now
			row.NonCompliantSince = &t
		}
		row.Reason = reason
	}

	if joined {
		return TransitionJoined
	}
	return TransitionNone
}

// OnLeave borra la fila. Si el usuario no queda en ningún otro canal
// monitoreado devuelve TransitionLeft para cerrar su sesión de tiempo.
func (p *PresenceService) OnLeave(userID, channelID string, now time.Time) Transition {
	if _, ok := p.monitored[channelID]; !ok {
		return TransitionNone
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := presenceKey{userID, channelID}
	if _, exists := p.rows[key]; !exists {
		return TransitionNone
	}
	delete(p.rows, key)

	if p.occupiesAnyLocked(userID) {
		return TransitionNone
	}
	return TransitionLeft
}

// NonCompliant devuelve copias de las filas con episodio abierto, para que el
// evaluador trabaje sin tocar el store.
func (p *PresenceService) NonCompliant() []domain.UserPresence {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.UserPresence
	for _, row := range p.rows {
		if row.NonCompliantSince != nil {
			out = append(out, *row)
		}
	}
	return out
}

// PresentUsers lista los usuarios que ocupan algún canal monitoreado
// (sin duplicar al que está trackeado en más de uno).
func (p *PresenceService) PresentUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := map[string]struct{}{}
	var out []string
	for key := range p.rows {
		if _, ok := seen[key.userID]; ok {
			continue
		}
		seen[key.userID] = struct{}{}
		out = append(out, key.userID)
	}
	return out
}

// IsCompliantOrGone: true si el usuario ya no tiene ningún episodio abierto
// en ese canal (el evaluador lo usa para limpiar marcadores de episodio).
func (p *PresenceService) IsCompliantOrGone(userID, channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.rows[presenceKey{userID, channelID}]
	return !ok || row.NonCompliantSince == nil
}

func (p *PresenceService) occupiesAnyLocked(userID string) bool {
	for key := range p.rows {
		if key.userID == userID {
			return true
		}
	}
	return false
}
