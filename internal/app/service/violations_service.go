package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

// ViolationsService recorre la presencia en cada tick y levanta una violación
// por episodio de incumplimiento que supere su ventana de gracia. El contador
// es global por usuario aunque haya varios canales monitoreados.
type ViolationsService struct {
	presence *PresenceService
	punish   *PunishmentsService

	cameraGrace time.Duration
	deafenGrace time.Duration

	mu sync.Mutex
	// raised marca episodios que ya dispararon, identificados por su inicio:
	// si el usuario cumple y reincide entre ticks, el inicio cambia y el
	// episodio nuevo dispara igual.
	raised map[presenceKey]time.Time
}

func NewViolationsService(presence *PresenceService, punish *PunishmentsService, cameraGrace, deafenGrace time.Duration) *ViolationsService {
	return &ViolationsService{
		presence:    presence,
		punish:      punish,
		cameraGrace: cameraGrace,
		deafenGrace: deafenGrace,
		raised:      map[presenceKey]time.Time{},
	}
}

// Tick evalúa todos los episodios abiertos contra su ventana. Una violación
// por episodio.
func (v *ViolationsService) Tick(ctx context.Context, now time.Time) {
	v.mu.Lock()
	for key := range v.raised {
		if v.presence.IsCompliantOrGone(key.userID, key.channelID) {
			delete(v.raised, key)
		}
	}
	v.mu.Unlock()

	for _, row := range v.presence.NonCompliant() {
		grace := v.cameraGrace
		if row.Reason == domain.ReasonSelfDeafen {
			grace = v.deafenGrace
		}
		if now.Sub(*row.NonCompliantSince) <= grace {
			continue
		}

		key := presenceKey{row.UserID, row.ChannelID}
		v.mu.Lock()
		if since, already := v.raised[key]; already && since.Equal(*row.NonCompliantSince) {
			v.mu.Unlock()
			continue
		}
		v.raised[key] = *row.NonCompliantSince
		v.mu.Unlock()

		log.Printf("violación: user=%s canal=%s motivo=%s (%.0fs sin cumplir)",
			row.UserID, row.ChannelID, row.Reason, now.Sub(*row.NonCompliantSince).Seconds())
		v.punish.HandleViolation(ctx, row.UserID, row.ChannelID, row.Reason, now)
	}
}
