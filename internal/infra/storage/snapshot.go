package storage

import (
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

// SnapshotVersion sube cuando cambia el esquema del archivo de estado.
const SnapshotVersion = 1

// Snapshot es el documento único que persiste todo el estado mutable del
// engine. La presencia en vivo NO se guarda: se reconstruye del gateway.
type Snapshot struct {
	Version        int                               `json:"version"`
	Violations     map[string]domain.ViolationRecord `json:"violations"`
	VCTime         map[string]int64                  `json:"vc_time"`
	CommandUsage   map[string]map[string]int64       `json:"command_usage"`
	UntimeoutAudit []domain.UntimeoutAudit           `json:"untimeout_audit"`
	Flags          Flags                             `json:"flags"`
	SavedAt        time.Time                         `json:"saved_at"`
}

type Flags struct {
	ModerationEnabled    bool `json:"moderation_enabled"`
	NotificationsEnabled bool `json:"notifications_enabled"`
}

// DefaultSnapshot es el estado de arranque cuando no hay archivo (o está roto).
func DefaultSnapshot(moderationEnabled bool) Snapshot {
	return Snapshot{
		Version:      SnapshotVersion,
		Violations:   map[string]domain.ViolationRecord{},
		VCTime:       map[string]int64{},
		CommandUsage: map[string]map[string]int64{},
		Flags: Flags{
			ModerationEnabled:    moderationEnabled,
			NotificationsEnabled: true,
		},
	}
}

// normalize rellena mapas nil después de deserializar un archivo viejo.
func (s *Snapshot) normalize() {
	if s.Violations == nil {
		s.Violations = map[string]domain.ViolationRecord{}
	}
	if s.VCTime == nil {
		s.VCTime = map[string]int64{}
	}
	if s.CommandUsage == nil {
		s.CommandUsage = map[string]map[string]int64{}
	}
}
