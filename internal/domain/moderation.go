package domain

import "time"

// Tier es el nivel de castigo activo de un usuario. La escalera solo avanza:
// NONE -> MOVED -> TIMEOUT_SHORT -> TIMEOUT_LONG (sticky en el tope).
type Tier int

const (
	TierNone Tier = iota
	TierMoved
	TierTimeoutShort
	TierTimeoutLong
)

func (t Tier) String() string {
	switch t {
	case TierMoved:
		return "MOVED"
	case TierTimeoutShort:
		return "TIMEOUT_SHORT"
	case TierTimeoutLong:
		return "TIMEOUT_LONG"
	default:
		return "NONE"
	}
}

// TierFor mapea el contador de violaciones al tier que corresponde.
func TierFor(count int) Tier {
	switch {
	case count <= 0:
		return TierNone
	case count == 1:
		return TierMoved
	case count == 2:
		return TierTimeoutShort
	default:
		return TierTimeoutLong
	}
}

// NonComplianceReason distingue qué regla está rompiendo el usuario,
// porque cada una tiene su propia ventana de gracia.
type NonComplianceReason string

const (
	ReasonCameraOff  NonComplianceReason = "camera_off"
	ReasonSelfDeafen NonComplianceReason = "self_deafen"
)

// UserPresence es una fila por (usuario, canal monitoreado). Se borra al salir
// del canal. NonCompliantSince es la única base para el cálculo de gracia.
type UserPresence struct {
	UserID            string
	ChannelID         string
	CameraOn          bool
	SelfDeafened      bool
	NonCompliantSince *time.Time
	Reason            NonComplianceReason // válido solo si NonCompliantSince != nil
	JoinedAt          time.Time
}

// Compliant: cámara prendida y sin self-deafen.
func (p *UserPresence) Compliant() bool {
	return p.CameraOn && !p.SelfDeafened
}

// ViolationRecord pertenece exclusivamente al escalador de castigos.
type ViolationRecord struct {
	Count           int       `json:"count"`
	LastViolationAt time.Time `json:"last_violation_at"`
	ActiveTier      Tier      `json:"active_tier"`
}

// VCTimeEntry acumula tiempo en voz por usuario. SessionStart queda abierto
// mientras el usuario ocupa algún canal monitoreado.
type VCTimeEntry struct {
	AccumulatedSeconds int64
	SessionStart       *time.Time
}

// UntimeoutAudit registra quién removió castigos, cuándo y a quién.
type UntimeoutAudit struct {
	ModeratorID string    `json:"moderator_id"`
	UserID      string    `json:"user_id"`
	At          time.Time `json:"at"`
}

// EventKind clasifica notificaciones salientes. Las salidas se agrupan en
// lotes; el resto sale como anuncio individual.
type EventKind string

const (
	EventLeave      EventKind = "leave"
	EventJoin       EventKind = "join"
	EventBan        EventKind = "ban"
	EventUnban      EventKind = "unban"
	EventKick       EventKind = "kick"
	EventRoleChange EventKind = "role_change"
)

// Member es lo mínimo que necesitamos para anunciar a alguien que ya puede
// no existir en el guild (salió, fue baneado, etc).
type Member struct {
	ID          string
	Username    string
	DisplayName string
}

// StatsReport es el snapshot que se entrega al reporter en el rollover diario
// o ante un pedido manual.
type StatsReport struct {
	GeneratedAt  time.Time
	VCSeconds    map[string]int64            // user -> segundos acumulados
	CommandUsage map[string]map[string]int64 // comando -> user -> veces
	Violations   map[string]int              // user -> violaciones del período
}
