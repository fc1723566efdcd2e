package service

import (
	"context"
	"errors"
	"time"

	"github.com/jose-valero/skipcord-bot/internal/domain"
	"github.com/jose-valero/skipcord-bot/internal/infra/storage"
)

// Clasificación de fallas de acciones salientes. El ejecutor envuelve el error
// crudo de la plataforma con uno de estos para que la política de reintentos
// se decida acá y no en el adapter.
var (
	// ErrPermission: al bot le faltan permisos. No se reintenta nunca.
	ErrPermission = errors.New("missing permissions")
	// ErrTransient: rate limit o falla momentánea de red.
	ErrTransient = errors.New("transient failure")
)

// Lo implementa internal/adapters/discord.Executor
type ActionExecutor interface {
	MoveUser(ctx context.Context, userID, fromChannel, toChannel string) error
	ApplyTimeout(ctx context.Context, userID string, d time.Duration, reason string) error
	RemoveTimeout(ctx context.Context, userID string) error
}

// Lo implementa internal/adapters/discord.Notifier
type Notifier interface {
	PostDigest(ctx context.Context, kind domain.EventKind, members []domain.Member, meta map[string]string) error
	PostEvent(ctx context.Context, kind domain.EventKind, m domain.Member) error
	// PostOperatorError: fallas con contexto (usuario, acción, causa) para el
	// canal visible por operadores.
	PostOperatorError(ctx context.Context, payload string) error
}

// Lo implementa internal/adapters/discord.Reporter
type Reporter interface {
	PostRollover(ctx context.Context, rep domain.StatsReport) error
	PostManual(ctx context.Context, rep domain.StatsReport) error
}

// Archivo histórico opcional (Postgres). Nil cuando no hay DATABASE_URL.
type AuditLog interface {
	Insert(ctx context.Context, e storage.AuditEntry) error
	ListSince(ctx context.Context, guildID string, since time.Time, limit int) ([]storage.AuditEntry, error)
	Clear(ctx context.Context, guildID string) (int64, error)
}

type ReportArchive interface {
	Insert(ctx context.Context, guildID string, rep domain.StatsReport) error
	LastGeneratedAt(ctx context.Context, guildID string) (time.Time, error)
}
