package storage

import (
	"context"
	"database/sql"
	"time"
)

// AuditEntry es una fila del archivo histórico de castigos. A diferencia del
// snapshot, esto sobrevive al reset diario de estadísticas.
type AuditEntry struct {
	GuildID   string
	UserID    string
	Action    string // moved | timeout_short | timeout_long | untimeout
	Moderator string
	Reason    string
	Succeeded bool
	CreatedAt time.Time
}

type AuditRepo struct{ db *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Insert(ctx context.Context, e AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO punishment_audit (guild_id, user_id, action, moderator, reason, succeeded)
VALUES ($1,$2,$3,$4,$5,$6)
`, e.GuildID, e.UserID, e.Action, e.Moderator, e.Reason, e.Succeeded)
	return err
}

func (r *AuditRepo) ListSince(ctx context.Context, guildID string, since time.Time, limit int) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT guild_id, user_id, action, moderator, reason, succeeded, created_at
  FROM punishment_audit
 WHERE guild_id = $1 AND created_at >= $2
 ORDER BY created_at DESC
 LIMIT $3
`, guildID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.GuildID, &e.UserID, &e.Action, &e.Moderator, &e.Reason, &e.Succeeded, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear borra todo el historial del guild. Solo lo dispara el clear explícito
// de un admin; el rollover diario nunca toca esta tabla.
func (r *AuditRepo) Clear(ctx context.Context, guildID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM punishment_audit WHERE guild_id = $1
`, guildID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
