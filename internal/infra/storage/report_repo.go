package storage

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

// Insert archiva el snapshot del rollover como JSONB.
func (r *ReportRepo) Insert(ctx context.Context, guildID string, rep domain.StatsReport) error {
	blob, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO daily_reports (guild_id, report_json, generated_at)
VALUES ($1,$2,$3)
`, guildID, blob, rep.GeneratedAt)
	return err
}

// LastGeneratedAt devuelve cuándo se archivó el último reporte (zero si nunca).
func (r *ReportRepo) LastGeneratedAt(ctx context.Context, guildID string) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `
SELECT generated_at FROM daily_reports
 WHERE guild_id = $1
 ORDER BY generated_at DESC
 LIMIT 1
`, guildID).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return t, err
}
