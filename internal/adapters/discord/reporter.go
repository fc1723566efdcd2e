package discord

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sethvargo/go-retry"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

// Reporter arma y publica los reportes de estadísticas. Implementa
// service.Reporter. El reporte del rollover es lo único del bot que vale la
// pena reintentar con ganas: si se pierde, no vuelve.
type Reporter struct {
	s            *discordgo.Session
	cmdChannelID string
}

func NewReporter(s *discordgo.Session, cmdChannelID string) *Reporter {
	return &Reporter{s: s, cmdChannelID: cmdChannelID}
}

func (r *Reporter) PostRollover(ctx context.Context, rep domain.StatsReport) error {
	msg := "🌙 **Reporte diario** " + rep.GeneratedAt.Format("2006-01-02") + "\n" + FormatReport(rep)
	backoff := retry.WithMaxDuration(90*time.Second, retry.NewExponential(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.send(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// PostManual es la respuesta a un comando: sin reintento, el que lo pidió
// está mirando y puede repetirlo.
func (r *Reporter) PostManual(ctx context.Context, rep domain.StatsReport) error {
	return r.send(ctx, "📊 **Stats del período en curso**\n"+FormatReport(rep))
}

func (r *Reporter) send(ctx context.Context, msg string) error {
	// Discord corta en 2000 chars; partimos por líneas para no mutilar filas.
	for _, chunk := range splitChunks(msg, 1900) {
		if _, err := r.s.ChannelMessageSend(r.cmdChannelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// FormatReport arma el cuerpo del reporte: tiempo en voz ordenado de mayor a
// menor, violaciones y uso de comandos.
func FormatReport(rep domain.StatsReport) string {
	var b strings.Builder

	if len(rep.VCSeconds) == 0 {
		b.WriteString("_Sin tiempo en voz registrado._\n")
	} else {
		b.WriteString("**⏱ Tiempo en voz**\n")
		type row struct {
			userID string
			secs   int64
		}
		rows := make([]row, 0, len(rep.VCSeconds))
		for userID, secs := range rep.VCSeconds {
			rows = append(rows, row{userID, secs})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].secs != rows[j].secs {
				return rows[i].secs > rows[j].secs
			}
			return rows[i].userID < rows[j].userID
		})
		for i, r := range rows {
			fmt.Fprintf(&b, "%d. <@%s> — %s\n", i+1, r.userID, FormatDuration(time.Duration(r.secs)*time.Second))
		}
	}

	if len(rep.Violations) > 0 {
		b.WriteString("\n**🚨 Violaciones del período**\n")
		users := make([]string, 0, len(rep.Violations))
		for userID := range rep.Violations {
			users = append(users, userID)
		}
		sort.Slice(users, func(i, j int) bool {
			if rep.Violations[users[i]] != rep.Violations[users[j]] {
				return rep.Violations[users[i]] > rep.Violations[users[j]]
			}
			return users[i] < users[j]
		})
		for _, userID := range users {
			fmt.Fprintf(&b, "• <@%s>: %d\n", userID, rep.Violations[userID])
		}
	}

	if len(rep.CommandUsage) > 0 {
		b.WriteString("\n**⌨️ Comandos**\n")
		cmds := make([]string, 0, len(rep.CommandUsage))
		for cmd := range rep.CommandUsage {
			cmds = append(cmds, cmd)
		}
		sort.Strings(cmds)
		for _, cmd := range cmds {
			var total int64
			for _, n := range rep.CommandUsage[cmd] {
				total += n
			}
			fmt.Fprintf(&b, "• `!%s`: %d\n", cmd, total)
		}
	}

	return b.String()
}

// FormatDuration: "2h 05m 09s", sin unidades en cero a la izquierda.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func splitChunks(msg string, limit int) []string {
	if len(msg) <= limit {
		return []string{msg}
	}
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(msg, "\n") {
		if cur.Len()+len(line)+1 > limit && cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
