package discord

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
)

const helpText = "**Comandos**\n" +
	"`!times [@user]` — tiempo en voz del período\n" +
	"`!stats` — reporte del período en curso (admin)\n" +
	"`!rtimeouts` — levanta todos los castigos activos (admin)\n" +
	"`!rtimeouts list` — historial de untimeouts manuales (admin)\n" +
	"`!clearstats` — descarta las stats del período (admin)\n" +
	"`!clearviolations` — borra contadores y auditoría (admin)\n" +
	"`!modon` / `!modoff` — prende/apaga la moderación automática (admin)\n" +
	"`!notifson` / `!notifsoff` — prende/apaga los anuncios (admin)"

func (r *Router) dispatch(m *discordgo.MessageCreate, cmd string, args []string) {
	log.Printf("cmd: !%s by=%s", cmd, m.Author.ID)

	switch cmd {
	case "help":
		r.reply(m.ChannelID, helpText)

	case "times":
		if !r.limiter.Allow(m.Author.ID) {
			return
		}
		target := m.Author.ID
		if ids := parseIDs(args); len(ids) > 0 {
			target = ids[0]
		}
		secs := r.engine.UserTime(target)
		r.engine.RecordCommand("times", m.Author.ID)
		r.reply(m.ChannelID, fmt.Sprintf("⏱ <@%s> lleva **%s** en voz este período.",
			target, FormatDuration(time.Duration(secs)*time.Second)))

	case "stats":
		if !r.requireAdmin(m) {
			return
		}
		rep := r.engine.ManualReport()
		r.engine.RecordCommand("stats", m.Author.ID)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := r.reporter.PostManual(ctx, rep); err != nil {
			log.Printf("cmd stats: %v", err)
			r.reply(m.ChannelID, "⚠️ No pude publicar el reporte: "+err.Error())
			return
		}
		if at, err := r.engine.LastReportArchivedAt(ctx); err == nil && !at.IsZero() {
			r.reply(m.ChannelID, "🗄 Último reporte diario archivado: "+at.Format("2006-01-02 15:04 UTC"))
		}

	case "rtimeouts":
		if !r.requireAdmin(m) {
			return
		}
		if len(args) > 0 && args[0] == "list" {
			r.replyUntimeoutAudit(m.ChannelID)
			r.engine.RecordCommand("rtimeouts", m.Author.ID)
			return
		}
		n := r.engine.RemoveAllTimeouts(m.Author.ID)
		r.engine.RecordCommand("rtimeouts", m.Author.ID)
		if n == 0 {
			r.reply(m.ChannelID, "✅ No había castigos activos.")
			return
		}
		r.reply(m.ChannelID, fmt.Sprintf("✅ Castigos levantados para **%d** usuarios (los contadores quedan).", n))

	case "clearstats":
		if !r.requireAdmin(m) {
			return
		}
		r.engine.ClearStats()
		r.engine.RecordCommand("clearstats", m.Author.ID)
		r.reply(m.ChannelID, "🧹 Stats del período descartadas.")

	case "clearviolations":
		if !r.requireAdmin(m) {
			return
		}
		r.engine.ClearViolations()
		r.engine.RecordCommand("clearviolations", m.Author.ID)
		r.reply(m.ChannelID, "🧹 Violaciones y auditoría borradas.")

	case "modon", "modoff":
		if !r.requireAdmin(m) {
			return
		}
		on := cmd == "modon"
		r.engine.SetModeration(on)
		r.engine.RecordCommand(cmd, m.Author.ID)
		if on {
			r.reply(m.ChannelID, "🟢 Moderación automática **activada**.")
		} else {
			r.reply(m.ChannelID, "🔴 Moderación automática **desactivada**.")
		}

	case "notifson", "notifsoff":
		if !r.requireAdmin(m) {
			return
		}
		on := cmd == "notifson"
		r.engine.SetNotifications(on)
		r.engine.RecordCommand(cmd, m.Author.ID)
		if on {
			r.reply(m.ChannelID, "🔔 Anuncios **activados**.")
		} else {
			r.reply(m.ChannelID, "🔕 Anuncios **desactivados** (lotes abiertos se descartan).")
		}
	}
}

func (r *Router) replyUntimeoutAudit(channelID string) {
	var msg string
	entries := r.engine.UntimeoutAudit()
	if len(entries) == 0 {
		msg = "_Sin untimeouts manuales en el período._\n"
	} else {
		msg = "**Untimeouts manuales**\n"
		for _, e := range entries {
			msg += fmt.Sprintf("• <@%s> levantó el castigo de <@%s> el %s\n",
				e.ModeratorID, e.UserID, e.At.Format("2006-01-02 15:04 UTC"))
		}
	}

	// El archivo en Postgres sobrevive al reset diario: lo sumamos si está.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	archived, err := r.engine.ArchivedAudit(ctx, time.Now().AddDate(0, 0, -7), 20)
	if err != nil {
		log.Printf("cmd rtimeouts list: archivo histórico: %v", err)
	}
	if len(archived) > 0 {
		msg += "\n**Archivo (últimos 7 días)**\n"
		for _, e := range archived {
			status := "✅"
			if !e.Succeeded {
				status = "❌"
			}
			msg += fmt.Sprintf("%s %s → <@%s> por %s (%s)\n",
				status, e.Action, e.UserID, e.Moderator, e.CreatedAt.Format("01-02 15:04"))
		}
	}
	r.reply(channelID, msg)
}

func (r *Router) reply(channelID, msg string) {
	if _, err := r.s.ChannelMessageSend(channelID, msg); err != nil {
		log.Printf("reply error: %v", err)
	}
}
