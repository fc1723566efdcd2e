package discord

import (
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/skipcord-bot/internal/app/service"
	"github.com/jose-valero/skipcord-bot/internal/domain"
)

const cmdPrefix = "!"

// Router traduce eventos del gateway a llamadas al engine y despacha los
// comandos de texto del canal de comandos.
type Router struct {
	s       *discordgo.Session
	guildID string

	cmdChannelID string
	allowedUsers map[string]struct{} // operadores del bot
	adminRoleIDs []string

	engine   *service.Engine
	reporter *Reporter
	limiter  *userLimiter
}

func NewRouter(
	s *discordgo.Session,
	guildID string,
	cmdChannelID string,
	allowedUsers map[string]struct{},
	adminRoleIDs []string,
	engine *service.Engine,
	reporter *Reporter,
) *Router {
	return &Router{
		s:            s,
		guildID:      guildID,
		cmdChannelID: cmdChannelID,
		allowedUsers: allowedUsers,
		adminRoleIDs: adminRoleIDs,
		engine:       engine,
		reporter:     reporter,
		limiter:      newUserLimiter(3 * time.Second),
	}
}

func (r *Router) Handlers() {
	// VoiceStateUpdate → presencia. La cámara cuenta prendida si hay video o
	// stream; el deafen que importa es el del propio usuario.
	r.s.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs.GuildID != r.guildID || vs.UserID == s.State.User.ID {
			return
		}

		if vs.BeforeUpdate != nil && vs.BeforeUpdate.ChannelID != "" && vs.BeforeUpdate.ChannelID != vs.ChannelID {
			r.engine.OnVoiceLeave(vs.UserID, vs.BeforeUpdate.ChannelID)
		}
		if vs.ChannelID != "" {
			cameraOn := vs.SelfVideo || vs.SelfStream
			r.engine.OnVoiceUpdate(vs.UserID, vs.ChannelID, cameraOn, vs.SelfDeaf)
		}
	})

	// Altas y bajas del guild → batcher de anuncios.
	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildMemberAdd) {
		if ev.GuildID != r.guildID {
			return
		}
		r.engine.OnMemberEvent(domain.EventJoin, asMember(ev.User, ev.Nick))
	})

	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildMemberRemove) {
		if ev.GuildID != r.guildID {
			return
		}
		kind := domain.EventLeave
		if r.wasKicked(ev.User.ID) {
			kind = domain.EventKick
		}
		r.engine.OnMemberEvent(kind, asMember(ev.User, ev.Nick))
	})

	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildBanAdd) {
		if ev.GuildID != r.guildID {
			return
		}
		r.engine.OnMemberEvent(domain.EventBan, asMember(ev.User, ""))
	})

	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildBanRemove) {
		if ev.GuildID != r.guildID {
			return
		}
		r.engine.OnMemberEvent(domain.EventUnban, asMember(ev.User, ""))
	})

	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.GuildMemberUpdate) {
		if ev.GuildID != r.guildID || ev.BeforeUpdate == nil {
			return
		}
		if !sameRoles(ev.BeforeUpdate.Roles, ev.Roles) {
			r.engine.OnMemberEvent(domain.EventRoleChange, asMember(ev.User, ev.Nick))
		}
	})

	// Comandos de texto con prefijo "!" en el canal de comandos.
	r.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.GuildID != r.guildID || m.Author == nil || m.Author.Bot {
			return
		}
		if m.ChannelID != r.cmdChannelID {
			return
		}
		if !strings.HasPrefix(m.Content, cmdPrefix) {
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic en comando %q: %v", m.Content, rec)
				r.reply(m.ChannelID, "⚠️ Ocurrió un error inesperado.")
			}
		}()

		fields := strings.Fields(strings.TrimPrefix(m.Content, cmdPrefix))
		if len(fields) == 0 {
			return
		}
		r.dispatch(m, strings.ToLower(fields[0]), fields[1:])
	})
}

// wasKicked mira el audit log: si hay un kick reciente contra el usuario, la
// baja fue expulsión y no salida voluntaria.
func (r *Router) wasKicked(userID string) bool {
	al, err := r.s.GuildAuditLog(r.guildID, "", "", int(discordgo.AuditLogActionMemberKick), 5)
	if err != nil {
		return false
	}
	for _, entry := range al.AuditLogEntries {
		if entry.TargetID != userID {
			continue
		}
		ts, err := discordgo.SnowflakeTimestamp(entry.ID)
		if err == nil && time.Since(ts) < 10*time.Second {
			return true
		}
	}
	return false
}

func asMember(u *discordgo.User, nick string) domain.Member {
	m := domain.Member{}
	if u != nil {
		m.ID = u.ID
		m.Username = u.Username
		m.DisplayName = u.GlobalName
	}
	if nick != "" {
		m.DisplayName = nick
	}
	return m
}

func sameRoles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
