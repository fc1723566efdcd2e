package discord

import "github.com/bwmarrin/discordgo"

// requireAdmin: operadores del allowlist, owner del guild, bit Administrator
// o alguno de los roles configurados.
func (r *Router) requireAdmin(m *discordgo.MessageCreate) bool {
	if _, ok := r.allowedUsers[m.Author.ID]; ok {
		return true
	}

	if g, _ := r.s.State.Guild(m.GuildID); g != nil && m.Author.ID == g.OwnerID {
		return true
	}

	if m.Member != nil {
		roles, _ := r.s.GuildRoles(m.GuildID)
		var perms int64
	outer:
		for _, rid := range m.Member.Roles {
			for _, ro := range roles {
				if ro.ID == rid {
					perms |= ro.Permissions
					if (perms & discordgo.PermissionAdministrator) != 0 {
						break outer
					}
				}
			}
		}
		if (perms & discordgo.PermissionAdministrator) != 0 {
			return true
		}

		if len(r.adminRoleIDs) > 0 {
			has := make(map[string]struct{}, len(m.Member.Roles))
			for _, rid := range m.Member.Roles {
				has[rid] = struct{}{}
			}
			for _, want := range r.adminRoleIDs {
				if _, ok := has[want]; ok {
					return true
				}
			}
		}
	}

	r.reply(m.ChannelID, "🔒 No tienes permisos para esta acción.")
	return false
}
