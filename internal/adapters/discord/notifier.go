package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sethvargo/go-retry"

	"github.com/jose-valero/skipcord-bot/internal/domain"
)

// Notifier publica anuncios y errores operativos en los canales de texto.
// Implementa service.Notifier. Los anuncios no son urgentes, así que acá sí
// se reintenta ante fallas transitorias.
type Notifier struct {
	s             *discordgo.Session
	chatChannelID string
	cmdChannelID  string
}

func NewNotifier(s *discordgo.Session, chatChannelID, cmdChannelID string) *Notifier {
	return &Notifier{s: s, chatChannelID: chatChannelID, cmdChannelID: cmdChannelID}
}

func (n *Notifier) PostDigest(ctx context.Context, kind domain.EventKind, members []domain.Member, _ map[string]string) error {
	if len(members) == 0 {
		return nil
	}

	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, displayName(m))
	}
	listed := strings.Join(names, ", ")

	var msg string
	switch kind {
	case domain.EventJoin:
		msg = fmt.Sprintf("👋 Se unieron al server (%d): **%s**", len(members), listed)
	case domain.EventLeave:
		msg = fmt.Sprintf("🚪 Dejaron el server (%d): **%s**", len(members), listed)
	case domain.EventBan:
		msg = fmt.Sprintf("🔨 Baneados (%d): **%s**", len(members), listed)
	case domain.EventUnban:
		msg = fmt.Sprintf("🕊️ Desbaneados (%d): **%s**", len(members), listed)
	case domain.EventKick:
		msg = fmt.Sprintf("🥾 Expulsados (%d): **%s**", len(members), listed)
	case domain.EventRoleChange:
		msg = fmt.Sprintf("🎭 Cambio de roles (%d): **%s**", len(members), listed)
	default:
		msg = fmt.Sprintf("ℹ️ %s (%d): **%s**", kind, len(members), listed)
	}

	return n.sendWithRetry(ctx, n.chatChannelID, msg)
}

// PostEvent publica un anuncio individual (todo lo que no sea salida batcheada).
func (n *Notifier) PostEvent(ctx context.Context, kind domain.EventKind, m domain.Member) error {
	name := displayName(m)
	var msg string
	switch kind {
	case domain.EventJoin:
		msg = fmt.Sprintf("👋 **%s** se unió al server.", name)
	case domain.EventBan:
		msg = fmt.Sprintf("🔨 **%s** fue baneado.", name)
	case domain.EventUnban:
		msg = fmt.Sprintf("🕊️ **%s** fue desbaneado.", name)
	case domain.EventKick:
		msg = fmt.Sprintf("🥾 **%s** fue expulsado.", name)
	case domain.EventRoleChange:
		msg = fmt.Sprintf("🎭 Cambiaron los roles de **%s**.", name)
	default:
		msg = fmt.Sprintf("ℹ️ %s: **%s**", kind, name)
	}
	return n.sendWithRetry(ctx, n.chatChannelID, msg)
}

// PostOperatorError va al canal de comandos, donde miran los operadores.
func (n *Notifier) PostOperatorError(ctx context.Context, payload string) error {
	return n.sendWithRetry(ctx, n.cmdChannelID, payload)
}

func (n *Notifier) sendWithRetry(ctx context.Context, channelID, msg string) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := n.s.ChannelMessageSend(channelID, msg, discordgo.WithContext(ctx))
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func displayName(m domain.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}
