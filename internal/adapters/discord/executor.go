package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jose-valero/skipcord-bot/internal/app/service"
)

// Executor aplica castigos vía la API de Discord. Implementa
// service.ActionExecutor envolviendo cada falla como ErrPermission o
// ErrTransient según lo que devuelva la API.
type Executor struct {
	s       *discordgo.Session
	guildID string
}

func NewExecutor(s *discordgo.Session, guildID string) *Executor {
	return &Executor{s: s, guildID: guildID}
}

func (e *Executor) MoveUser(ctx context.Context, userID, fromChannel, toChannel string) error {
	err := e.s.GuildMemberMove(e.guildID, userID, &toChannel, discordgo.WithContext(ctx))
	if err != nil {
		return classify(fmt.Errorf("move %s → %s: %w", userID, toChannel, err))
	}
	return nil
}

func (e *Executor) ApplyTimeout(ctx context.Context, userID string, d time.Duration, reason string) error {
	until := time.Now().UTC().Add(d)
	err := e.s.GuildMemberTimeout(e.guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return classify(fmt.Errorf("timeout %s (%s): %w", userID, d, err))
	}
	return nil
}

func (e *Executor) RemoveTimeout(ctx context.Context, userID string) error {
	err := e.s.GuildMemberTimeout(e.guildID, userID, nil, discordgo.WithContext(ctx))
	if err != nil {
		return classify(fmt.Errorf("untimeout %s: %w", userID, err))
	}
	return nil
}

// 50013 = Missing Permissions. Todo lo demás (rate limit, 5xx, red) se trata
// como transitorio.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil && rest.Message.Code == discordgo.ErrCodeMissingPermissions {
		return fmt.Errorf("%w: %v", service.ErrPermission, err)
	}
	return fmt.Errorf("%w: %v", service.ErrTransient, err)
}
