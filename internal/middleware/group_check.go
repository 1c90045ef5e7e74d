package middleware

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/storage"
	"nabra/pkg/cmd"
)

// CoreGroup holds the commands that manage the others. It is never disabled.
const CoreGroup = "core"

const disabledGroupText = "This command is disabled on this server.\nUse `/cmd-status` to check which commands are disabled."

type responder func(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) error

func respondDisabled(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) error {
	return command.RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{Description: msg, Color: command.ErrorColor})
}

// WithGroupAccessCheck stops slash commands and button presses whose group
// was switched off with /cmd-toggle.
func WithGroupAccessCheck() cmd.Middleware {
	return withGroupAccessCheck(respondDisabled)
}

func withGroupAccessCheck(respond responder) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			var (
				session *discordgo.Session
				event   *discordgo.InteractionCreate
				store   *storage.Storage
			)
			switch v := inv.Data.(type) {
			case *command.SlashInteractionContext:
				session, event, store = v.Session, v.Event, v.Storage
			case *command.ComponentInteractionContext:
				session, event, store = v.Session, v.Event, v.Storage
			default:
				return c.Run(ctx, inv)
			}

			if disabledGroup(c, event.GuildID, store) {
				return respond(session, event, disabledGroupText)
			}
			return c.Run(ctx, inv)
		})
	}
}

func disabledGroup(c cmd.Command, guildID string, store *storage.Storage) bool {
	meta, ok := cmd.Root(c).(command.DiscordMeta)
	if !ok || meta.Group() == "" || meta.Group() == CoreGroup {
		return false
	}
	if store == nil || guildID == "" {
		return false
	}
	disabled, err := store.IsGroupDisabled(guildID, meta.Group())
	if err != nil {
		return false
	}
	return disabled
}
