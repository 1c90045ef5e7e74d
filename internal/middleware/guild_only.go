package middleware

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/pkg/cmd"
)

// WithGuildOnly rejects slash commands used outside a guild.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if v, ok := inv.Data.(*command.SlashInteractionContext); ok && v.Event.GuildID == "" {
				return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
					Description: "This command only works in a server.",
					Color:       command.ErrorColor,
				})
			}
			return c.Run(ctx, inv)
		})
	}
}
