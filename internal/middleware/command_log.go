package middleware

import (
	"context"
	"fmt"
	"time"

	"nabra/internal/command"
	"nabra/internal/storage"
	"nabra/pkg/cmd"
)

// WithCommandLogger logs every slash command and records it in the guild's
// command history.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok {
				return c.Run(ctx, inv)
			}

			start := time.Now()
			err := c.Run(ctx, inv)

			user := command.User(v.Event)
			ev := v.Log.Info()
			if err != nil {
				ev = v.Log.Error().Err(err)
			}
			ev.Str("command", c.Name()).
				Str("guild", v.Event.GuildID).
				Str("user", user.Username).
				Dur("took", time.Since(start)).
				Msg("Command executed")

			if v.Storage != nil && v.Event.GuildID != "" {
				rec := storage.CommandHistoryRecord{
					ChannelID: v.Event.ChannelID,
					UserID:    user.ID,
					Username:  user.Username,
					Command:   c.Name(),
					Param:     firstOption(v),
					Datetime:  time.Now(),
				}
				if e := v.Storage.AppendCommandToHistory(v.Event.GuildID, rec); e != nil {
					v.Log.Warn().Err(e).Str("command", c.Name()).Msg("Failed to record command history")
				}
			}
			return err
		})
	}
}

func firstOption(v *command.SlashInteractionContext) string {
	opts := v.Event.ApplicationCommandData().Options
	if len(opts) == 0 || opts[0].Value == nil {
		return ""
	}
	return opts[0].Name + "=" + fmt.Sprint(opts[0].Value)
}
