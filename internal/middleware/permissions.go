package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/pkg/cmd"
)

var PermissionNames = map[int64]string{
	discordgo.PermissionAdministrator:    "Administrator",
	discordgo.PermissionManageGuild:      "Manage Server",
	discordgo.PermissionManageChannels:   "Manage Channels",
	discordgo.PermissionManageMessages:   "Manage Messages",
	discordgo.PermissionSendMessages:     "Send Messages",
	discordgo.PermissionVoiceConnect:     "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:       "Speak",
	discordgo.PermissionVoiceMoveMembers: "Move Members",
}

// PermissionChecker returns the member's effective permissions in a channel.
type PermissionChecker func(s *discordgo.Session, userID, channelID string) (int64, error)

func sessionPermissions(s *discordgo.Session, userID, channelID string) (int64, error) {
	return s.UserChannelPermissions(userID, channelID)
}

// WithUserPermissionCheck allows a command when the member holds ANY of its
// UserPermissions. Commands without requirements are open; administrators
// always pass.
func WithUserPermissionCheck() cmd.Middleware {
	return withUserPermissionCheck(sessionPermissions)
}

func withUserPermissionCheck(perms PermissionChecker) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok || v.Event.GuildID == "" || v.Event.Member == nil {
				return c.Run(ctx, inv)
			}
			meta, ok := cmd.Root(c).(command.DiscordMeta)
			if !ok || len(meta.UserPermissions()) == 0 {
				return c.Run(ctx, inv)
			}

			have, err := perms(v.Session, v.Event.Member.User.ID, v.Event.ChannelID)
			if err != nil {
				return fmt.Errorf("failed to get user permissions: %w", err)
			}
			if allowed(have, meta.UserPermissions()) {
				return c.Run(ctx, inv)
			}

			return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
				Description: MissingPermissionsText(meta.UserPermissions()),
				Color:       command.ErrorColor,
			})
		})
	}
}

func allowed(have int64, required []int64) bool {
	if have&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, p := range required {
		if have&p != 0 {
			return true
		}
	}
	return false
}

func MissingPermissionsText(required []int64) string {
	names := make([]string, 0, len(required))
	for _, p := range required {
		name := PermissionNames[p]
		if name == "" {
			name = fmt.Sprintf("0x%x", p)
		}
		names = append(names, name)
	}
	return fmt.Sprintf("You need at least one of the following permissions to run this command:\n`%s`",
		strings.Join(names, "`, `"))
}
