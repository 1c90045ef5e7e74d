package core

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/pkg/cmd"
)

type CommandsStatusCommand struct {
	Registry *cmd.Registry
}

func (c *CommandsStatusCommand) Name() string { return "cmd-status" }
func (c *CommandsStatusCommand) Description() string {
	return "Check which command groups are enabled or disabled"
}
func (c *CommandsStatusCommand) Group() string            { return "core" }
func (c *CommandsStatusCommand) Category() string         { return "⚙️ Settings" }
func (c *CommandsStatusCommand) UserPermissions() []int64 { return nil }

func (c *CommandsStatusCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *CommandsStatusCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}

	var disabledGroups []string
	if v.Storage != nil {
		var err error
		if disabledGroups, err = v.Storage.DisabledGroups(v.Event.GuildID); err != nil {
			v.Log.Warn().Err(err).Str("guild", v.Event.GuildID).Msg("Failed to read disabled groups")
		}
	}
	enabled, disabled := SplitGroups(Groups(c.Registry), disabledGroups)

	return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
		Title: "Commands Status",
		Color: command.EmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Disabled", Value: groupList(disabled)},
			{Name: "Enabled", Value: groupList(enabled)},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Use /cmd-toggle to manage groups. The core group can't be disabled.",
		},
	})
}

// SplitGroups partitions groups by whether they appear in disabled.
func SplitGroups(groups, disabled []string) (on, off []string) {
	for _, g := range groups {
		if slices.Contains(disabled, g) {
			off = append(off, g)
		} else {
			on = append(on, g)
		}
	}
	return on, off
}

func groupList(groups []string) string {
	if len(groups) == 0 {
		return "_none_"
	}
	return "`" + strings.Join(groups, "`, `") + "`"
}
