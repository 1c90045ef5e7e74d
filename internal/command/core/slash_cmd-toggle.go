package core

import (
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/pkg/cmd"
)

type CommandsToggleCommand struct {
	Registry *cmd.Registry
}

func (c *CommandsToggleCommand) Name() string        { return "cmd-toggle" }
func (c *CommandsToggleCommand) Description() string { return "Enable or disable a group of commands" }
func (c *CommandsToggleCommand) Group() string       { return "core" }
func (c *CommandsToggleCommand) Category() string    { return "⚙️ Settings" }
func (c *CommandsToggleCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionAdministrator}
}

func (c *CommandsToggleCommand) SlashDefinition() *discordgo.ApplicationCommand {
	var groupChoices []*discordgo.ApplicationCommandOptionChoice
	for _, g := range Groups(c.Registry) {
		groupChoices = append(groupChoices, &discordgo.ApplicationCommandOptionChoice{Name: g, Value: g})
	}

	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "group",
				Description: "Choose command group to toggle",
				Required:    true,
				Choices:     groupChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "state",
				Description: "Enable or disable",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Enable", Value: "enable"},
					{Name: "Disable", Value: "disable"},
				},
			},
		},
	}
}

func (c *CommandsToggleCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	if v.Storage == nil {
		return command.RespondError(v.Session, v.Event, "Storage is not available.")
	}

	var group, state string
	for _, opt := range v.Event.ApplicationCommandData().Options {
		switch opt.Name {
		case "group":
			group = opt.StringValue()
		case "state":
			state = opt.StringValue()
		}
	}

	if group == "core" && state == "disable" {
		return command.RespondError(v.Session, v.Event, "You can't disable the `core` group, it manages all the others.")
	}
	if !slices.Contains(Groups(c.Registry), group) {
		return command.RespondError(v.Session, v.Event, fmt.Sprintf("Unknown group `%s`.", group))
	}

	embed := &discordgo.MessageEmbed{
		Color:  command.EmbedColor,
		Footer: &discordgo.MessageEmbedFooter{Text: "Use /cmd-status to check which commands are disabled."},
	}
	if state == "disable" {
		if err := v.Storage.DisableGroup(v.Event.GuildID, group); err != nil {
			command.RespondError(v.Session, v.Event, "Failed to disable the group.")
			return err
		}
		embed.Description = fmt.Sprintf("Group `%s` disabled.", group)
	} else {
		if err := v.Storage.EnableGroup(v.Event.GuildID, group); err != nil {
			command.RespondError(v.Session, v.Event, "Failed to enable the group.")
			return err
		}
		embed.Description = fmt.Sprintf("Group `%s` enabled.", group)
	}
	return command.RespondEmbedEphemeral(v.Session, v.Event, embed)
}

// Groups returns the sorted, distinct groups of the registered commands.
func Groups(r *cmd.Registry) []string {
	if r == nil {
		return nil
	}
	var groups []string
	for _, c := range r.GetAll() {
		meta, ok := cmd.Root(c).(command.DiscordMeta)
		if !ok || meta.Group() == "" || slices.Contains(groups, meta.Group()) {
			continue
		}
		groups = append(groups, meta.Group())
	}
	slices.Sort(groups)
	return groups
}
