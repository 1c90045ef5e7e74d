package core

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/storage"
)

const (
	discordMaxMessageLength = 2000
	codeLeftBlockWrapper    = "```md"
	codeRightBlockWrapper   = "```"
)

var maxContentLength = discordMaxMessageLength - len(codeLeftBlockWrapper) - len(codeRightBlockWrapper) - 2

type LogCommand struct{}

func (c *LogCommand) Name() string        { return "cmd-log" }
func (c *LogCommand) Description() string { return "Review recently used commands" }
func (c *LogCommand) Group() string       { return "core" }
func (c *LogCommand) Category() string    { return "⚙️ Settings" }
func (c *LogCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionManageGuild}
}

func (c *LogCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *LogCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	if v.Storage == nil {
		return command.RespondError(v.Session, v.Event, "Storage is not available.")
	}

	records, err := v.Storage.FetchCommandHistory(v.Event.GuildID)
	if err != nil {
		command.RespondError(v.Session, v.Event, "Failed to fetch command logs.")
		return err
	}
	if len(records) == 0 {
		return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
			Description: "No command logs found.",
			Color:       command.EmbedColor,
		})
	}

	msg := codeLeftBlockWrapper + "\n" + FormatCommandLog(records) + codeRightBlockWrapper
	return v.Session.InteractionRespond(v.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg, Flags: discordgo.MessageFlagsEphemeral},
	})
}

// FormatCommandLog renders history newest first, dropping the oldest rows
// once the table would no longer fit in one message.
func FormatCommandLog(records []storage.CommandHistoryRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-19s\t%-15s\t%s\n", "# Datetime", "# Username", "# Command")

	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		cmdText := "/" + r.Command
		if r.Param != "" {
			cmdText += " " + r.Param
		}
		line := fmt.Sprintf("%-19s\t%-15s\t%s\n", r.Datetime.Format("2006-01-02 15:04:05"), r.Username, cmdText)
		if sb.Len()+len(line) > maxContentLength {
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}
