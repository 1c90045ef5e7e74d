package core

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/storage"
)

type DBStatusCommand struct{}

func (c *DBStatusCommand) Name() string        { return "db-status" }
func (c *DBStatusCommand) Description() string { return "Show datastore statistics" }
func (c *DBStatusCommand) Group() string       { return "core" }
func (c *DBStatusCommand) Category() string    { return "🛠️ Maintenance" }
func (c *DBStatusCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionAdministrator}
}

func (c *DBStatusCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *DBStatusCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	if v.Storage == nil {
		return command.RespondError(v.Session, v.Event, "Storage is not available.")
	}
	return command.RespondEmbedEphemeral(v.Session, v.Event, StatsEmbed(v.Storage.Stats()))
}

func StatsEmbed(st storage.Stats) *discordgo.MessageEmbed {
	saved := "not yet"
	if st.Saved {
		saved = "yes"
	}
	return &discordgo.MessageEmbed{
		Title: "🗄️ Datastore",
		Color: command.EmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Keys", Value: fmt.Sprint(st.Keys), Inline: true},
			{Name: "Guilds", Value: fmt.Sprint(st.Guilds), Inline: true},
			{Name: "Memory", Value: formatBytes(st.MemoryBytes), Inline: true},
			{Name: "File", Value: "`" + st.FilePath + "`"},
			{Name: "Saved to disk", Value: saved},
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
