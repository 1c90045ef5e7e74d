package core

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
)

type PingCommand struct{}

func (c *PingCommand) Name() string             { return "ping" }
func (c *PingCommand) Description() string      { return "Check bot latency" }
func (c *PingCommand) Group() string            { return "core" }
func (c *PingCommand) Category() string         { return "🛠️ Maintenance" }
func (c *PingCommand) UserPermissions() []int64 { return nil }

func (c *PingCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *PingCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
		Title:       "Pong!",
		Description: fmt.Sprintf("Latency: %dms", v.Session.HeartbeatLatency().Milliseconds()),
		Color:       command.EmbedColor,
	})
}
