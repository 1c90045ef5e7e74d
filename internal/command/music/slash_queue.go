package music

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/music/player"
)

type QueueCommand struct{ base }

func (c *QueueCommand) Name() string        { return "queue" }
func (c *QueueCommand) Description() string { return "Show the upcoming tracks" }

func (c *QueueCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "page",
				Description: "Page to show",
				MinValue:    minValue(1),
			},
		},
	}
}

func (c *QueueCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}

	rctx, cancel := timeout()
	defer cancel()
	snap, ok := c.Player.GetPlayer(rctx, v.Event.GuildID)
	if !ok {
		return replyError(v, player.ErrNoPlayer)
	}

	page := 0
	if o := option(v, "page"); o != nil {
		page = int(o.IntValue()) - 1
	}
	embed, page := QueueEmbed(snap, page)

	return v.Session.InteractionRespond(v.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: queueButtons(page, QueuePages(len(snap.Upcoming))),
		},
	})
}

// Component turns the queue pages; ids look like "queue:page:N".
func (c *QueueCommand) Component(v *command.ComponentInteractionContext) error {
	id := v.Event.MessageComponentData().CustomID
	raw, ok := strings.CutPrefix(id, "queue:page:")
	if !ok {
		return nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("bad queue page %q: %w", id, err)
	}

	rctx, cancel := timeout()
	defer cancel()
	snap, ok := c.Player.GetPlayer(rctx, v.Event.GuildID)
	if !ok {
		return command.UpdateComponentMessage(v.Session, v.Event, &discordgo.MessageEmbed{
			Title:       "📜 Music Queue",
			Description: "Nothing is playing right now.",
			Color:       command.EmbedColor,
		}, nil)
	}

	embed, page := QueueEmbed(snap, page)
	return command.UpdateComponentMessage(v.Session, v.Event, embed, queueButtons(page, QueuePages(len(snap.Upcoming))))
}

type NowPlayingCommand struct{ base }

func (c *NowPlayingCommand) Name() string        { return "nowplaying" }
func (c *NowPlayingCommand) Description() string { return "Show the current track and its progress" }

func (c *NowPlayingCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *NowPlayingCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}

	rctx, cancel := timeout()
	defer cancel()
	snap, ok := c.Player.GetPlayer(rctx, v.Event.GuildID)
	if !ok || snap.Current == nil {
		return replyError(v, player.ErrNoPlayer)
	}
	return command.RespondEmbed(v.Session, v.Event, NowPlayingEmbed(snap))
}
