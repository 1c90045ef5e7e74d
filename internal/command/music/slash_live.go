package music

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/music/playback"
	"nabra/internal/music/player"
)

type LiveCommand struct{ base }

func (c *LiveCommand) Name() string        { return "live" }
func (c *LiveCommand) Description() string { return "Post a now playing message that updates itself" }

func (c *LiveCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *LiveCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	gid := v.Event.GuildID

	rctx, cancel := timeout()
	defer cancel()
	snap, ok := c.Player.GetPlayer(rctx, gid)
	if !ok || snap.Current == nil {
		return replyError(v, player.ErrNoPlayer)
	}

	err := v.Session.InteractionRespond(v.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{LiveEmbed(snap)},
			Components: liveButtons(gid),
		},
	})
	if err != nil {
		return err
	}
	msg, err := v.Session.InteractionResponse(v.Event.Interaction)
	if err != nil {
		return fmt.Errorf("fetch live message: %w", err)
	}
	c.Live.Start(gid, msg.ChannelID, msg.ID)
	return nil
}

// Component handles "live:stop:<guild>".
func (c *LiveCommand) Component(v *command.ComponentInteractionContext) error {
	gid, ok := strings.CutPrefix(v.Event.MessageComponentData().CustomID, "live:stop:")
	if !ok {
		return nil
	}
	c.Live.Stop(gid)
	return command.UpdateComponentMessage(v.Session, v.Event, &discordgo.MessageEmbed{
		Description: "⏹️ Live update stopped",
		Color:       command.EmbedColor,
	}, nil)
}

type ControlsCommand struct{ base }

func (c *ControlsCommand) Name() string        { return "controls" }
func (c *ControlsCommand) Description() string { return "Show playback buttons" }

func (c *ControlsCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *ControlsCommand) Run(ctx any) error {
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
	return v.Session.InteractionRespond(v.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{NowPlayingEmbed(snap)},
			Components: controlButtons(snap.State),
		},
	})
}

// Component runs the pressed button and refreshes the panel.
func (c *ControlsCommand) Component(v *command.ComponentInteractionContext) error {
	action, ok := strings.CutPrefix(v.Event.MessageComponentData().CustomID, "controls:")
	if !ok {
		return nil
	}
	gid := v.Event.GuildID

	rctx, cancel := timeout()
	defer cancel()

	var err error
	switch action {
	case "previous":
		_, err = c.Player.Previous(rctx, gid)
	default:
		err = c.Player.Control(rctx, gid, func(s playback.Session) error {
			return controlAction(rctx, s, action)
		})
	}
	if err != nil {
		return command.RespondError(v.Session, v.Event, describe(err))
	}

	snap, ok := c.Player.GetPlayer(rctx, gid)
	if !ok {
		return command.UpdateComponentMessage(v.Session, v.Event, &discordgo.MessageEmbed{
			Description: "⏹️ Playback ended",
			Color:       command.EmbedColor,
		}, nil)
	}
	return command.UpdateComponentMessage(v.Session, v.Event, NowPlayingEmbed(snap), controlButtons(snap.State))
}

func controlAction(ctx context.Context, s playback.Session, action string) error {
	switch action {
	case "playpause":
		if s.State() == playback.StatePaused {
			return s.Resume(ctx)
		}
		return s.Pause(ctx)
	case "skip":
		return s.Skip(ctx)
	case "stop":
		return s.Stop(ctx)
	case "shuffle":
		if len(s.Upcoming()) < 2 {
			return errTooFewToShuffle
		}
		s.Shuffle()
		return nil
	}
	return fmt.Errorf("unknown control %q", action)
}

func controlButtons(state playback.State) []discordgo.MessageComponent {
	playPause := "⏸️"
	if state == playback.StatePaused {
		playPause = "▶️"
	}
	button := func(action, emoji string, style discordgo.ButtonStyle) discordgo.Button {
		return discordgo.Button{CustomID: "controls:" + action, Emoji: &discordgo.ComponentEmoji{Name: emoji}, Style: style}
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		button("previous", "⏮️", discordgo.SecondaryButton),
		button("playpause", playPause, discordgo.PrimaryButton),
		button("skip", "⏭️", discordgo.SecondaryButton),
		button("stop", "⏹️", discordgo.DangerButton),
		button("shuffle", "🔀", discordgo.SecondaryButton),
	}}}
}
