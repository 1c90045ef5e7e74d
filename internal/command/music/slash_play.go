package music

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/music/playback"
	"nabra/internal/music/player"
)

type PlayCommand struct{ base }

func (c *PlayCommand) Name() string        { return "play" }
func (c *PlayCommand) Description() string { return "Play a song or playlist from a link or search query" }

func (c *PlayCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Song name, YouTube/SoundCloud/Spotify link or playlist",
				Required:    true,
			},
		},
	}
}

func (c *PlayCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	e := v.Event

	query := ""
	if o := option(v, "query"); o != nil {
		query = o.StringValue()
	}
	if query == "" {
		return command.RespondError(v.Session, e, "Please provide a song name or link.")
	}

	user := command.User(e)
	voiceID, _ := c.Voice(e.GuildID, user.ID)

	// Resolving can take longer than the 3s interaction window.
	if err := command.RespondDeferred(v.Session, e); err != nil {
		return fmt.Errorf("failed to send deferred response: %w", err)
	}

	rctx, cancel := timeout()
	defer cancel()

	res, err := c.Player.Play(rctx, player.Caller{
		GuildID:        e.GuildID,
		UserID:         user.ID,
		VoiceChannelID: voiceID,
		TextChannelID:  e.ChannelID,
	}, query)
	if err != nil {
		_, editErr := command.EditResponseEmbed(v.Session, e, &discordgo.MessageEmbed{
			Title:       "❌ Error",
			Description: describe(err),
			Color:       command.ErrorColor,
		})
		if editErr != nil {
			v.Log.Warn().Err(editErr).Msg("Failed to edit play response")
		}
		return err
	}

	if v.Storage != nil {
		if vol, ok := v.Storage.Volume(e.GuildID); ok {
			err := c.Player.Control(rctx, e.GuildID, func(s playback.Session) error {
				if s.Volume() == vol {
					return nil
				}
				return s.SetVolume(rctx, vol)
			})
			if err != nil {
				v.Log.Warn().Err(err).Str("guild", e.GuildID).Int("volume", vol).Msg("Failed to apply saved volume")
			}
		}
	}

	_, err = command.EditResponseEmbed(v.Session, e, PlayResultEmbed(res))
	return err
}
