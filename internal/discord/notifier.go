package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"nabra/internal/command/music"
	"nabra/internal/music/player"
	"nabra/internal/music/track"
)

type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// LiveStopper ends a guild's live display.
type LiveStopper interface {
	Stop(guildID string) bool
}

// Notifier posts playback events to the guild's text channel. Its methods
// are called from the guild lane, so sends happen on their own goroutine.
type Notifier struct {
	send embedSender
	live LiveStopper
	log  zerolog.Logger
}

var _ player.Notifier = (*Notifier)(nil)

func NewNotifier(dg *discordgo.Session, live LiveStopper, log zerolog.Logger) *Notifier {
	return &Notifier{send: dg, live: live, log: log.With().Str("component", "notifier").Logger()}
}

func (n *Notifier) NowPlaying(guildID, textChannelID string, t track.Track) {
	n.post(guildID, textChannelID, music.TrackStartedEmbed(t))
}

func (n *Notifier) QueueEnded(guildID, textChannelID string) {
	n.post(guildID, textChannelID, music.QueueEndedEmbed())
}

func (n *Notifier) SessionDestroyed(guildID string) {
	if n.live != nil && n.live.Stop(guildID) {
		n.log.Debug().Str("guild", guildID).Msg("Live display stopped with session")
	}
}

func (n *Notifier) post(guildID, channelID string, embed *discordgo.MessageEmbed) {
	if channelID == "" {
		return
	}
	go func() {
		if _, err := n.send.ChannelMessageSendEmbed(channelID, embed); err != nil {
			n.log.Warn().Err(err).Str("guild", guildID).Str("channel", channelID).Msg("Failed to send message")
		}
	}()
}

// MessageEditor edits live display messages through the REST API.
type MessageEditor struct {
	dg *discordgo.Session
}

func NewMessageEditor(dg *discordgo.Session) *MessageEditor {
	return &MessageEditor{dg: dg}
}

func (m *MessageEditor) EditDisplay(channelID, messageID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	embeds := []*discordgo.MessageEmbed{}
	if embed != nil {
		embeds = append(embeds, embed)
	}
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	_, err := m.dg.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}
