package music

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"nabra/internal/command"
	"nabra/internal/music/playback"
	"nabra/pkg/jobmgr"
)

const (
	liveInterval = 5 * time.Second
	liveMaxAge   = 10 * time.Minute
)

// MessageEditor rewrites a posted message. A nil embed clears the embeds.
type MessageEditor interface {
	EditDisplay(channelID, messageID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error
}

// SnapshotSource reads guild playback state.
type SnapshotSource interface {
	GetPlayer(ctx context.Context, guildID string) (playback.Snapshot, bool)
}

// LiveDisplays keeps auto-updating now playing messages, one per guild.
// All displays share one edit limiter so many guilds cannot trip Discord's
// rate limits together.
type LiveDisplays struct {
	jobs     *jobmgr.Manager
	limiter  *rate.Limiter
	source   SnapshotSource
	editor   MessageEditor
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
}

func NewLiveDisplays(jobs *jobmgr.Manager, source SnapshotSource, editor MessageEditor, log zerolog.Logger) *LiveDisplays {
	return &LiveDisplays{
		jobs:     jobs,
		limiter:  rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		source:   source,
		editor:   editor,
		interval: liveInterval,
		maxAge:   liveMaxAge,
		log:      log.With().Str("component", "live").Logger(),
	}
}

func liveJob(guildID string) string { return "live:" + guildID }

// Start replaces any display the guild already has with one that edits
// channelID/messageID until playback ends, Stop is called or maxAge passes.
func (l *LiveDisplays) Start(guildID, channelID, messageID string) {
	l.jobs.Replace(liveJob(guildID), func(ctx context.Context) error {
		return l.run(ctx, guildID, channelID, messageID)
	})
	l.log.Info().Str("guild", guildID).Str("message", messageID).Msg("Live display started")
}

// Stop cancels the guild display and reports whether one was running.
func (l *LiveDisplays) Stop(guildID string) bool {
	return l.jobs.Stop(liveJob(guildID)) == nil
}

func (l *LiveDisplays) Running(guildID string) bool {
	return l.jobs.Running(liveJob(guildID))
}

func (l *LiveDisplays) run(ctx context.Context, guildID, channelID, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, l.maxAge)
	defer cancel()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.finish(guildID, channelID, messageID)
			return ctx.Err()
		case <-ticker.C:
		}

		if err := l.limiter.Wait(ctx); err != nil {
			continue
		}
		snap, ok := l.source.GetPlayer(ctx, guildID)
		if !ok || snap.Current == nil {
			err := l.editor.EditDisplay(channelID, messageID, &discordgo.MessageEmbed{
				Description: "⏹️ Playback ended",
				Color:       command.EmbedColor,
			}, nil)
			return err
		}
		if err := l.editor.EditDisplay(channelID, messageID, LiveEmbed(snap), liveButtons(guildID)); err != nil {
			return fmt.Errorf("edit live display: %w", err)
		}
	}
}

// finish strips the stop button once the display is no longer updated.
func (l *LiveDisplays) finish(guildID, channelID, messageID string) {
	err := l.editor.EditDisplay(channelID, messageID, &discordgo.MessageEmbed{
		Description: "⏹️ Live update stopped",
		Color:       command.EmbedColor,
	}, nil)
	if err != nil {
		l.log.Debug().Err(err).Str("guild", guildID).Msg("Failed to close live display")
	}
}

// LiveEmbed is the now playing embed marked as auto-updating.
func LiveEmbed(snap playback.Snapshot) *discordgo.MessageEmbed {
	e := NowPlayingEmbed(snap)
	e.Title = "🔴 Live Now Playing"
	e.Footer = &discordgo.MessageEmbedFooter{Text: "🔄 Updates every 5 seconds"}
	e.Timestamp = time.Now().Format(time.RFC3339)
	return e
}

func liveButtons(guildID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: "live:stop:" + guildID,
			Label:    "Stop Live Update",
			Emoji:    &discordgo.ComponentEmoji{Name: "⏹️"},
			Style:    discordgo.DangerButton,
		},
	}}}
}

