package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"nabra/internal/music/player"
)

// cleanupHold is how long a bot disconnect is remembered so the burst of
// gateway updates that follows one does not destroy twice.
const cleanupHold = 2 * time.Second

type voiceChange struct {
	GuildID string
	UserID  string
	Before  string
	After   string
}

// voiceLookup reads voice channel membership.
type voiceLookup interface {
	BotChannel(guildID, botID string) string
	// Occupants reports ok=false when membership could not be read.
	Occupants(guildID, channelID string) (occupants []player.Occupant, ok bool)
}

type voiceWatcher struct {
	player VoicePlayer
	lookup voiceLookup
	hold   time.Duration
	log    zerolog.Logger

	mu      sync.Mutex
	cleanup map[string]struct{}
}

func newVoiceWatcher(p VoicePlayer, lookup voiceLookup, log zerolog.Logger) *voiceWatcher {
	return &voiceWatcher{
		player:  p,
		lookup:  lookup,
		hold:    cleanupHold,
		log:     log,
		cleanup: make(map[string]struct{}),
	}
}

func (w *voiceWatcher) handle(ctx context.Context, botID string, c voiceChange) {
	if c.UserID == botID {
		if c.Before != "" && c.After == "" {
			w.botDisconnected(ctx, c.GuildID)
		}
		return
	}

	botChannel := w.lookup.BotChannel(c.GuildID, botID)
	if botChannel == "" {
		return
	}
	if c.Before == botChannel && c.After != botChannel {
		w.log.Debug().Str("guild", c.GuildID).Str("user", c.UserID).Msg("User left the bot's voice channel")
		occupants, ok := w.lookup.Occupants(c.GuildID, botChannel)
		if !ok {
			w.log.Warn().Str("guild", c.GuildID).Msg("Voice channel members unknown, skipping empty channel check")
			return
		}
		w.player.CheckVoiceChannelMembers(ctx, c.GuildID, occupants)
	}
}

func (w *voiceWatcher) botDisconnected(ctx context.Context, guildID string) {
	w.mu.Lock()
	if _, busy := w.cleanup[guildID]; busy {
		w.mu.Unlock()
		w.log.Debug().Str("guild", guildID).Msg("Cleanup already in progress, skipping")
		return
	}
	w.cleanup[guildID] = struct{}{}
	w.mu.Unlock()

	time.AfterFunc(w.hold, func() {
		w.mu.Lock()
		delete(w.cleanup, guildID)
		w.mu.Unlock()
	})

	if !w.player.HasPlayer(guildID) {
		return
	}
	w.log.Info().Str("guild", guildID).Msg("Bot was disconnected from voice, destroying player")
	w.player.Destroy(ctx, guildID)
}

// stateLookup answers voiceLookup from the gateway state cache.
type stateLookup struct {
	dg *discordgo.Session
}

func (l stateLookup) BotChannel(guildID, botID string) string {
	vs, err := l.dg.State.VoiceState(guildID, botID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func (l stateLookup) Occupants(guildID, channelID string) ([]player.Occupant, bool) {
	g, err := l.dg.State.Guild(guildID)
	if err != nil {
		return nil, false
	}

	l.dg.State.RLock()
	states := make([]*discordgo.VoiceState, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			states = append(states, vs)
		}
	}
	l.dg.State.RUnlock()

	out := make([]player.Occupant, 0, len(states))
	for _, vs := range states {
		out = append(out, player.Occupant{UserID: vs.UserID, Bot: l.isBot(guildID, vs)})
	}
	return out, true
}

func (l stateLookup) isBot(guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if m, err := l.dg.State.Member(guildID, vs.UserID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return false
}
