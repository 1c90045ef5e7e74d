// Package discord connects the command registry and the player to the
// Discord gateway.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"nabra/internal/command"
	"nabra/internal/config"
	"nabra/internal/music/player"
	"nabra/internal/storage"
	"nabra/pkg/cmd"
)

// VoicePlayer is the part of the player facade voice events drive.
type VoicePlayer interface {
	HasPlayer(guildID string) bool
	Destroy(ctx context.Context, guildID string)
	CheckVoiceChannelMembers(ctx context.Context, guildID string, occupants []player.Occupant) bool
}

type Options struct {
	Config   *config.Config
	Storage  *storage.Storage
	Registry *cmd.Registry
	Player   VoicePlayer
	Log      zerolog.Logger
}

// Bot is a Discord bot
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	storage  *storage.Storage
	registry *cmd.Registry
	voice    *voiceWatcher
	log      zerolog.Logger
}

// NewSession creates the gateway session with the intents the bot needs.
// It is not opened yet so voice and player plumbing can be built on it first.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages
	return dg, nil
}

func NewBot(dg *discordgo.Session, opts Options) *Bot {
	log := opts.Log.With().Str("component", "discord").Logger()
	b := &Bot{
		dg:       dg,
		cfg:      opts.Config,
		storage:  opts.Storage,
		registry: opts.Registry,
		log:      log,
	}
	if opts.Player != nil {
		b.voice = newVoiceWatcher(opts.Player, stateLookup{dg}, log)
	}
	return b
}

// SetRegistry sets the commands interactions are dispatched to. Commands
// depend on VoiceChannelOf, so the registry is built after the bot.
func (b *Bot) SetRegistry(r *cmd.Registry) { b.registry = r }

// Open registers the gateway handlers and connects.
func (b *Bot) Open() error {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)
	b.dg.AddHandler(b.onGuildDelete)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	return b.dg.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("✅ Discord bot is running")

	if b.cfg == nil || !b.cfg.InitSlashCommands {
		b.log.Info().Msg("Registering slash commands skipped")
		return
	}
	go func() {
		if err := b.RegisterCommands(b.cfg.DiscordGuildID); err != nil {
			b.log.Error().Err(err).Msg("Failed to register slash commands")
		}
	}()
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	b.guildRemoved(e.Guild)
}

// guildRemoved tears down playback and forgets stored settings once the bot
// is kicked. An outage only marks the guild unavailable and keeps both.
func (b *Bot) guildRemoved(g *discordgo.Guild) {
	if g == nil || g.Unavailable {
		return
	}
	if b.voice != nil && b.voice.player.HasPlayer(g.ID) {
		b.voice.player.Destroy(context.Background(), g.ID)
	}
	if b.storage == nil {
		return
	}
	if err := b.storage.ForgetGuild(g.ID); err != nil {
		b.log.Warn().Err(err).Str("guild", g.ID).Msg("Failed to forget guild data")
		return
	}
	b.log.Info().Str("guild", g.ID).Msg("Removed from guild, stored data dropped")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		c := b.registry.Get(name)
		if c == nil {
			b.log.Warn().Str("command", name).Msg("Unknown command")
			return
		}
		inv := &cmd.Invocation{Data: &command.SlashInteractionContext{
			Session: s,
			Event:   i,
			Storage: b.storage,
			Log:     b.log,
		}}
		// commands report failures to the member themselves
		if err := c.Run(context.Background(), inv); err != nil {
			b.log.Debug().Err(err).Str("command", name).Msg("Slash command returned error")
		}

	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		name, _, _ := strings.Cut(customID, ":")
		c := b.registry.Get(name)
		if c == nil {
			b.log.Warn().Str("custom_id", customID).Msg("No matching component")
			return
		}
		inv := &cmd.Invocation{Data: &command.ComponentInteractionContext{
			Session: s,
			Event:   i,
			Storage: b.storage,
			Log:     b.log,
		}}
		if err := c.Run(context.Background(), inv); err != nil {
			b.log.Error().Err(err).Str("custom_id", customID).Msg("Component handler failed")
		}

	default:
		b.log.Debug().Int("type", int(i.Type)).Msg("Unknown interaction type")
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if b.voice == nil || s.State == nil || s.State.User == nil {
		return
	}
	change := voiceChange{GuildID: e.GuildID, UserID: e.UserID, After: e.ChannelID}
	if e.BeforeUpdate != nil {
		change.Before = e.BeforeUpdate.ChannelID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	b.voice.handle(ctx, s.State.User.ID, change)
}

// VoiceChannelOf finds the voice channel a member is connected to, from the
// gateway state cache.
func (b *Bot) VoiceChannelOf(guildID, userID string) (string, bool) {
	vs, err := b.dg.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}
