// Package music holds the slash commands that drive the player.
package music

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/music/playback"
	"nabra/internal/music/player"
	"nabra/internal/music/queue"
	"nabra/internal/music/track"
	"nabra/pkg/cmd"
)

const commandTimeout = 30 * time.Second

// Player is the part of the player facade commands use.
type Player interface {
	Play(ctx context.Context, c player.Caller, query string) (*player.PlayResult, error)
	GetPlayer(ctx context.Context, guildID string) (playback.Snapshot, bool)
	Control(ctx context.Context, guildID string, fn func(playback.Session) error) error
	Previous(ctx context.Context, guildID string) (track.Track, error)
	SetRepeatMode(guildID string, mode queue.RepeatMode)
	StartInactivityTimer(guildID string)
	ClearInactivityTimer(guildID string)
}

// VoiceLocator finds the voice channel a member is connected to.
type VoiceLocator func(guildID, userID string) (channelID string, ok bool)

type Deps struct {
	Player Player
	Voice  VoiceLocator
	Live   *LiveDisplays
}

type base struct {
	*Deps
}

func (base) Group() string            { return "music" }
func (base) Category() string         { return "🎵 Music" }
func (base) UserPermissions() []int64 { return nil }

// Register adds every music command to r.
func Register(r *cmd.Registry, deps *Deps, mws ...cmd.Middleware) error {
	b := base{deps}
	cmds := []command.DiscordCommand{
		&PlayCommand{b},
		&PauseCommand{b},
		&ResumeCommand{b},
		&SkipCommand{b},
		&StopCommand{b},
		&QueueCommand{b},
		&NowPlayingCommand{b},
		&ShuffleCommand{b},
		&RepeatCommand{b},
		&ForwardCommand{b},
		&JumpCommand{b},
		&PreviousCommand{b},
		&ClearCommand{b},
		&VolumeCommand{b},
		&Hold247Command{b},
		&LiveCommand{b},
		&ControlsCommand{b},
	}
	var errs []error
	for _, c := range cmds {
		errs = append(errs, command.RegisterCommand(r, c, mws...))
	}
	return errors.Join(errs...)
}

func slashContext(ctx any) (*command.SlashInteractionContext, bool) {
	v, ok := ctx.(*command.SlashInteractionContext)
	return v, ok
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// userError is shown to the member verbatim.
type userError string

func (e userError) Error() string { return string(e) }

const (
	errTooFewToShuffle userError = "Need at least 2 upcoming tracks to shuffle."
	errLiveTrack       userError = "Live streams cannot be skipped forward."
	errPastEnd         userError = "Cannot forward past the end of the track."
)

func describe(err error) string {
	var ue userError
	if errors.As(err, &ue) {
		return string(ue)
	}
	return player.Describe(err)
}

func replyError(v *command.SlashInteractionContext, err error) error {
	return command.RespondError(v.Session, v.Event, describe(err))
}

func replySuccess(v *command.SlashInteractionContext, title, desc string) error {
	return command.RespondEmbed(v.Session, v.Event, &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       command.SuccessColor,
	})
}

// control runs fn on the guild session and replies with the outcome.
func (b base) control(v *command.SlashInteractionContext, fn func(context.Context, playback.Session) error, title, desc string) error {
	return b.controlWith(v, fn, func() (string, string) { return title, desc })
}

// controlWith is control with a reply built after fn succeeded.
func (b base) controlWith(v *command.SlashInteractionContext, fn func(context.Context, playback.Session) error, reply func() (string, string)) error {
	ctx, cancel := timeout()
	defer cancel()
	err := b.Player.Control(ctx, v.Event.GuildID, func(s playback.Session) error {
		return fn(ctx, s)
	})
	if err != nil {
		return replyError(v, err)
	}
	title, desc := reply()
	return replySuccess(v, title, desc)
}

func option(v *command.SlashInteractionContext, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range v.Event.ApplicationCommandData().Options {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func minValue(f float64) *float64 { return &f }
