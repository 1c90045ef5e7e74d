package music

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/music/playback"
	"nabra/internal/music/player"
	"nabra/internal/music/queue"
	"nabra/internal/music/track"
)

type RepeatCommand struct{ base }

func (c *RepeatCommand) Name() string        { return "repeat" }
func (c *RepeatCommand) Description() string { return "Set the repeat mode" }

func (c *RepeatCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "Repeat mode",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Off", Value: queue.RepeatOff.String()},
					{Name: "Track", Value: queue.RepeatTrack.String()},
					{Name: "Queue", Value: queue.RepeatQueue.String()},
				},
			},
		},
	}
}

func (c *RepeatCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	raw := ""
	if o := option(v, "mode"); o != nil {
		raw = o.StringValue()
	}
	mode, err := queue.ParseRepeatMode(raw)
	if err != nil {
		return command.RespondError(v.Session, v.Event, "Unknown repeat mode.")
	}
	c.Player.SetRepeatMode(v.Event.GuildID, mode)

	icon := map[queue.RepeatMode]string{
		queue.RepeatOff:   "➡️",
		queue.RepeatTrack: "🔂",
		queue.RepeatQueue: "🔁",
	}[mode]
	return replySuccess(v, icon+" Repeat", "Repeat mode set to **"+mode.String()+"**.")
}

type ForwardCommand struct{ base }

func (c *ForwardCommand) Name() string        { return "forward" }
func (c *ForwardCommand) Description() string { return "Skip ahead in the current track" }

func (c *ForwardCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "seconds",
				Description: "Seconds to skip (1-300)",
				Required:    true,
				MinValue:    minValue(1),
				MaxValue:    300,
			},
		},
	}
}

func (c *ForwardCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	secs := int64(10)
	if o := option(v, "seconds"); o != nil {
		secs = o.IntValue()
	}

	var target, total time.Duration
	return c.controlWith(v, func(ctx context.Context, s playback.Session) error {
		t, err := forwardTarget(s, time.Duration(secs)*time.Second)
		if err != nil {
			return err
		}
		target, total = t, s.Current().Duration
		return s.Seek(ctx, target)
	}, func() (string, string) {
		return "⏩ Forwarded", fmt.Sprintf("Skipped ahead %ds to **%s** / %s", secs, track.FormatDuration(target), track.FormatDuration(total))
	})
}

// forwardTarget is where skipping by d lands in the current track.
func forwardTarget(s playback.Session, d time.Duration) (time.Duration, error) {
	if s.Kind() == playback.KindFallback {
		return 0, playback.ErrSeekUnsupported
	}
	cur := s.Current()
	if cur == nil {
		return 0, playback.ErrNothingPlaying
	}
	if cur.IsLive {
		return 0, errLiveTrack
	}
	target := s.Position() + d
	if target >= cur.Duration {
		return 0, errPastEnd
	}
	return target, nil
}

type JumpCommand struct{ base }

func (c *JumpCommand) Name() string        { return "jump" }
func (c *JumpCommand) Description() string { return "Jump to a track in the queue" }

func (c *JumpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Queue position as shown by /queue",
				Required:    true,
				MinValue:    minValue(1),
			},
		},
	}
}

func (c *JumpCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	pos := 1
	if o := option(v, "position"); o != nil {
		pos = int(o.IntValue())
	}
	var title string
	return c.controlWith(v, func(ctx context.Context, s playback.Session) error {
		up := s.Upcoming()
		if pos < 1 || pos > len(up) {
			return playback.ErrOutOfRange
		}
		title = up[pos-1].Title
		return s.Jump(ctx, pos)
	}, func() (string, string) {
		return "⤵️ Jumped", fmt.Sprintf("Now playing **%s** (#%d).", title, pos)
	})
}

type PreviousCommand struct{ base }

func (c *PreviousCommand) Name() string        { return "previous" }
func (c *PreviousCommand) Description() string { return "Play the previously played track" }

func (c *PreviousCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *PreviousCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	rctx, cancel := timeout()
	defer cancel()
	t, err := c.Player.Previous(rctx, v.Event.GuildID)
	if err != nil {
		return replyError(v, err)
	}
	return replySuccess(v, "⏮️ Previous", "Playing "+trackLink(t)+" again.")
}

type VolumeCommand struct{ base }

func (c *VolumeCommand) Name() string        { return "volume" }
func (c *VolumeCommand) Description() string { return "Show or set the playback volume" }

func (c *VolumeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "level",
				Description: "Volume percent (0-200)",
				MinValue:    minValue(0),
				MaxValue:    200,
			},
		},
	}
}

func (c *VolumeCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	gid := v.Event.GuildID

	rctx, cancel := timeout()
	defer cancel()

	o := option(v, "level")
	if o == nil {
		snap, ok := c.Player.GetPlayer(rctx, gid)
		if !ok {
			return replyError(v, player.ErrNoPlayer)
		}
		return command.RespondEmbed(v.Session, v.Event, &discordgo.MessageEmbed{
			Title:       "🔊 Volume",
			Description: fmt.Sprintf("Current volume is **%d%%**.", snap.Volume),
			Color:       command.EmbedColor,
		})
	}

	pct := int(o.IntValue())
	if !playback.ValidVolume(pct) {
		return replyError(v, playback.ErrVolumeRange)
	}
	err := c.Player.Control(rctx, gid, func(s playback.Session) error {
		return s.SetVolume(rctx, pct)
	})
	playing := err == nil
	if err != nil && !errors.Is(err, player.ErrNoPlayer) {
		return replyError(v, err)
	}
	if v.Storage != nil {
		if err := v.Storage.SetVolume(gid, pct); err != nil {
			v.Log.Warn().Err(err).Str("guild", gid).Msg("Failed to save volume")
		}
	}
	desc := fmt.Sprintf("Volume set to **%d%%**.", pct)
	if !playing {
		desc = fmt.Sprintf("Volume will be **%d%%** when playback starts.", pct)
	}
	return replySuccess(v, "🔊 Volume", desc)
}

type Hold247Command struct{ base }

func (c *Hold247Command) Name() string        { return "247" }
func (c *Hold247Command) Description() string { return "Toggle staying in voice when idle" }

func (c *Hold247Command) Category() string { return "⚙️ Settings" }

func (c *Hold247Command) UserPermissions() []int64 {
	return []int64{discordgo.PermissionManageGuild}
}

func (c *Hold247Command) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *Hold247Command) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	if v.Storage == nil {
		return command.RespondError(v.Session, v.Event, "Settings are unavailable.")
	}
	gid := v.Event.GuildID
	on, err := v.Storage.Toggle247(gid)
	if err != nil {
		return fmt.Errorf("toggle 24/7: %w", err)
	}

	if on {
		c.Player.ClearInactivityTimer(gid)
		return replySuccess(v, "🌙 24/7 Enabled", "I will stay in the voice channel even when idle.")
	}

	rctx, cancel := timeout()
	defer cancel()
	if snap, ok := c.Player.GetPlayer(rctx, gid); ok && snap.Current == nil {
		c.Player.StartInactivityTimer(gid)
	}
	return replySuccess(v, "☀️ 24/7 Disabled", "I will leave after a while when idle.")
}
