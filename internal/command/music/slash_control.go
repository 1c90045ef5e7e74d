package music

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/music/playback"
)

type PauseCommand struct{ base }

func (c *PauseCommand) Name() string        { return "pause" }
func (c *PauseCommand) Description() string { return "Pause the current track" }

func (c *PauseCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *PauseCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return c.control(v, func(ctx context.Context, s playback.Session) error {
		return s.Pause(ctx)
	}, "⏸️ Paused", "Playback paused.")
}

type ResumeCommand struct{ base }

func (c *ResumeCommand) Name() string        { return "resume" }
func (c *ResumeCommand) Description() string { return "Resume the paused track" }

func (c *ResumeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *ResumeCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return c.control(v, func(ctx context.Context, s playback.Session) error {
		return s.Resume(ctx)
	}, "▶️ Resumed", "Playback resumed.")
}

type SkipCommand struct{ base }

func (c *SkipCommand) Name() string        { return "skip" }
func (c *SkipCommand) Description() string { return "Skip to the next track" }

func (c *SkipCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *SkipCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return c.control(v, func(ctx context.Context, s playback.Session) error {
		return s.Skip(ctx)
	}, "⏭️ Skipped", "Skipped the current track.")
}

type StopCommand struct{ base }

func (c *StopCommand) Name() string        { return "stop" }
func (c *StopCommand) Description() string { return "Stop playback and clear the queue" }

func (c *StopCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *StopCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return c.control(v, func(ctx context.Context, s playback.Session) error {
		return s.Stop(ctx)
	}, "⏹️ Stopped", "Playback stopped and the queue cleared.")
}

type ShuffleCommand struct{ base }

func (c *ShuffleCommand) Name() string        { return "shuffle" }
func (c *ShuffleCommand) Description() string { return "Shuffle the upcoming tracks" }

func (c *ShuffleCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *ShuffleCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return c.control(v, func(_ context.Context, s playback.Session) error {
		if len(s.Upcoming()) < 2 {
			return errTooFewToShuffle
		}
		s.Shuffle()
		return nil
	}, "🔀 Shuffled", "The queue has been shuffled.")
}

type ClearCommand struct{ base }

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Description() string { return "Remove every upcoming track" }

func (c *ClearCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *ClearCommand) Run(ctx any) error {
	v, ok := slashContext(ctx)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return c.control(v, func(_ context.Context, s playback.Session) error {
		s.Clear()
		return nil
	}, "🗑️ Cleared", "The queue is now empty.")
}
