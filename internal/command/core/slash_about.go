package core

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
)

const AppDescription = "A music bot that streams from Lavalink and falls back to local playback."

type AboutCommand struct{}

func (c *AboutCommand) Name() string             { return "about" }
func (c *AboutCommand) Description() string      { return "Discover the origin of this bot" }
func (c *AboutCommand) Group() string            { return "core" }
func (c *AboutCommand) Category() string         { return "🕯️ Information" }
func (c *AboutCommand) UserPermissions() []int64 { return nil }

func (c *AboutCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *AboutCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	info, _ := debug.ReadBuildInfo()
	return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
		Title:       "ℹ️ About " + AppName,
		Description: AppDescription,
		Color:       command.EmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Release", Value: Release(info)},
		},
	})
}

// Release describes the running binary from its embedded build info.
func Release(info *debug.BuildInfo) string {
	if info == nil {
		return "unknown"
	}
	var revision, date string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			date, _, _ = strings.Cut(s.Value, "T")
		}
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}

	goVer := strings.TrimPrefix(info.GoVersion, "go")
	if goVer == "" {
		goVer = "unknown"
	}
	switch {
	case revision != "" && date != "":
		return fmt.Sprintf("%s %s (Go %s)", date, revision, goVer)
	case revision != "":
		return fmt.Sprintf("%s (Go %s)", revision, goVer)
	}
	return fmt.Sprintf("dev build (Go %s)", goVer)
}
