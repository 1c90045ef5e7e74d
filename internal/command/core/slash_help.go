// Package core holds commands that are not about playback.
package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/config"
	"nabra/pkg/cmd"
)

const AppName = "Nabra"

type HelpCommand struct {
	Registry *cmd.Registry
}

func (c *HelpCommand) Name() string             { return "help" }
func (c *HelpCommand) Description() string      { return "Get a list of available commands" }
func (c *HelpCommand) Group() string            { return "core" }
func (c *HelpCommand) Category() string         { return "🕯️ Information" }
func (c *HelpCommand) UserPermissions() []int64 { return nil }

func (c *HelpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *HelpCommand) Run(ctx any) error {
	v, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}
	return command.RespondEmbedEphemeral(v.Session, v.Event, &discordgo.MessageEmbed{
		Title:       AppName + " Help",
		Description: HelpByCategory(c.Registry),
		Color:       command.EmbedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Join a voice channel and use /play to start"},
	})
}

// HelpByCategory lists every registered command under its category, ordered
// by config.CategoryWeights and then by name.
func HelpByCategory(r *cmd.Registry) string {
	byCat := make(map[string][]cmd.Command)
	for _, c := range r.GetAll() {
		cat := "Other"
		if meta, ok := cmd.Root(c).(command.DiscordMeta); ok {
			cat = meta.Category()
		}
		byCat[cat] = append(byCat[cat], c)
	}

	cats := make([]string, 0, len(byCat))
	for cat := range byCat {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		wi, wj := weight(cats[i]), weight(cats[j])
		if wi != wj {
			return wi < wj
		}
		return cats[i] < cats[j]
	})

	var sb strings.Builder
	for _, cat := range cats {
		fmt.Fprintf(&sb, "**%s**\n", cat)
		// GetAll is already sorted by name
		for _, c := range byCat[cat] {
			fmt.Fprintf(&sb, "`/%s` - %s\n", c.Name(), c.Description())
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func weight(cat string) int {
	if w, ok := config.CategoryWeights[cat]; ok {
		return w
	}
	return 1000
}

// Register adds the core commands to r.
func Register(r *cmd.Registry, mws ...cmd.Middleware) error {
	cmds := []command.DiscordCommand{
		&HelpCommand{Registry: r},
		&AboutCommand{},
		&PingCommand{},
		&LogCommand{},
		&CommandsToggleCommand{Registry: r},
		&CommandsStatusCommand{Registry: r},
		&DBStatusCommand{},
	}
	var errs []error
	for _, c := range cmds {
		errs = append(errs, command.RegisterCommand(r, c, mws...))
	}
	return errors.Join(errs...)
}
