package command

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"nabra/internal/storage"
	"nabra/pkg/cmd"
)

// Discord contexts, passed as cmd.Invocation.Data.

type SlashInteractionContext struct {
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	Storage *storage.Storage
	Log     zerolog.Logger
}

type ComponentInteractionContext struct {
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	Storage *storage.Storage
	Log     zerolog.Logger
}

type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// ComponentInteractionHandler receives button presses whose custom id starts
// with the command name followed by ':'.
type ComponentInteractionHandler interface {
	Component(*ComponentInteractionContext) error
}

// DiscordMeta lets middleware read Group/Category/Permissions without
// depending on the concrete command type.
type DiscordMeta interface {
	Group() string
	Category() string
	UserPermissions() []int64
}

// DiscordCommand is what individual Discord commands implement.
type DiscordCommand interface {
	Name() string
	Description() string
	Group() string
	Category() string
	UserPermissions() []int64
	Run(ctx any) error
}

// DiscordAdapter adapts a DiscordCommand to cmd.Command so it can live in
// the universal registry.
type DiscordAdapter struct {
	Cmd DiscordCommand
}

func (a *DiscordAdapter) Name() string             { return a.Cmd.Name() }
func (a *DiscordAdapter) Description() string      { return a.Cmd.Description() }
func (a *DiscordAdapter) Group() string            { return a.Cmd.Group() }
func (a *DiscordAdapter) Category() string         { return a.Cmd.Category() }
func (a *DiscordAdapter) UserPermissions() []int64 { return a.Cmd.UserPermissions() }

func (a *DiscordAdapter) Run(_ context.Context, inv *cmd.Invocation) error {
	if cc, ok := inv.Data.(*ComponentInteractionContext); ok {
		if ch, ok := a.Cmd.(ComponentInteractionHandler); ok {
			return ch.Component(cc)
		}
		return nil
	}
	return a.Cmd.Run(inv.Data)
}

func (a *DiscordAdapter) SlashDefinition() *discordgo.ApplicationCommand {
	if sp, ok := a.Cmd.(SlashProvider); ok {
		return sp.SlashDefinition()
	}
	return nil
}

// RegisterCommand wraps discordCmd with mws and adds it to r.
func RegisterCommand(r *cmd.Registry, discordCmd DiscordCommand, mws ...cmd.Middleware) error {
	return r.Register(cmd.Apply(&DiscordAdapter{Cmd: discordCmd}, mws...))
}

// Definition returns the slash definition of a registered command, walking
// through middleware wrappers.
func Definition(c cmd.Command) *discordgo.ApplicationCommand {
	sp, ok := cmd.Root(c).(SlashProvider)
	if !ok {
		return nil
	}
	def := sp.SlashDefinition()
	if def != nil && def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}
	return def
}
