package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/pkg/cmd"
)

const globalScope = "global"

// RegisterCommands syncs the registry's slash commands with Discord, either
// globally (guildID empty) or for a single guild. Nothing is sent when the
// definitions hash matches the one stored after the last sync.
func (b *Bot) RegisterCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}
	scope := guildID
	if scope == "" {
		scope = globalScope
	}

	defs := commandDefinitions(b.registry)
	hash := hashCommands(defs)
	if b.storage != nil && b.storage.CommandsHash(scope) == hash {
		b.log.Info().Str("scope", scope).Int("commands", len(defs)).Msg("Slash commands unchanged")
		return nil
	}

	// overwrite also deletes commands that are no longer registered
	created, err := b.dg.ApplicationCommandBulkOverwrite(appID, guildID, defs)
	if err != nil {
		return fmt.Errorf("overwrite commands in %s: %w", scope, err)
	}
	b.log.Info().Str("scope", scope).Int("commands", len(created)).Msg("Slash commands registered")

	if b.storage != nil {
		if err := b.storage.SetCommandsHash(scope, hash); err != nil {
			b.log.Warn().Err(err).Str("scope", scope).Msg("Failed to save commands hash")
		}
	}
	return nil
}

// appID returns the bot's application ID, fetching from Discord if not cached in State.
func (b *Bot) appID() (string, error) {
	if b.cfg != nil && b.cfg.DiscordClientID != "" {
		return b.cfg.DiscordClientID, nil
	}
	if b.dg.State != nil && b.dg.State.User != nil && b.dg.State.User.ID != "" {
		return b.dg.State.User.ID, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

// commandDefinitions returns the slash definitions of every registered command.
func commandDefinitions(r *cmd.Registry) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range r.GetAll() {
		if def := command.Definition(c); def != nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// hashCommands returns a deterministic SHA-1 over the stable fields of defs.
func hashCommands(defs []*discordgo.ApplicationCommand) string {
	stable := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		entry := map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"type":        d.Type,
		}
		if len(d.Options) > 0 {
			entry["options"] = normalizeOptions(d.Options)
		}
		stable = append(stable, entry)
	}
	sort.Slice(stable, func(i, j int) bool {
		return stable[i]["name"].(string) < stable[j]["name"].(string)
	})
	data, _ := json.Marshal(stable)
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]any {
	out := make([]map[string]any, len(opts))
	for i, o := range opts {
		entry := map[string]any{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
			"max":         o.MaxValue,
		}
		if o.MinValue != nil {
			entry["min"] = *o.MinValue
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]any, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]any{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
