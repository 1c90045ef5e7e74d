package main

import (
	"github.com/spf13/cobra"

	"nabra/internal/command/music"
	"nabra/internal/discord"
	"nabra/internal/logger"
	"nabra/internal/storage"
)

var (
	deployGuild  string
	deployGlobal bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy-commands",
	Short: "Register slash commands with Discord and exit",
	Long: `Register every slash command, either to the guild in DISCORD_GUILD_ID
(or --guild) for instant updates during development, or globally.`,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVar(&deployGuild, "guild", "", "Guild to register in (default: DISCORD_GUILD_ID)")
	deployCmd.Flags().BoolVar(&deployGlobal, "global", false, "Register globally even when DISCORD_GUILD_ID is set")
}

func runDeploy(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	guildID := cfg.DiscordGuildID
	if deployGuild != "" {
		guildID = deployGuild
	}
	if deployGlobal {
		guildID = ""
	}

	store, err := storage.New(cfg.StoragePath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(&music.Deps{})
	if err != nil {
		return err
	}

	bot := discord.NewBot(dg, discord.Options{Config: cfg, Storage: store, Registry: registry, Log: log})
	// registration is plain REST, no gateway connection needed
	return bot.RegisterCommands(guildID)
}
