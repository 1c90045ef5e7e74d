// cmd/nabra/main.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nabra/internal/command/core"
	"nabra/internal/command/music"
	"nabra/internal/config"
	"nabra/internal/middleware"
	"nabra/pkg/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "nabra",
	Short: "Discord music bot",
	Long: `nabra plays music in Discord voice channels.

Tracks stream through a Lavalink node when one is reachable and fall back
to local yt-dlp and ffmpeg playback otherwise. Settings come from the
environment or a .env file.`,
	SilenceUsage: true,
	RunE:         runBot,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRegistry registers every command behind the shared middleware chain.
func buildRegistry(deps *music.Deps) (*cmd.Registry, error) {
	r := cmd.NewRegistry()
	mws := []cmd.Middleware{
		middleware.WithGroupAccessCheck(),
		middleware.WithGuildOnly(),
		middleware.WithUserPermissionCheck(),
		middleware.WithCommandLogger(),
	}
	err := errors.Join(
		core.Register(r, mws...),
		music.Register(r, deps, mws...),
	)
	return r, err
}
