package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nabra/internal/command/core"
	"nabra/internal/command/music"
	"nabra/internal/discord"
	"nabra/internal/logger"
	"nabra/internal/music/eventloop"
	"nabra/internal/music/fallback"
	"nabra/internal/music/player"
	"nabra/internal/music/queue"
	"nabra/internal/music/remote"
	"nabra/internal/music/search"
	"nabra/internal/music/stream"
	"nabra/internal/storage"
	"nabra/pkg/jobmgr"
)

const shutdownTimeout = 15 * time.Second

func runBot(c *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	log.Info().Msgf("Starting %s bot...", core.AppName)

	nodes, err := cfg.Nodes()
	if err != nil {
		return err
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

	loop := eventloop.New(log)
	queues := queue.NewStore()
	extractor := stream.NewExtractor(stream.ExtractorOptions{
		YtdlpPath:  cfg.YtdlpPath,
		FfmpegPath: cfg.FfmpegPath,
		Proxy:      cfg.Proxy,
	}, log)

	local := fallback.New(fallback.Options{
		Loop:          loop,
		Store:         queues,
		Transport:     discord.NewVoiceTransport(dg),
		Extractor:     extractor,
		DefaultVolume: cfg.DefaultVolume,
	}, log)
	nodeBackend := remote.New(remote.Options{
		Loop:          loop,
		Store:         queues,
		DefaultVolume: cfg.DefaultVolume,
	}, log)

	searcher := search.New(search.Options{
		Remote: nodeBackend,
		Providers: []search.Provider{
			search.NewYtdlp(extractor.YtdlpCommand),
			search.NewKkdai(),
			search.NewWeb(),
		},
		Converter:     search.NewCatalog(cfg.SpotifyClientID, cfg.SpotifyClientSecret, log),
		SearchLimit:   cfg.SearchLimit,
		PlaylistLimit: cfg.PlaylistLimit,
	}, log)

	players := player.New(player.Options{
		Loop:              loop,
		Store:             queues,
		Remote:            nodeBackend,
		Fallback:          local,
		Searcher:          searcher,
		InactivityTimeout: cfg.InactivityTimeout,
		MaxQueueSize:      cfg.MaxQueueSize,
		Hold:              store.Is247,
	}, log)

	jobs := jobmgr.NewManager(log)
	live := music.NewLiveDisplays(jobs, players, discord.NewMessageEditor(dg), log)
	players.SetNotifier(discord.NewNotifier(dg, live, log))

	bot := discord.NewBot(dg, discord.Options{
		Config:  cfg,
		Storage: store,
		Player:  players,
		Log:     log,
	})
	registry, err := buildRegistry(&music.Deps{Player: players, Voice: bot.VoiceChannelOf, Live: live})
	if err != nil {
		return err
	}
	bot.SetRegistry(registry)

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Open(); err != nil {
		return err
	}

	link, err := remote.NewNodeLink(dg, nodeBackend, log)
	if err != nil {
		log.Warn().Err(err).Msg("Lavalink unavailable, using local playback only")
	} else {
		go link.Connect(ctx, nodes)
	}

	<-ctx.Done()
	log.Info().Msg("❎ Shutdown signal received. Cleaning up...")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	jobs.StopAll(sctx)
	players.Shutdown(sctx)
	if link != nil {
		link.Close()
	}
	if err := bot.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Discord session")
	}
	log.Info().Msg("Discord bot exited cleanly")
	return nil
}
