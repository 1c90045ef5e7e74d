package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog"

	"nabra/internal/config"
	"nabra/pkg/retrylimit"
)

// NodeLink is the production Link: a disgolink client driven by the bot's
// discordgo gateway session.
type NodeLink struct {
	client  disgolink.Client
	session *discordgo.Session
	backend *Backend
	lim     *retrylimit.AdaptiveLimiter
	log     zerolog.Logger

	mu    sync.Mutex
	nodes int
}

var _ Link = (*NodeLink)(nil)

// NewNodeLink creates the client and routes its player events into b. The
// gateway session must already be open so the bot user id is known.
func NewNodeLink(dg *discordgo.Session, b *Backend, log zerolog.Logger) (*NodeLink, error) {
	if dg.State == nil || dg.State.User == nil {
		return nil, errors.New("discord session is not ready")
	}
	userID, err := snowflake.Parse(dg.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("parse bot user id: %w", err)
	}

	l := &NodeLink{
		session: dg,
		backend: b,
		lim:     retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		log:     log.With().Str("component", "lavalink").Logger(),
	}
	l.client = disgolink.New(userID,
		disgolink.WithListenerFunc(l.onTrackStart),
		disgolink.WithListenerFunc(l.onTrackEnd),
		disgolink.WithListenerFunc(l.onTrackException),
		disgolink.WithListenerFunc(l.onTrackStuck),
		disgolink.WithListenerFunc(l.onWebSocketClosed),
	)

	dg.AddHandler(l.onVoiceStateUpdate)
	dg.AddHandler(l.onVoiceServerUpdate)
	b.setLink(l)
	return l, nil
}

// Connect adds every configured node. A node that cannot be reached is
// logged and skipped; the bot then relies on local playback.
func (l *NodeLink) Connect(ctx context.Context, nodes []config.Node) {
	for _, n := range nodes {
		cfg := retrylimit.DefaultRetryConfig()
		cfg.MaxAttempts = 3
		cfg.Logger = l.log
		err := retrylimit.WithRetryConfig(ctx, func() error {
			nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			_, err := l.client.AddNode(nctx, disgolink.NodeConfig{
				Name:     n.ID,
				Address:  n.Address(),
				Password: n.Password,
				Secure:   n.Secure,
			})
			return err
		}, nil, cfg)
		if err != nil {
			l.log.Error().Err(err).Str("node", n.ID).Str("address", n.Address()).Msg("Lavalink node unreachable")
			continue
		}
		l.mu.Lock()
		l.nodes++
		l.mu.Unlock()
		l.log.Info().Str("node", n.ID).Str("address", n.Address()).Msg("Lavalink node connected")
	}
}

func (l *NodeLink) Available() bool {
	l.mu.Lock()
	n := l.nodes
	l.mu.Unlock()
	if n == 0 {
		return false
	}
	node := l.client.BestNode()
	return node != nil && node.Status() == disgolink.StatusConnected
}

func (l *NodeLink) Player(guildID string) (Player, error) {
	id, err := snowflake.Parse(guildID)
	if err != nil {
		return nil, fmt.Errorf("parse guild id: %w", err)
	}
	p := l.client.Player(id)
	if p == nil {
		return nil, ErrUnavailable
	}
	return p, nil
}

func (l *NodeLink) RemovePlayer(guildID string) {
	if id, err := snowflake.Parse(guildID); err == nil {
		l.client.RemovePlayer(id)
	}
}

// Load resolves an identifier on the best node, retrying transient failures.
func (l *NodeLink) Load(ctx context.Context, identifier string) (*lavalink.LoadResult, error) {
	var res *lavalink.LoadResult
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.Logger = l.log
	err := retrylimit.WithRetryConfig(ctx, func() error {
		node := l.client.BestNode()
		if node == nil {
			return retrylimit.Permanent(ErrUnavailable)
		}
		r, err := node.LoadTracks(ctx, identifier)
		if err != nil {
			return err
		}
		res = r
		return nil
	}, l.lim, cfg)
	return res, err
}

func (l *NodeLink) JoinVoice(_ context.Context, guildID, channelID string) error {
	return l.session.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

func (l *NodeLink) LeaveVoice(_ context.Context, guildID string) error {
	return l.session.ChannelVoiceJoinManual(guildID, "", false, false)
}

// Close shuts every node connection down.
func (l *NodeLink) Close() {
	l.client.Close()
}

func (l *NodeLink) onVoiceStateUpdate(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if s.State == nil || s.State.User == nil || e.UserID != s.State.User.ID {
		return
	}
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		return
	}
	var channelID *snowflake.ID
	if e.ChannelID != "" {
		if id, err := snowflake.Parse(e.ChannelID); err == nil {
			channelID = &id
		}
	}
	l.client.OnVoiceStateUpdate(context.Background(), guildID, channelID, e.SessionID)
	if channelID != nil {
		l.backend.HandleMoved(e.GuildID, e.ChannelID)
	}
}

func (l *NodeLink) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		return
	}
	l.client.OnVoiceServerUpdate(context.Background(), guildID, e.Token, e.Endpoint)
}

func (l *NodeLink) onTrackStart(p disgolink.Player, e lavalink.TrackStartEvent) {
	l.backend.HandleTrackStart(p.GuildID().String(), e.Track)
}

func (l *NodeLink) onTrackEnd(p disgolink.Player, e lavalink.TrackEndEvent) {
	l.backend.HandleTrackEnd(p.GuildID().String(), e.Track, e.Reason)
}

func (l *NodeLink) onTrackException(p disgolink.Player, e lavalink.TrackExceptionEvent) {
	l.backend.HandleTrackException(p.GuildID().String(), e.Track, e.Exception)
}

func (l *NodeLink) onTrackStuck(p disgolink.Player, e lavalink.TrackStuckEvent) {
	l.backend.HandleTrackStuck(p.GuildID().String(), e.Track, time.Duration(e.Threshold)*time.Millisecond)
}

func (l *NodeLink) onWebSocketClosed(p disgolink.Player, e lavalink.WebSocketClosedEvent) {
	l.backend.HandleSocketClosed(p.GuildID().String(), e.Code, e.Reason, e.ByRemote)
}
