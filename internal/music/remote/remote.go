// Package remote plays guild queues on a Lavalink node. The node streams
// audio itself; this package keeps the queue, follows node events and turns
// them into advance decisions on the guild lane.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nabra/internal/music/eventloop"
	"nabra/internal/music/playback"
	"nabra/internal/music/queue"
	"nabra/internal/music/track"
)

var (
	// ErrUnavailable is returned when no node is connected.
	ErrUnavailable = errors.New("no lavalink node is available")
	// ErrForeignTrack is returned for tracks that carry no node handle.
	ErrForeignTrack = errors.New("track was not loaded by a node")
)

// Player is the node-side player of one guild.
type Player interface {
	Update(ctx context.Context, opts ...lavalink.PlayerUpdateOpt) error
	Track() *lavalink.Track
	Paused() bool
	Position() lavalink.Duration
	Volume() int
	Destroy(ctx context.Context) error
}

// Link is the node connection plus the bot's voice gateway.
type Link interface {
	Available() bool
	Player(guildID string) (Player, error)
	RemovePlayer(guildID string)
	Load(ctx context.Context, identifier string) (*lavalink.LoadResult, error)
	JoinVoice(ctx context.Context, guildID, channelID string) error
	LeaveVoice(ctx context.Context, guildID string) error
}

type Options struct {
	Loop          *eventloop.Loop
	Store         *queue.Store
	Link          Link
	DefaultVolume int
}

// Backend owns every node-backed session.
type Backend struct {
	loop   *eventloop.Loop
	store  *queue.Store
	linkMu sync.RWMutex
	link   Link
	volume int
	hooks  playback.Hooks
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

var _ playback.Backend = (*Backend)(nil)

func New(opts Options, log zerolog.Logger) *Backend {
	b := &Backend{
		loop:     opts.Loop,
		store:    opts.Store,
		link:     opts.Link,
		volume:   opts.DefaultVolume,
		hooks:    nopHooks{},
		log:      log.With().Str("component", "remote").Logger(),
		sessions: make(map[string]*session),
	}
	if b.volume <= 0 || !playback.ValidVolume(b.volume) {
		b.volume = 100
	}
	return b
}

func (b *Backend) Kind() playback.Kind { return playback.KindRemote }

func (b *Backend) SetHooks(h playback.Hooks) {
	if h == nil {
		h = nopHooks{}
	}
	b.hooks = h
}

// nodeLink is set once the gateway is open, possibly after sessions
// have been asked about availability.
func (b *Backend) nodeLink() Link {
	b.linkMu.RLock()
	defer b.linkMu.RUnlock()
	return b.link
}

func (b *Backend) setLink(l Link) {
	b.linkMu.Lock()
	b.link = l
	b.linkMu.Unlock()
}

// Available reports whether a node can take new sessions.
func (b *Backend) Available() bool {
	l := b.nodeLink()
	return l != nil && l.Available()
}

// Load resolves an identifier on the best node.
func (b *Backend) Load(ctx context.Context, identifier string) (*lavalink.LoadResult, error) {
	if !b.Available() {
		return nil, ErrUnavailable
	}
	return b.nodeLink().Load(ctx, identifier)
}

func (b *Backend) Has(guildID string) bool {
	_, ok := b.lookup(guildID)
	return ok
}

func (b *Backend) GuildIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (b *Backend) Session(guildID string) (playback.Session, bool) {
	s, ok := b.lookup(guildID)
	if !ok {
		return nil, false
	}
	return s, true
}

func (b *Backend) lookup(guildID string) (*session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[guildID]
	return s, ok
}

// Enqueue joins voice on first use, appends the tracks and starts playback
// when nothing is playing. Tracks without a node handle are rejected.
func (b *Backend) Enqueue(ctx context.Context, req playback.Request) (playback.EnqueueResult, error) {
	if len(req.Tracks) == 0 {
		return playback.EnqueueResult{}, errors.New("no tracks to enqueue")
	}
	for _, t := range req.Tracks {
		if _, ok := t.Lavalink(); !ok {
			return playback.EnqueueResult{}, fmt.Errorf("%w: %q", ErrForeignTrack, t.Title)
		}
	}

	s, ok := b.lookup(req.GuildID)
	if !ok {
		var err error
		if s, err = b.open(ctx, req); err != nil {
			return playback.EnqueueResult{}, err
		}
	}

	wasIdle := s.current == nil
	position := len(s.pending) + 1
	s.pending = append(s.pending, playback.Entries(req.Tracks)...)

	s.log.Info().
		Int("added", len(req.Tracks)).
		Int("pending", len(s.pending)).
		Bool("idle", wasIdle).
		Msg("Enqueued tracks")

	if wasIdle {
		b.advance(ctx, s)
		return playback.EnqueueResult{Started: true}, nil
	}
	return playback.EnqueueResult{Position: position}, nil
}

func (b *Backend) open(ctx context.Context, req playback.Request) (*session, error) {
	if !b.Available() {
		return nil, ErrUnavailable
	}
	if err := b.nodeLink().JoinVoice(ctx, req.GuildID, req.VoiceChannelID); err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}
	p, err := b.nodeLink().Player(req.GuildID)
	if err != nil {
		_ = b.nodeLink().LeaveVoice(ctx, req.GuildID)
		return nil, fmt.Errorf("create node player: %w", err)
	}

	id := uuid.NewString()
	s := &session{
		b:              b,
		id:             id,
		guildID:        req.GuildID,
		voiceChannelID: req.VoiceChannelID,
		textChannelID:  req.TextChannelID,
		player:         p,
		volume:         b.volume,
		log: b.log.With().
			Str("guild", req.GuildID).
			Str("session", id).
			Logger(),
	}
	if s.volume != 100 {
		if err := p.Update(ctx, lavalink.WithVolume(s.volume)); err != nil {
			s.log.Warn().Err(err).Msg("Initial volume not applied")
		}
	}

	b.mu.Lock()
	b.sessions[req.GuildID] = s
	b.mu.Unlock()

	s.log.Info().Str("channel", req.VoiceChannelID).Msg("Node session opened")
	return s, nil
}

// advance sends the next playable entry to the node. The node confirms with
// a start event, which is where history and notifications happen. Entries
// the node rejects are dropped so the queue keeps moving.
func (b *Backend) advance(ctx context.Context, s *session) {
	for len(s.pending) > 0 {
		b.hooks.ClearInactivityTimer(s.guildID)

		next := s.pending[0]
		s.pending = s.pending[1:]

		if playback.IsDuplicate(s.current, next) {
			s.log.Debug().Str("uri", next.Track.URI).Msg("Dropping back to back duplicate")
			continue
		}

		lt, _ := next.Track.Lavalink()
		if err := s.player.Update(ctx, lavalink.WithTrack(lt)); err != nil {
			s.log.Warn().Err(err).Str("title", next.Track.Title).Msg("Node refused track, skipping")
			continue
		}
		cur := next
		s.current = &cur
		s.encoded = lt.Encoded
		s.started = false
		return
	}

	hadTrack := s.current != nil
	s.current = nil
	s.encoded = ""
	if hadTrack {
		if err := s.player.Update(ctx, lavalink.WithNullTrack()); err != nil {
			s.log.Debug().Err(err).Msg("Clearing node track failed")
		}
	}
	b.hooks.StartInactivityTimer(s.guildID)
	if hadTrack {
		b.hooks.QueueEnded(s.guildID, s.textChannelID)
	}
}

// Destroy tears the session down. Node and gateway errors are logged only.
func (b *Backend) Destroy(ctx context.Context, guildID string) {
	b.mu.Lock()
	s, ok := b.sessions[guildID]
	delete(b.sessions, guildID)
	b.mu.Unlock()
	if !ok {
		return
	}

	if err := s.player.Destroy(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Node player destroy failed")
	}
	b.nodeLink().RemovePlayer(guildID)
	if err := b.nodeLink().LeaveVoice(ctx, guildID); err != nil {
		s.log.Warn().Err(err).Msg("Voice disconnect failed")
	}
	s.current = nil
	s.pending = nil
	s.log.Info().Msg("Node session destroyed")
}

// Node events arrive on the client's reader goroutine and are moved onto
// the guild lane before they touch a session.

func (b *Backend) HandleTrackStart(guildID string, lt lavalink.Track) {
	b.loop.Post(guildID, func() { b.onTrackStart(guildID, lt) })
}

func (b *Backend) HandleTrackEnd(guildID string, lt lavalink.Track, reason lavalink.TrackEndReason) {
	b.loop.Post(guildID, func() { b.onTrackEnd(guildID, lt, reason) })
}

func (b *Backend) HandleTrackException(guildID string, lt lavalink.Track, ex lavalink.Exception) {
	b.loop.Post(guildID, func() {
		s, ok := b.lookup(guildID)
		if !ok {
			return
		}
		s.log.Warn().
			Str("title", lt.Info.Title).
			Str("severity", string(ex.Severity)).
			Str("cause", ex.Cause).
			Msg(ex.Message)
	})
}

func (b *Backend) HandleTrackStuck(guildID string, lt lavalink.Track, threshold time.Duration) {
	b.loop.Post(guildID, func() {
		s, ok := b.lookup(guildID)
		if !ok || s.encoded != lt.Encoded {
			return
		}
		s.log.Warn().Str("title", lt.Info.Title).Dur("threshold", threshold).Msg("Track stuck, skipping")
		s.pending = playback.Requeue(s.pending, *s.current, b.store.RepeatMode(guildID), playback.EndFailed)
		b.advance(context.Background(), s)
	})
}

func (b *Backend) HandleSocketClosed(guildID string, code int, reason string, byRemote bool) {
	b.loop.Post(guildID, func() {
		s, ok := b.lookup(guildID)
		if !ok {
			return
		}
		s.log.Warn().Int("code", code).Str("reason", reason).Bool("remote", byRemote).Msg("Node voice socket closed")
	})
}

// HandleMoved records that the bot was moved to another voice channel.
func (b *Backend) HandleMoved(guildID, channelID string) {
	b.loop.Post(guildID, func() {
		if s, ok := b.lookup(guildID); ok {
			s.voiceChannelID = channelID
		}
	})
}

func (b *Backend) onTrackStart(guildID string, lt lavalink.Track) {
	s, ok := b.lookup(guildID)
	if !ok || s.current == nil || s.encoded != lt.Encoded || s.started {
		return
	}
	s.started = true
	b.hooks.ClearInactivityTimer(guildID)
	if !s.current.Replay {
		b.store.RecordPlayed(guildID, s.current.Track)
	}
	s.log.Info().Str("title", s.current.Track.Title).Msg("Now playing")
	b.hooks.TrackStarted(guildID, s.textChannelID, s.current.Track)
}

func (b *Backend) onTrackEnd(guildID string, lt lavalink.Track, reason lavalink.TrackEndReason) {
	s, ok := b.lookup(guildID)
	if !ok || s.current == nil || s.encoded != lt.Encoded {
		return
	}
	// replaced and stopped ends are the echo of our own skip or stop
	if !reason.MayStartNext() {
		return
	}

	end := playback.EndFinished
	if reason == lavalink.TrackEndReasonLoadFailed {
		end = playback.EndFailed
		s.log.Warn().Str("title", s.current.Track.Title).Msg("Node failed to load track, advancing")
	}
	s.pending = playback.Requeue(s.pending, *s.current, b.store.RepeatMode(guildID), end)
	b.advance(context.Background(), s)
}

type nopHooks struct{}

func (nopHooks) StartInactivityTimer(string)              {}
func (nopHooks) ClearInactivityTimer(string)              {}
func (nopHooks) TrackStarted(string, string, track.Track) {}
func (nopHooks) QueueEnded(string, string)                {}
