// Package player is the single entry point the command layer talks to. It
// picks a backend per guild, serialises work on the guild lane and owns the
// inactivity timers that tear idle sessions down.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nabra/internal/music/eventloop"
	"nabra/internal/music/playback"
	"nabra/internal/music/queue"
	"nabra/internal/music/search"
	"nabra/internal/music/track"
	"nabra/pkg/parallel"
)

var (
	ErrNotInVoiceChannel = errors.New("you need to be in a voice channel")
	ErrNoSearchResults   = errors.New("no results found")
	ErrNoPlayableSource  = track.ErrNoPlayableSource
	ErrNoPlayer          = errors.New("nothing is playing in this server")
	ErrQueueFull         = errors.New("the queue is full")
	ErrNoPrevious        = errors.New("there is no previous track")
)

const DefaultInactivityTimeout = 5 * time.Minute

const shutdownWorkers = 4

// Caller is who asked and where they are.
type Caller struct {
	GuildID        string
	UserID         string
	VoiceChannelID string
	TextChannelID  string
}

// PlayResult describes what Play did with the request.
type PlayResult struct {
	Track track.Track
	// QueuePosition is 0 when Track started at once, else its 1-based slot.
	QueuePosition int
	// PlaylistSize is the number of tracks queued, 0 for a single track.
	PlaylistSize int
	PlaylistName string
	Backend      playback.Kind
}

// Searcher resolves queries; search.Searcher is the production one.
type Searcher interface {
	Search(ctx context.Context, query, requesterID string) search.Result
}

// RemoteBackend is a backend that can be offline.
type RemoteBackend interface {
	playback.Backend
	Available() bool
}

// Notifier receives user-visible playback events. Calls come from the
// guild lane and must not block.
type Notifier interface {
	NowPlaying(guildID, textChannelID string, t track.Track)
	QueueEnded(guildID, textChannelID string)
	SessionDestroyed(guildID string)
}

// Occupant is one member of the bot's voice channel.
type Occupant struct {
	UserID string
	Bot    bool
}

type Options struct {
	Loop              *eventloop.Loop
	Store             *queue.Store
	Remote            RemoteBackend
	Fallback          playback.Backend
	Searcher          Searcher
	Notifier          Notifier
	InactivityTimeout time.Duration
	MaxQueueSize      int
	// Hold reports guilds in 24/7 mode, whose idle sessions are kept.
	Hold func(guildID string) bool
}

type inactivity struct {
	timer *time.Timer
	gen   uint64
}

// Manager is the player facade.
type Manager struct {
	loop     *eventloop.Loop
	store    *queue.Store
	remote   RemoteBackend
	fallback playback.Backend
	searcher Searcher
	notifier Notifier
	timeout  time.Duration
	maxQueue int
	hold     func(string) bool
	log      zerolog.Logger

	mu     sync.Mutex
	timers map[string]*inactivity
	gen    uint64
}

var _ playback.Hooks = (*Manager)(nil)

func New(opts Options, log zerolog.Logger) *Manager {
	m := &Manager{
		loop:     opts.Loop,
		store:    opts.Store,
		remote:   opts.Remote,
		fallback: opts.Fallback,
		searcher: opts.Searcher,
		notifier: opts.Notifier,
		timeout:  opts.InactivityTimeout,
		maxQueue: opts.MaxQueueSize,
		hold:     opts.Hold,
		log:      log.With().Str("component", "player").Logger(),
		timers:   make(map[string]*inactivity),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultInactivityTimeout
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.hold == nil {
		m.hold = func(string) bool { return false }
	}
	m.fallback.SetHooks(m)
	if m.remote != nil {
		m.remote.SetHooks(m)
	}
	return m
}

// SetNotifier replaces the notifier; the discord layer is built after the
// manager.
func (m *Manager) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	m.notifier = n
}

// Play searches for query and queues the result in the caller's guild.
// The search runs outside the guild lane; backend choice and enqueue run
// inside it as one step.
func (m *Manager) Play(ctx context.Context, c Caller, query string) (*PlayResult, error) {
	if c.VoiceChannelID == "" {
		return nil, ErrNotInVoiceChannel
	}

	res := m.searcher.Search(ctx, query, c.UserID)
	if len(res.Tracks) == 0 {
		return nil, ErrNoSearchResults
	}
	tracks := res.Tracks
	if !res.Playlist {
		tracks = tracks[:1]
	}

	var out *PlayResult
	err := m.loop.Run(ctx, c.GuildID, func() error {
		b := m.route(ctx, c.GuildID, res.Source)

		queued := tracks
		if m.maxQueue > 0 {
			room := m.maxQueue - m.queuedLocked(c.GuildID)
			if room <= 0 {
				return ErrQueueFull
			}
			if len(queued) > room {
				m.log.Info().
					Str("guild", c.GuildID).
					Int("dropped", len(queued)-room).
					Int("max", m.maxQueue).
					Msg("Queue cap reached, dropping extra tracks")
				queued = queued[:room]
			}
		}

		er, err := b.Enqueue(ctx, playback.Request{
			GuildID:        c.GuildID,
			VoiceChannelID: c.VoiceChannelID,
			TextChannelID:  c.TextChannelID,
			Tracks:         queued,
		})
		if err != nil {
			return err
		}

		out = &PlayResult{
			Track:        queued[0],
			PlaylistName: res.PlaylistName,
			Backend:      b.Kind(),
		}
		if !er.Started {
			out.QueuePosition = er.Position
		}
		if res.Playlist && len(queued) > 1 {
			out.PlaylistSize = len(queued)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("guild", c.GuildID).
		Str("user", c.UserID).
		Str("title", out.Track.Title).
		Stringer("backend", out.Backend).
		Int("position", out.QueuePosition).
		Int("playlist", out.PlaylistSize).
		Msg("Play request queued")
	return out, nil
}

// route picks the backend for a guild. An existing local session always
// wins; otherwise the node is used when it served the search. Falling back
// while a node session exists replaces that session.
func (m *Manager) route(ctx context.Context, guildID string, src search.Source) playback.Backend {
	if m.fallback.Has(guildID) {
		return m.fallback
	}
	if m.remote != nil {
		if src == search.SourceRemote && m.remote.Available() {
			return m.remote
		}
		if m.remote.Has(guildID) {
			m.log.Warn().Str("guild", guildID).Msg("Node unavailable for this request, moving guild to local playback")
			m.remote.Destroy(ctx, guildID)
		}
	}
	return m.fallback
}

func (m *Manager) queuedLocked(guildID string) int {
	s, ok := m.session(guildID)
	if !ok {
		return 0
	}
	n := len(s.Upcoming())
	if s.Current() != nil {
		n++
	}
	return n
}

// session finds the guild session, local first. Lane only.
func (m *Manager) session(guildID string) (playback.Session, bool) {
	if s, ok := m.fallback.Session(guildID); ok {
		return s, true
	}
	if m.remote != nil {
		return m.remote.Session(guildID)
	}
	return nil, false
}

// HasPlayer reports whether either backend holds a session for the guild.
func (m *Manager) HasPlayer(guildID string) bool {
	return m.fallback.Has(guildID) || (m.remote != nil && m.remote.Has(guildID))
}

// GetPlayer returns a snapshot of the guild session.
func (m *Manager) GetPlayer(ctx context.Context, guildID string) (playback.Snapshot, bool) {
	var (
		snap playback.Snapshot
		ok   bool
	)
	err := m.loop.Run(ctx, guildID, func() error {
		var s playback.Session
		if s, ok = m.session(guildID); ok {
			snap = playback.Snap(s, m.store.RepeatMode(guildID))
		}
		return nil
	})
	if err != nil {
		return playback.Snapshot{}, false
	}
	return snap, ok
}

// Control runs fn against the guild session on its lane.
func (m *Manager) Control(ctx context.Context, guildID string, fn func(playback.Session) error) error {
	return m.loop.Run(ctx, guildID, func() error {
		s, ok := m.session(guildID)
		if !ok {
			return ErrNoPlayer
		}
		return fn(s)
	})
}

// Previous steps back through the guild history and plays that track
// ahead of the queue.
func (m *Manager) Previous(ctx context.Context, guildID string) (track.Track, error) {
	var prev track.Track
	err := m.Control(ctx, guildID, func(s playback.Session) error {
		t, ok := m.store.Previous(guildID)
		if !ok {
			return ErrNoPrevious
		}
		prev = t
		return s.Replay(ctx, t)
	})
	return prev, err
}

func (m *Manager) SetRepeatMode(guildID string, mode queue.RepeatMode) {
	m.store.SetRepeatMode(guildID, mode)
}

func (m *Manager) RepeatMode(guildID string) queue.RepeatMode {
	return m.store.RepeatMode(guildID)
}

// Destroy tears down whatever the guild has. Calling it for a guild with
// no session is a no-op. The teardown always runs; ctx only bounds how long
// the caller waits for it.
func (m *Manager) Destroy(ctx context.Context, guildID string) {
	dctx := context.WithoutCancel(ctx)
	err := m.loop.Do(ctx, guildID, func() error {
		m.destroyLocked(dctx, guildID)
		return nil
	})
	if err != nil {
		m.log.Warn().Err(err).Str("guild", guildID).Msg("Destroy still queued behind guild work")
	}
}

func (m *Manager) destroyLocked(ctx context.Context, guildID string) {
	m.ClearInactivityTimer(guildID)
	had := m.HasPlayer(guildID)
	m.fallback.Destroy(ctx, guildID)
	if m.remote != nil {
		m.remote.Destroy(ctx, guildID)
	}
	m.store.Clear(guildID)
	if had {
		m.log.Info().Str("guild", guildID).Msg("Player destroyed")
		m.notifier.SessionDestroyed(guildID)
	}
}

// CheckVoiceChannelMembers destroys the guild session when no human is
// left in the bot's channel and reports whether it did.
func (m *Manager) CheckVoiceChannelMembers(ctx context.Context, guildID string, occupants []Occupant) bool {
	for _, o := range occupants {
		if !o.Bot {
			return false
		}
	}
	if !m.HasPlayer(guildID) {
		return false
	}
	m.log.Info().Str("guild", guildID).Msg("Voice channel empty, disconnecting")
	m.Destroy(ctx, guildID)
	return true
}

// Shutdown destroys every session.
func (m *Manager) Shutdown(ctx context.Context) {
	seen := make(map[string]bool)
	ids := m.fallback.GuildIDs()
	if m.remote != nil {
		ids = append(ids, m.remote.GuildIDs()...)
	}
	guilds := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			guilds = append(guilds, id)
		}
	}
	_ = parallel.ForEach(ctx, guilds, shutdownWorkers, func(ctx context.Context, id string) error {
		m.Destroy(ctx, id)
		return nil
	})
	m.mu.Lock()
	for id, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
	m.log.Info().Int("sessions", len(seen)).Msg("All players shut down")
}

// StartInactivityTimer (re)arms the guild timer. Guilds on hold get none.
func (m *Manager) StartInactivityTimer(guildID string) {
	if m.hold(guildID) {
		m.ClearInactivityTimer(guildID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[guildID]; ok {
		t.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timers[guildID] = &inactivity{
		gen: gen,
		timer: time.AfterFunc(m.timeout, func() {
			m.loop.Post(guildID, func() { m.onInactive(guildID, gen) })
		}),
	}
	m.log.Debug().Str("guild", guildID).Dur("after", m.timeout).Msg("Inactivity timer armed")
}

func (m *Manager) ClearInactivityTimer(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[guildID]; ok {
		t.timer.Stop()
		delete(m.timers, guildID)
	}
}

// HasInactivityTimer reports whether a timer is armed for the guild.
func (m *Manager) HasInactivityTimer(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[guildID]
	return ok
}

// onInactive runs on the lane. A timer that was cleared or re-armed after
// it fired carries a stale generation and does nothing.
func (m *Manager) onInactive(guildID string, gen uint64) {
	m.mu.Lock()
	t, ok := m.timers[guildID]
	if !ok || t.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.timers, guildID)
	m.mu.Unlock()

	if m.hold(guildID) {
		return
	}
	m.log.Info().Str("guild", guildID).Dur("idle", m.timeout).Msg("Inactivity timeout, leaving voice")
	m.destroyLocked(context.Background(), guildID)
}

func (m *Manager) TrackStarted(guildID, textChannelID string, t track.Track) {
	m.notifier.NowPlaying(guildID, textChannelID, t)
}

func (m *Manager) QueueEnded(guildID, textChannelID string) {
	m.notifier.QueueEnded(guildID, textChannelID)
}

// Describe renders an error for users.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrNotInVoiceChannel):
		return "You need to be in a voice channel to use this command!"
	case errors.Is(err, ErrNoSearchResults):
		return "No results found for that query."
	case errors.Is(err, ErrNoPlayableSource):
		return "That track has no playable source."
	case errors.Is(err, ErrNoPlayer):
		return "Nothing is playing right now."
	case errors.Is(err, ErrQueueFull):
		return "The queue is full."
	case errors.Is(err, ErrNoPrevious):
		return "There is no previous track."
	case errors.Is(err, playback.ErrSeekUnsupported):
		return "Seeking is not supported while playing locally."
	case errors.Is(err, playback.ErrOutOfRange):
		return "That position is outside the queue."
	case errors.Is(err, playback.ErrVolumeRange):
		return "Volume must be between 0 and 200."
	case errors.Is(err, playback.ErrNothingPlaying):
		return "Nothing is playing right now."
	}
	return fmt.Sprintf("Something went wrong: %v", err)
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(string, string, track.Track) {}
func (nopNotifier) QueueEnded(string, string)              {}
func (nopNotifier) SessionDestroyed(string)                {}
