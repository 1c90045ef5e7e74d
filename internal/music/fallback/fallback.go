// Package fallback plays guild queues locally: yt-dlp output is probed,
// decoded and sent over a voice connection the bot owns itself.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nabra/internal/music/eventloop"
	"nabra/internal/music/playback"
	"nabra/internal/music/queue"
	"nabra/internal/music/stream"
	"nabra/internal/music/track"
)

// Conn is a joined voice channel.
type Conn interface {
	stream.VoiceConn
	ChannelID() string
	Disconnect() error
}

// Transport joins voice channels.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Conn, error)
}

// Sink plays one resource at a time and reports the end of each through
// the callback given to its factory.
type Sink interface {
	Play(res stream.Resource) uint64
	Pause()
	Resume()
	Stop()
	Close()
	Status() stream.Status
	Position() time.Duration
	SetVolume(pct int)
}

// SinkFactory creates the sink for a new session.
type SinkFactory func(conn Conn, onEvent func(stream.Event)) Sink

// Extractor opens a playable resource for a locator.
type Extractor interface {
	Open(ctx context.Context, loc track.Locator) (stream.Resource, error)
}

type Options struct {
	Loop          *eventloop.Loop
	Store         *queue.Store
	Transport     Transport
	Extractor     Extractor
	NewSink       SinkFactory
	DefaultVolume int
}

// Backend owns every local session.
type Backend struct {
	loop      *eventloop.Loop
	store     *queue.Store
	transport Transport
	extractor Extractor
	newSink   SinkFactory
	volume    int
	hooks     playback.Hooks
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

var _ playback.Backend = (*Backend)(nil)

func New(opts Options, log zerolog.Logger) *Backend {
	b := &Backend{
		loop:      opts.Loop,
		store:     opts.Store,
		transport: opts.Transport,
		extractor: opts.Extractor,
		newSink:   opts.NewSink,
		volume:    opts.DefaultVolume,
		hooks:     nopHooks{},
		log:       log.With().Str("component", "fallback").Logger(),
		sessions:  make(map[string]*session),
	}
	if b.newSink == nil {
		sinkLog := b.log
		b.newSink = func(c Conn, on func(stream.Event)) Sink {
			return stream.NewPlayer(c, on, sinkLog)
		}
	}
	if b.volume <= 0 || !playback.ValidVolume(b.volume) {
		b.volume = 100
	}
	return b
}

func (b *Backend) Kind() playback.Kind { return playback.KindFallback }

func (b *Backend) SetHooks(h playback.Hooks) {
	if h == nil {
		h = nopHooks{}
	}
	b.hooks = h
}

func (b *Backend) Has(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[guildID]
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
// when nothing is playing.
func (b *Backend) Enqueue(ctx context.Context, req playback.Request) (playback.EnqueueResult, error) {
	if len(req.Tracks) == 0 {
		return playback.EnqueueResult{}, errors.New("no tracks to enqueue")
	}

	s, ok := b.lookup(req.GuildID)
	if !ok {
		var err error
		if s, err = b.open(ctx, req); err != nil {
			return playback.EnqueueResult{}, err
		}
	}

	wasIdle := s.idle()
	position := len(s.pending) + 1
	s.pending = append(s.pending, playback.Entries(req.Tracks)...)

	s.log.Info().
		Int("added", len(req.Tracks)).
		Int("pending", len(s.pending)).
		Bool("idle", wasIdle).
		Msg("Enqueued tracks")

	if wasIdle {
		b.advance(s)
		return playback.EnqueueResult{Started: true}, nil
	}
	return playback.EnqueueResult{Position: position}, nil
}

func (b *Backend) open(ctx context.Context, req playback.Request) (*session, error) {
	conn, err := b.transport.Join(ctx, req.GuildID, req.VoiceChannelID)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &session{
		b:             b,
		id:            id,
		guildID:       req.GuildID,
		textChannelID: req.TextChannelID,
		conn:          conn,
		ctx:           sctx,
		cancel:        cancel,
		volume:        b.volume,
		log: b.log.With().
			Str("guild", req.GuildID).
			Str("session", id).
			Logger(),
	}
	guildID := req.GuildID
	s.sink = b.newSink(conn, func(ev stream.Event) {
		b.loop.Post(guildID, func() { b.onSinkEvent(guildID, id, ev) })
	})
	s.sink.SetVolume(s.volume)

	b.mu.Lock()
	b.sessions[guildID] = s
	b.mu.Unlock()

	s.log.Info().Str("channel", conn.ChannelID()).Msg("Local session opened")
	return s, nil
}

// advance pops pending entries until one is handed to the extractor.
// Entries that cannot be resolved are dropped here; entries whose
// extraction fails are dropped in onLoaded, which calls advance again, so
// one bad track never stalls the queue. Each step consumes an entry, which
// bounds the chain.
func (b *Backend) advance(s *session) {
	if s.loading != nil {
		return
	}
	for len(s.pending) > 0 {
		b.hooks.ClearInactivityTimer(s.guildID)

		next := s.pending[0]
		s.pending = s.pending[1:]

		if playback.IsDuplicate(s.last(), next) {
			s.log.Debug().Str("uri", next.Track.URI).Msg("Dropping back to back duplicate")
			continue
		}

		loc, err := next.Track.Locate()
		if err != nil {
			s.log.Warn().Err(err).Str("title", next.Track.Title).Msg("Dropping track")
			continue
		}

		b.load(s, next, loc)
		return
	}

	hadTrack := s.last() != nil
	s.current, s.prev = nil, nil
	s.gen = 0
	b.hooks.StartInactivityTimer(s.guildID)
	if hadTrack {
		b.hooks.QueueEnded(s.guildID, s.textChannelID)
	}
}

// load runs the extraction off the lane; yt-dlp and the probe can take
// seconds and the lane must stay free for commands and Destroy. The result
// comes back through onLoaded, tagged with the load sequence.
func (b *Backend) load(s *session, next playback.Entry, loc track.Locator) {
	if s.current != nil {
		s.prev = s.current
		s.current = nil
	}
	s.loadSeq++
	s.loading = &next

	guildID, sessionID, seq, ctx := s.guildID, s.id, s.loadSeq, s.ctx
	go func() {
		res, err := b.extractor.Open(ctx, loc)
		b.loop.Post(guildID, func() { b.onLoaded(guildID, sessionID, seq, res, err) })
	}()
}

// onLoaded runs on the lane. A result for a destroyed session or an
// abandoned load is closed and dropped.
func (b *Backend) onLoaded(guildID, sessionID string, seq uint64, res stream.Resource, err error) {
	s, ok := b.lookup(guildID)
	if !ok || s.id != sessionID || s.loading == nil || s.loadSeq != seq {
		if res != nil {
			_ = res.Close()
		}
		return
	}
	next := *s.loading
	s.loading = nil

	if err != nil {
		ev := s.log.Warn()
		if errors.Is(err, stream.ErrExtractorMissing) || errors.Is(err, stream.ErrDecoderMissing) {
			ev = s.log.Error()
		}
		ev.Err(err).Str("title", next.Track.Title).Msg("Extraction failed, skipping track")
		b.advance(s)
		return
	}

	s.gen = s.sink.Play(res)
	s.current, s.prev = &next, nil
	if !next.Replay {
		b.store.RecordPlayed(s.guildID, next.Track)
	}
	s.log.Info().Str("title", next.Track.Title).Uint64("gen", s.gen).Msg("Now playing")
	b.hooks.TrackStarted(s.guildID, s.textChannelID, next.Track)
}

func (b *Backend) onSinkEvent(guildID, sessionID string, ev stream.Event) {
	s, ok := b.lookup(guildID)
	if !ok || s.id != sessionID || s.current == nil || ev.Gen != s.gen {
		return
	}

	reason := playback.EndFinished
	switch {
	case s.stopping:
		reason = playback.EndStopped
	case s.skipping:
		reason = playback.EndSkipped
	case ev.Type == stream.EventError:
		reason = playback.EndFailed
		s.log.Warn().Err(ev.Err).Str("title", s.current.Track.Title).Msg("Stream failed, advancing")
	}
	s.stopping, s.skipping = false, false

	s.pending = playback.Requeue(s.pending, *s.current, b.store.RepeatMode(guildID), reason)
	b.advance(s)
}

// Destroy tears the session down. Disconnect errors are logged only.
func (b *Backend) Destroy(_ context.Context, guildID string) {
	b.mu.Lock()
	s, ok := b.sessions[guildID]
	delete(b.sessions, guildID)
	b.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	s.sink.Close()
	if err := s.conn.Disconnect(); err != nil {
		s.log.Warn().Err(err).Msg("Voice disconnect failed")
	}
	s.current, s.prev, s.loading = nil, nil, nil
	s.pending = nil
	s.log.Info().Msg("Local session destroyed")
}

type nopHooks struct{}

func (nopHooks) StartInactivityTimer(string)              {}
func (nopHooks) ClearInactivityTimer(string)              {}
func (nopHooks) TrackStarted(string, string, track.Track) {}
func (nopHooks) QueueEnded(string, string)                {}
