package fallback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nabra/internal/music/playback"
	"nabra/internal/music/queue"
	"nabra/internal/music/stream"
	"nabra/internal/music/track"
)

// session is only touched from its guild lane.
type session struct {
	b             *Backend
	id            string
	guildID       string
	textChannelID string
	conn          Conn
	sink          Sink
	ctx           context.Context
	cancel        context.CancelFunc
	log           zerolog.Logger

	pending []playback.Entry
	current *playback.Entry
	gen     uint64
	volume  int

	// loading is the entry being extracted; it counts as current for
	// listings. prev is the last entry played while the next one loads.
	loading *playback.Entry
	loadSeq uint64
	prev    *playback.Entry

	skipping bool
	stopping bool
}

var _ playback.Session = (*session)(nil)

func (s *session) ID() string                      { return s.id }
func (s *session) GuildID() string                 { return s.guildID }
func (s *session) Kind() playback.Kind             { return playback.KindFallback }
func (s *session) VoiceChannelID() string          { return s.conn.ChannelID() }
func (s *session) TextChannelID() string           { return s.textChannelID }
func (s *session) Connection() playback.Connection { return playback.Connected }
func (s *session) Upcoming() []track.Track         { return playback.Tracks(s.pending) }
func (s *session) Volume() int                     { return s.volume }

func (s *session) Seek(context.Context, time.Duration) error {
	return playback.ErrSeekUnsupported
}

func (s *session) idle() bool { return s.current == nil && s.loading == nil }

// last is the entry that played most recently, for the duplicate guard.
func (s *session) last() *playback.Entry {
	if s.current != nil {
		return s.current
	}
	return s.prev
}

// abortLoad abandons the extraction in flight; its result is dropped.
func (s *session) abortLoad() {
	if s.loading != nil {
		s.loading = nil
		s.loadSeq++
	}
}

func (s *session) State() playback.State {
	if s.idle() {
		return playback.StateIdle
	}
	if s.current == nil {
		return playback.StatePlaying
	}
	if s.sink.Status() == stream.StatusPaused {
		return playback.StatePaused
	}
	return playback.StatePlaying
}

func (s *session) Current() *track.Track {
	e := s.current
	if e == nil {
		e = s.loading
	}
	if e == nil {
		return nil
	}
	t := e.Track
	return &t
}

func (s *session) Position() time.Duration {
	if s.current == nil {
		return 0
	}
	return s.sink.Position()
}

func (s *session) Pause(context.Context) error {
	s.sink.Pause()
	return nil
}

func (s *session) Resume(context.Context) error {
	s.sink.Resume()
	return nil
}

// Stop only signals the sink; its idle event runs advance on an empty queue.
func (s *session) Stop(context.Context) error {
	s.pending = nil
	switch {
	case s.current != nil:
		s.stopping = true
		s.sink.Stop()
	case s.loading != nil:
		s.abortLoad()
		s.b.advance(s)
	}
	return nil
}

// Skip only signals the sink; its idle event drives advance. A track still
// loading is abandoned instead.
func (s *session) Skip(context.Context) error {
	switch {
	case s.current != nil:
		s.skipping = true
		s.sink.Stop()
	case s.loading != nil:
		s.abortLoad()
		s.b.advance(s)
	}
	return nil
}

func (s *session) Clear() {
	s.pending = nil
}

func (s *session) Shuffle() {
	s.pending = queue.Shuffle(s.pending)
}

func (s *session) Jump(ctx context.Context, position int) error {
	if position < 1 || position > len(s.pending) {
		return playback.ErrOutOfRange
	}
	s.pending = s.pending[position-1:]
	if s.current == nil {
		s.abortLoad()
		s.b.advance(s)
		return nil
	}
	return s.Skip(ctx)
}

func (s *session) SetVolume(_ context.Context, pct int) error {
	if !playback.ValidVolume(pct) {
		return playback.ErrVolumeRange
	}
	s.volume = pct
	s.sink.SetVolume(pct)
	return nil
}

func (s *session) Replay(ctx context.Context, t track.Track) error {
	s.pending = append([]playback.Entry{{Track: t, Replay: true, Forced: true}}, s.pending...)
	if s.current == nil {
		s.abortLoad()
		s.b.advance(s)
		return nil
	}
	return s.Skip(ctx)
}
