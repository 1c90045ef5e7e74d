package remote

import (
	"context"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/rs/zerolog"

	"nabra/internal/music/playback"
	"nabra/internal/music/queue"
	"nabra/internal/music/track"
)

// session is only touched from its guild lane.
type session struct {
	b              *Backend
	id             string
	guildID        string
	voiceChannelID string
	textChannelID  string
	player         Player
	log            zerolog.Logger

	pending []playback.Entry
	current *playback.Entry
	encoded string
	started bool
	volume  int
}

var _ playback.Session = (*session)(nil)

func (s *session) ID() string                      { return s.id }
func (s *session) GuildID() string                 { return s.guildID }
func (s *session) Kind() playback.Kind             { return playback.KindRemote }
func (s *session) VoiceChannelID() string          { return s.voiceChannelID }
func (s *session) TextChannelID() string           { return s.textChannelID }
func (s *session) Connection() playback.Connection { return playback.Connected }
func (s *session) Upcoming() []track.Track         { return playback.Tracks(s.pending) }
func (s *session) Volume() int                     { return s.volume }

func (s *session) State() playback.State {
	switch {
	case s.current == nil:
		return playback.StateIdle
	case s.player.Paused():
		return playback.StatePaused
	}
	return playback.StatePlaying
}

func (s *session) Current() *track.Track {
	if s.current == nil {
		return nil
	}
	t := s.current.Track
	return &t
}

func (s *session) Position() time.Duration {
	if s.current == nil {
		return 0
	}
	return time.Duration(s.player.Position()) * time.Millisecond
}

func (s *session) Pause(ctx context.Context) error {
	return s.player.Update(ctx, lavalink.WithPaused(true))
}

func (s *session) Resume(ctx context.Context) error {
	return s.player.Update(ctx, lavalink.WithPaused(false))
}

func (s *session) Stop(ctx context.Context) error {
	s.pending = nil
	if s.current == nil {
		return nil
	}
	s.current = nil
	s.encoded = ""
	if err := s.player.Update(ctx, lavalink.WithNullTrack()); err != nil {
		return err
	}
	s.b.hooks.StartInactivityTimer(s.guildID)
	return nil
}

// Skip moves on at once. The node answers with a replaced end event that
// onTrackEnd ignores, so TRACK repeat never catches a skip.
func (s *session) Skip(ctx context.Context) error {
	if s.current == nil {
		return nil
	}
	s.pending = playback.Requeue(s.pending, *s.current, s.b.store.RepeatMode(s.guildID), playback.EndSkipped)
	s.b.advance(ctx, s)
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
		s.b.advance(ctx, s)
		return nil
	}
	return s.Skip(ctx)
}

func (s *session) Seek(ctx context.Context, pos time.Duration) error {
	if s.current == nil {
		return playback.ErrNothingPlaying
	}
	if s.current.Track.IsLive {
		return playback.ErrSeekUnsupported
	}
	if pos < 0 {
		pos = 0
	}
	if d := s.current.Track.Duration; d > 0 && pos > d {
		pos = d
	}
	return s.player.Update(ctx, lavalink.WithPosition(lavalink.Duration(pos.Milliseconds())))
}

func (s *session) SetVolume(ctx context.Context, pct int) error {
	if !playback.ValidVolume(pct) {
		return playback.ErrVolumeRange
	}
	if err := s.player.Update(ctx, lavalink.WithVolume(pct)); err != nil {
		return err
	}
	s.volume = pct
	return nil
}

func (s *session) Replay(ctx context.Context, t track.Track) error {
	if _, ok := t.Lavalink(); !ok {
		return ErrForeignTrack
	}
	s.pending = append([]playback.Entry{{Track: t, Replay: true, Forced: true}}, s.pending...)
	if s.current == nil {
		s.b.advance(ctx, s)
		return nil
	}
	return s.Skip(ctx)
}
