// Package playback is the contract shared by the player facade and the two
// backends. Session methods must only be called from the guild's event
// lane; Snapshot is the value callers outside the lane work with.
package playback

import (
	"context"
	"errors"
	"time"

	"nabra/internal/music/queue"
	"nabra/internal/music/track"
)

var (
	ErrSeekUnsupported = errors.New("seeking is not supported while playing locally")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrOutOfRange      = errors.New("position is outside the queue")
	ErrVolumeRange     = errors.New("volume must be between 0 and 200")
)

// Kind identifies a backend.
type Kind int

const (
	KindRemote Kind = iota
	KindFallback
)

func (k Kind) String() string {
	if k == KindFallback {
		return "fallback"
	}
	return "remote"
}

// State is the play state of a session.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "idle"
}

// Connection is the voice connection state of a session.
type Connection int

const (
	Disconnected Connection = iota
	Connecting
	Connected
)

func (c Connection) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Request asks a backend to queue tracks for a guild.
type Request struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Tracks         []track.Track
}

// EnqueueResult reports where the first requested track landed.
type EnqueueResult struct {
	// Started is true when the first requested track began playing at once.
	Started bool
	// Position is the 1-based queue position of the first track when not started.
	Position int
}

// Hooks are the facade callbacks backends invoke from the guild lane.
type Hooks interface {
	StartInactivityTimer(guildID string)
	ClearInactivityTimer(guildID string)
	TrackStarted(guildID, textChannelID string, t track.Track)
	QueueEnded(guildID, textChannelID string)
}

// Session is one guild's live playback context.
type Session interface {
	ID() string
	GuildID() string
	Kind() Kind
	VoiceChannelID() string
	TextChannelID() string
	Connection() Connection
	State() State
	Current() *track.Track
	Upcoming() []track.Track
	Position() time.Duration
	Volume() int

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	// Stop clears the upcoming tracks and ends the current one; the
	// session stays connected.
	Stop(ctx context.Context) error
	Skip(ctx context.Context) error
	Clear()
	Shuffle()
	// Jump drops upcoming tracks before the 1-based position and plays it.
	Jump(ctx context.Context, position int) error
	Seek(ctx context.Context, pos time.Duration) error
	SetVolume(ctx context.Context, pct int) error
	// Replay plays t next, ahead of the queue, without recording it again.
	Replay(ctx context.Context, t track.Track) error
}

// Backend is one playback implementation. Every method except Kind,
// Has and GuildIDs must run in the guild lane.
type Backend interface {
	Kind() Kind
	SetHooks(h Hooks)
	Has(guildID string) bool
	GuildIDs() []string
	Session(guildID string) (Session, bool)
	Enqueue(ctx context.Context, req Request) (EnqueueResult, error)
	// Destroy releases the guild session; cleanup errors are logged, not returned.
	Destroy(ctx context.Context, guildID string)
}

// Snapshot is a copy of session state safe to use outside the lane.
type Snapshot struct {
	SessionID      string
	GuildID        string
	Kind           Kind
	VoiceChannelID string
	TextChannelID  string
	Connection     Connection
	State          State
	Current        *track.Track
	Upcoming       []track.Track
	Position       time.Duration
	Volume         int
	Repeat         queue.RepeatMode
}

// Snap copies s. It must run in the guild lane.
func Snap(s Session, repeat queue.RepeatMode) Snapshot {
	snap := Snapshot{
		SessionID:      s.ID(),
		GuildID:        s.GuildID(),
		Kind:           s.Kind(),
		VoiceChannelID: s.VoiceChannelID(),
		TextChannelID:  s.TextChannelID(),
		Connection:     s.Connection(),
		State:          s.State(),
		Upcoming:       s.Upcoming(),
		Position:       s.Position(),
		Volume:         s.Volume(),
		Repeat:         repeat,
	}
	if cur := s.Current(); cur != nil {
		c := *cur
		snap.Current = &c
	}
	return snap
}

// ValidVolume reports whether pct is an accepted volume.
func ValidVolume(pct int) bool {
	return pct >= 0 && pct <= 200
}
