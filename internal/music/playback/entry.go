package playback

import (
	"nabra/internal/music/queue"
	"nabra/internal/music/track"
)

// Entry is a queued track plus how it got into the queue.
type Entry struct {
	Track track.Track
	// Replay entries come from history and are not recorded again.
	Replay bool
	// Forced entries bypass the consecutive duplicate guard.
	Forced bool
}

// Entries wraps fresh tracks.
func Entries(ts []track.Track) []Entry {
	out := make([]Entry, len(ts))
	for i, t := range ts {
		out[i] = Entry{Track: t}
	}
	return out
}

// Tracks unwraps entries.
func Tracks(es []Entry) []track.Track {
	out := make([]track.Track, len(es))
	for i, e := range es {
		out[i] = e.Track
	}
	return out
}

// EndReason says how a track stopped, for repeat handling.
type EndReason int

const (
	EndFinished EndReason = iota
	EndSkipped
	EndFailed
	EndStopped
)

// Requeue applies the repeat mode to a track that just ended and returns
// the new pending list. TRACK replays it next unless it was skipped or
// failed; QUEUE appends it unless it failed; stopping never requeues.
func Requeue(pending []Entry, finished Entry, mode queue.RepeatMode, reason EndReason) []Entry {
	if reason == EndStopped || reason == EndFailed {
		return pending
	}
	switch mode {
	case queue.RepeatTrack:
		if reason == EndSkipped {
			return pending
		}
		again := Entry{Track: finished.Track, Replay: true, Forced: true}
		return append([]Entry{again}, pending...)
	case queue.RepeatQueue:
		return append(pending, Entry{Track: finished.Track, Forced: true})
	}
	return pending
}

// IsDuplicate reports whether next would replay the current URI back to back.
func IsDuplicate(current *Entry, next Entry) bool {
	if current == nil || next.Forced || next.Track.URI == "" {
		return false
	}
	return current.Track.URI == next.Track.URI
}
