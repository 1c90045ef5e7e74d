// Package stream turns a source locator into Opus frames for a voice
// connection: yt-dlp extracts, a mimetype probe checks the bytes, ffmpeg
// decodes to PCM and Player encodes and sends.
package stream

import (
	"errors"
	"io"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz

	// pcmFrameBytes is one 20ms stereo s16le frame.
	pcmFrameBytes = frameSize * channels * 2
)

var (
	// ErrExtractorMissing means the extraction binary could not be spawned at all.
	ErrExtractorMissing = errors.New("extractor executable not found")
	// ErrDecoderMissing means ffmpeg could not be spawned.
	ErrDecoderMissing = errors.New("decoder executable not found")
	// ErrNotAudio is returned by the probe when the extractor wrote something
	// that is not a media stream (an HTML error page, a JSON blob, nothing).
	ErrNotAudio = errors.New("extractor output is not an audio stream")
)

// Resource is a readable PCM stream whose Close releases every process behind it.
type Resource interface {
	io.Reader
	Close() error
}

// Status is the sink's transport state.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	}
	return "idle"
}

// EventType distinguishes sink notifications.
type EventType int

const (
	// EventIdle is emitted once a resource ends normally or is stopped.
	EventIdle EventType = iota
	// EventError is emitted instead of EventIdle when reading or sending fails.
	EventError
)

// Event is emitted exactly once per Play call, tagged with its generation.
type Event struct {
	Type EventType
	Gen  uint64
	Err  error
}
