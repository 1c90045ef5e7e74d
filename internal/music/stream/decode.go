package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strconv"
	"sync"
)

// decode starts ffmpeg reading src on stdin and returns its s16le PCM stdout.
func (e *Extractor) decode(ctx context.Context, src io.Reader) (*exec.Cmd, io.ReadCloser, error) {
	ffmpeg := exec.CommandContext(ctx, e.ffmpegPath,
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
	ffmpeg.Stdin = src
	ffmpeg.Stderr = newTailBuffer(2048)

	reader, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %v", ErrDecoderMissing, err)
		}
		return nil, nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return ffmpeg, reader, nil
}

// tailBuffer keeps the last n bytes written to it, for error messages.
type tailBuffer struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func newTailBuffer(n int) *tailBuffer { return &tailBuffer{n: n} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
