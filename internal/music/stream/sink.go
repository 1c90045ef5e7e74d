package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"layeh.com/gopus"
)

// VoiceConn is the transport a Player writes Opus frames to.
type VoiceConn interface {
	Speaking(bool) error
	SendOpus(ctx context.Context, frame []byte) error
}

// Encoder turns one PCM frame into Opus.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// NewOpusEncoder returns the libopus encoder used in production.
func NewOpusEncoder() (Encoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}
	return enc, nil
}

// Player plays one Resource at a time on a voice connection. Every Play
// yields exactly one Event for its generation; events of superseded
// generations are still delivered and must be ignored by the receiver.
type Player struct {
	conn       VoiceConn
	onEvent    func(Event)
	newEncoder func() (Encoder, error)
	log        zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	status Status
	cancel context.CancelFunc
	res    *onceCloser
	resume chan struct{} // non-nil while paused
	closed bool

	frames atomic.Int64
	volume atomic.Int32
}

// NewPlayer creates an idle player. onEvent is called from the playback
// goroutine and must not block.
func NewPlayer(conn VoiceConn, onEvent func(Event), log zerolog.Logger) *Player {
	p := &Player{
		conn:       conn,
		onEvent:    onEvent,
		newEncoder: NewOpusEncoder,
		log:        log.With().Str("component", "sink").Logger(),
	}
	p.volume.Store(100)
	return p
}

// WithEncoder swaps the Opus encoder factory.
func (p *Player) WithEncoder(f func() (Encoder, error)) *Player {
	p.newEncoder = f
	return p
}

// Play stops whatever is playing and starts res, returning its generation.
func (p *Player) Play(res Resource) uint64 {
	rc := &onceCloser{Resource: res}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		rc.Close()
		return 0
	}
	prev := p.stopLocked()
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.res = rc
	p.resume = nil
	p.status = StatusPlaying
	p.frames.Store(0)
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go p.run(ctx, gen, rc)
	return gen
}

// Stop ends the current resource; its generation reports EventIdle.
func (p *Player) Stop() {
	p.mu.Lock()
	prev := p.stopLocked()
	p.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (p *Player) stopLocked() *onceCloser {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	prev := p.res
	p.cancel = nil
	p.res = nil
	p.resume = nil
	p.status = StatusIdle
	return prev
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPlaying {
		return
	}
	p.status = StatusPaused
	p.resume = make(chan struct{})
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPaused {
		return
	}
	close(p.resume)
	p.resume = nil
	p.status = StatusPlaying
}

func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Position is the playback time of the current resource.
func (p *Player) Position() time.Duration {
	return time.Duration(p.frames.Load()) * 20 * time.Millisecond
}

// SetVolume scales output, 100 being unchanged. Values are clamped to 0..200.
func (p *Player) SetVolume(pct int) {
	pct = max(0, min(pct, 200))
	p.volume.Store(int32(pct))
}

// Close stops playback for good; no further events are delivered.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	prev := p.stopLocked()
	p.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (p *Player) run(ctx context.Context, gen uint64, res *onceCloser) {
	defer res.Close()

	enc, err := p.newEncoder()
	if err != nil {
		p.finish(gen, EventError, err)
		return
	}

	_ = p.conn.Speaking(true)
	defer func() { _ = p.conn.Speaking(false) }()

	pcm := make([]byte, pcmFrameBytes)
	samples := make([]int16, frameSize*channels)

	for {
		if err := p.waitResumed(ctx); err != nil {
			p.finish(gen, EventIdle, nil)
			return
		}

		if _, err := io.ReadFull(res, pcm); err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				p.finish(gen, EventIdle, nil)
			default:
				p.finish(gen, EventError, fmt.Errorf("read error: %w", err))
			}
			return
		}

		scale(pcm, samples, p.volume.Load())

		frame, err := enc.Encode(samples, frameSize, pcmFrameBytes)
		if err != nil {
			p.finish(gen, EventError, fmt.Errorf("encode error: %w", err))
			return
		}

		if err := p.conn.SendOpus(ctx, frame); err != nil {
			if ctx.Err() != nil {
				p.finish(gen, EventIdle, nil)
			} else {
				p.finish(gen, EventError, fmt.Errorf("send error: %w", err))
			}
			return
		}
		p.frames.Add(1)
	}
}

func (p *Player) waitResumed(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resume
	p.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) finish(gen uint64, typ EventType, err error) {
	p.mu.Lock()
	if p.gen == gen && p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.res = nil
		p.resume = nil
		p.status = StatusIdle
	}
	closed := p.closed
	p.mu.Unlock()

	if err != nil {
		p.log.Warn().Err(err).Uint64("gen", gen).Msg("Playback ended with error")
	}
	if !closed && p.onEvent != nil {
		p.onEvent(Event{Type: typ, Gen: gen, Err: err})
	}
}

// scale decodes little-endian samples from pcm into out applying volume.
func scale(pcm []byte, out []int16, vol int32) {
	for i := range out {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		if vol != 100 {
			s = s * vol / 100
			if s > 32767 {
				s = 32767
			} else if s < -32768 {
				s = -32768
			}
		}
		out[i] = int16(s)
	}
}

type onceCloser struct {
	Resource
	once sync.Once
}

func (c *onceCloser) Close() error {
	var err error
	c.once.Do(func() { err = c.Resource.Close() })
	return err
}
