package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"nabra/internal/music/track"
)

const (
	audioFormat         = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio"
	defaultProbeTimeout = 30 * time.Second
	exitWait            = 2 * time.Second
)

// ExtractorOptions configures NewExtractor. Empty paths resolve on PATH.
type ExtractorOptions struct {
	YtdlpPath    string
	FfmpegPath   string
	Proxy        string
	ProbeTimeout time.Duration
}

// Extractor spawns yt-dlp for a locator, probes its output and pipes it
// through ffmpeg.
type Extractor struct {
	ytdlpPath    string
	ffmpegPath   string
	proxy        string
	probeTimeout time.Duration
	log          zerolog.Logger
}

func NewExtractor(opts ExtractorOptions, log zerolog.Logger) *Extractor {
	e := &Extractor{
		ytdlpPath:    opts.YtdlpPath,
		ffmpegPath:   opts.FfmpegPath,
		proxy:        opts.Proxy,
		probeTimeout: opts.ProbeTimeout,
		log:          log.With().Str("component", "extractor").Logger(),
	}
	if e.ffmpegPath == "" {
		e.ffmpegPath = "ffmpeg"
	}
	if e.probeTimeout <= 0 {
		e.probeTimeout = defaultProbeTimeout
	}
	return e
}

// YtdlpCommand builds a yt-dlp invocation honouring the configured
// executable and proxy. Search code shares it.
func (e *Extractor) YtdlpCommand(ctx context.Context, configure func(*ytdlp.Command), args ...string) *exec.Cmd {
	b := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if e.proxy != "" {
		b.Proxy(e.proxy)
	}
	if configure != nil {
		configure(b)
	}

	cmd := b.BuildCommand(ctx, args...)
	if e.ytdlpPath != "" && e.ytdlpPath != "yt-dlp" {
		path, err := exec.LookPath(e.ytdlpPath)
		cmd.Path = path
		cmd.Args[0] = e.ytdlpPath
		cmd.Err = err
	}
	return cmd
}

// Open spawns the extraction for loc. The returned Resource lives until it
// is closed or ctx ends. A binary that cannot be spawned yields an error
// wrapping ErrExtractorMissing.
func (e *Extractor) Open(ctx context.Context, loc track.Locator) (Resource, error) {
	ctx, cancel := context.WithCancel(ctx)

	yt := e.YtdlpCommand(ctx, func(c *ytdlp.Command) {
		c.Format(audioFormat).
			Output("-").
			NoPlaylist().
			NoPart().
			NoCheckFormats()
	}, "--extractor-args", "youtube:player_client=android,web", string(loc))
	yt.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	ytErr := newTailBuffer(2048)
	yt.Stderr = ytErr

	// an explicit pipe so Wait on yt-dlp never closes the read side under ffmpeg
	pr, pw, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	yt.Stdout = pw

	if err := yt.Start(); err != nil {
		cancel()
		pr.Close()
		pw.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrExtractorMissing, err)
		}
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}
	pw.Close()

	ytDone := make(chan error, 1)
	go func() { ytDone <- yt.Wait() }()

	fail := func(err error) (Resource, error) {
		cancel()
		pr.Close()
		<-ytDone
		if tail := strings.TrimSpace(ytErr.String()); tail != "" {
			return nil, fmt.Errorf("%w (yt-dlp: %s)", err, tail)
		}
		return nil, err
	}

	src := bufio.NewReaderSize(pr, 64<<10)
	mt, err := probeWithin(ctx, src, e.probeTimeout)
	if err != nil {
		return fail(fmt.Errorf("probe %s: %w", loc, err))
	}
	e.log.Debug().Str("locator", string(loc)).Str("mime", mt.String()).Msg("Probed extractor output")

	ffmpeg, pcm, err := e.decode(ctx, src)
	if err != nil {
		return fail(err)
	}

	return &resource{
		pcm:    pcm,
		pipe:   pr,
		cancel: cancel,
		ctx:    ctx,
		ffmpeg: ffmpeg,
		ytDone: ytDone,
		ytErr:  ytErr,
	}, nil
}

// resource owns both processes of one extraction.
type resource struct {
	pcm    io.ReadCloser
	pipe   *os.File
	cancel context.CancelFunc
	ctx    context.Context
	ffmpeg *exec.Cmd
	ytDone chan error
	ytErr  *tailBuffer

	once     sync.Once
	exitOnce sync.Once
	exitErr  error
}

// Read surfaces a non-zero yt-dlp exit in place of a clean EOF, so a
// truncated download is reported as a stream error.
func (r *resource) Read(p []byte) (int, error) {
	n, err := r.pcm.Read(p)
	if errors.Is(err, io.EOF) {
		if exit := r.extractorExit(); exit != nil {
			return n, exit
		}
	}
	return n, err
}

func (r *resource) extractorExit() error {
	r.exitOnce.Do(func() {
		select {
		case err := <-r.ytDone:
			if err != nil && r.ctx.Err() == nil {
				r.exitErr = fmt.Errorf("yt-dlp exited: %w (%s)", err, strings.TrimSpace(r.ytErr.String()))
			}
		case <-time.After(exitWait):
		}
	})
	return r.exitErr
}

func (r *resource) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.pipe.Close()
		_ = r.ffmpeg.Wait()
		r.exitOnce.Do(func() { <-r.ytDone })
	})
	return nil
}
