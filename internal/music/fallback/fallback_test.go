package fallback

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nabra/internal/music/eventloop"
	"nabra/internal/music/playback"
	"nabra/internal/music/queue"
	"nabra/internal/music/stream"
	"nabra/internal/music/track"
)

const guild = "g1"

type fakeConn struct {
	channel      string
	disconnected bool
}

func (c *fakeConn) ChannelID() string                      { return c.channel }
func (c *fakeConn) Disconnect() error                      { c.disconnected = true; return nil }
func (c *fakeConn) Speaking(bool) error                    { return nil }
func (c *fakeConn) SendOpus(context.Context, []byte) error { return nil }

type fakeTransport struct {
	mu    sync.Mutex
	joins int
	conn  *fakeConn
	err   error
}

func (f *fakeTransport) Join(_ context.Context, _, channelID string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.joins++
	f.conn = &fakeConn{channel: channelID}
	return f.conn, nil
}

type fakeResource struct {
	io.Reader
	loc    track.Locator
	closed *atomic.Int32
}

func (r fakeResource) Close() error {
	r.closed.Add(1)
	return nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	opened []track.Locator
	fail   map[track.Locator]error
	closed atomic.Int32

	// gate, when set, holds every Open until it is closed
	gate chan struct{}
}

func (f *fakeExtractor) Open(_ context.Context, loc track.Locator) (stream.Resource, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, loc)
	if err := f.fail[loc]; err != nil {
		return nil, err
	}
	return fakeResource{Reader: strings.NewReader(""), loc: loc, closed: &f.closed}, nil
}

// fakeSink plays nothing; tests end tracks with finish.
type fakeSink struct {
	onEvent func(stream.Event)
	gen     uint64
	status  stream.Status
	played  []track.Locator
	volume  int
	closed  bool
}

func (s *fakeSink) Play(res stream.Resource) uint64 {
	s.gen++
	s.status = stream.StatusPlaying
	s.played = append(s.played, res.(fakeResource).loc)
	return s.gen
}

func (s *fakeSink) Pause()  { s.status = stream.StatusPaused }
func (s *fakeSink) Resume() { s.status = stream.StatusPlaying }
func (s *fakeSink) Stop()   { s.finish(stream.EventIdle) }
func (s *fakeSink) Close()  { s.closed = true }

func (s *fakeSink) Status() stream.Status   { return s.status }
func (s *fakeSink) Position() time.Duration { return 0 }
func (s *fakeSink) SetVolume(pct int)       { s.volume = pct }

func (s *fakeSink) finish(typ stream.EventType) {
	s.status = stream.StatusIdle
	s.onEvent(stream.Event{Type: typ, Gen: s.gen})
}

type fakeHooks struct {
	mu        sync.Mutex
	timer     bool
	timerArms int
	started   []string
	ended     int
}

func (h *fakeHooks) StartInactivityTimer(string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = true
	h.timerArms++
}

func (h *fakeHooks) ClearInactivityTimer(string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = false
}

func (h *fakeHooks) TrackStarted(_, _ string, t track.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, t.Title)
}

func (h *fakeHooks) QueueEnded(string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended++
}

type harness struct {
	t         *testing.T
	loop      *eventloop.Loop
	store     *queue.Store
	transport *fakeTransport
	extractor *fakeExtractor
	hooks     *fakeHooks
	sink      *fakeSink
	backend   *Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		loop:      eventloop.New(zerolog.Nop()),
		store:     queue.NewStore(),
		transport: &fakeTransport{},
		extractor: &fakeExtractor{fail: map[track.Locator]error{}},
		hooks:     &fakeHooks{},
	}
	h.backend = New(Options{
		Loop:      h.loop,
		Store:     h.store,
		Transport: h.transport,
		Extractor: h.extractor,
		NewSink: func(_ Conn, on func(stream.Event)) Sink {
			h.sink = &fakeSink{onEvent: on}
			return h.sink
		},
	}, zerolog.Nop())
	h.backend.SetHooks(h.hooks)
	return h
}

// lane runs fn on the guild lane and then waits until no extraction is in
// flight and the follow-up events have drained.
func (h *harness) lane(fn func() error) error {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := h.loop.Run(ctx, guild, fn)
	h.settle(ctx)
	return err
}

func (h *harness) settle(ctx context.Context) {
	h.t.Helper()
	for {
		var busy bool
		err := h.loop.Run(ctx, guild, func() error {
			s, ok := h.backend.lookup(guild)
			busy = ok && s.loading != nil
			return nil
		})
		if err != nil {
			h.t.Fatalf("settle: %v", err)
		}
		if !busy {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) enqueue(tracks ...track.Track) playback.EnqueueResult {
	h.t.Helper()
	var res playback.EnqueueResult
	err := h.lane(func() error {
		var err error
		res, err = h.backend.Enqueue(context.Background(), playback.Request{
			GuildID:        guild,
			VoiceChannelID: "vc",
			TextChannelID:  "tc",
			Tracks:         tracks,
		})
		return err
	})
	if err != nil {
		h.t.Fatalf("Enqueue: %v", err)
	}
	return res
}

// endTrack lets the current track finish naturally.
func (h *harness) endTrack(typ stream.EventType) {
	h.t.Helper()
	_ = h.lane(func() error {
		h.sink.finish(typ)
		return nil
	})
}

func (h *harness) session() *session {
	h.t.Helper()
	s, ok := h.backend.lookup(guild)
	if !ok {
		h.t.Fatal("no session")
	}
	return s
}

func (h *harness) current() *track.Track {
	var cur *track.Track
	_ = h.lane(func() error {
		cur = h.session().Current()
		return nil
	})
	return cur
}

func song(name string) track.Track {
	return track.Track{Title: name, URI: "https://example.com/" + name, Payload: track.Locator("loc:" + name)}
}

func TestEnqueueStartsWhenIdle(t *testing.T) {
	h := newHarness(t)
	res := h.enqueue(song("a"))
	if !res.Started {
		t.Fatalf("result = %+v, want started", res)
	}
	if cur := h.current(); cur == nil || cur.Title != "a" {
		t.Fatalf("current = %v, want a", cur)
	}

	res = h.enqueue(song("b"), song("c"))
	if res.Started || res.Position != 1 {
		t.Fatalf("result = %+v, want position 1", res)
	}
	if h.transport.joins != 1 {
		t.Fatalf("joined %d times, want 1", h.transport.joins)
	}
	hist, _ := h.store.History(guild)
	if len(hist) != 1 || hist[0].Title != "a" {
		t.Fatalf("history = %v", hist)
	}
}

func TestEmptyAdvanceArmsTimerAndEnqueueClearsIt(t *testing.T) {
	h := newHarness(t)
	h.enqueue(song("a"))
	h.endTrack(stream.EventIdle)

	if !h.hooks.timer {
		t.Fatal("inactivity timer not started on empty queue")
	}
	if cur := h.current(); cur != nil {
		t.Fatalf("current = %v, want none", cur)
	}
	if h.hooks.ended != 1 {
		t.Fatalf("queue ended notified %d times", h.hooks.ended)
	}

	h.enqueue(song("b"))
	if h.hooks.timer {
		t.Fatal("inactivity timer still armed after enqueue")
	}
	if cur := h.current(); cur == nil || cur.Title != "b" {
		t.Fatalf("current = %v, want b", cur)
	}
	if h.transport.joins != 1 {
		t.Fatal("session was not retained while idle")
	}
}

func TestFailingTrackNeverHaltsQueue(t *testing.T) {
	h := newHarness(t)
	h.extractor.fail["loc:one"] = errors.New("exit status 1")

	h.enqueue(song("one"), song("two"), song("three"))
	if cur := h.current(); cur == nil || cur.Title != "two" {
		t.Fatalf("current = %v, want two", cur)
	}
	h.endTrack(stream.EventIdle)
	if cur := h.current(); cur == nil || cur.Title != "three" {
		t.Fatalf("current = %v, want three", cur)
	}
	h.endTrack(stream.EventIdle)

	want := []track.Locator{"loc:one", "loc:two", "loc:three"}
	if len(h.extractor.opened) != len(want) {
		t.Fatalf("opened %v, want %v", h.extractor.opened, want)
	}
	for i := range want {
		if h.extractor.opened[i] != want[i] {
			t.Fatalf("opened %v, want %v", h.extractor.opened, want)
		}
	}
	if got := strings.Join(h.hooks.started, ","); got != "two,three" {
		t.Fatalf("started = %s", got)
	}
}

func TestStreamErrorAdvances(t *testing.T) {
	h := newHarness(t)
	h.store.SetRepeatMode(guild, queue.RepeatTrack)
	h.enqueue(song("a"), song("b"))
	h.endTrack(stream.EventError)
	if cur := h.current(); cur == nil || cur.Title != "b" {
		t.Fatalf("current = %v, want b after failure", cur)
	}
}

func TestUnresolvableTrackDropped(t *testing.T) {
	h := newHarness(t)
	h.enqueue(track.Track{Title: "ghost"}, song("a"))
	if cur := h.current(); cur == nil || cur.Title != "a" {
		t.Fatalf("current = %v, want a", cur)
	}
	if len(h.extractor.opened) != 1 {
		t.Fatalf("extractor opened %v", h.extractor.opened)
	}
}

func TestDuplicateGuard(t *testing.T) {
	h := newHarness(t)
	h.enqueue(song("a"), song("a"), song("b"))
	h.endTrack(stream.EventIdle)
	if cur := h.current(); cur == nil || cur.Title != "b" {
		t.Fatalf("current = %v, want b (duplicate dropped)", cur)
	}
}

func TestStaleSinkEventIgnored(t *testing.T) {
	h := newHarness(t)
	h.enqueue(song("a"), song("b"))
	_ = h.lane(func() error {
		h.backend.onSinkEvent(guild, h.session().id, stream.Event{Type: stream.EventIdle, Gen: 99})
		return nil
	})
	if cur := h.current(); cur == nil || cur.Title != "a" {
		t.Fatalf("current = %v, stale event advanced the queue", cur)
	}
}

func TestRepeatModes(t *testing.T) {
	t.Run("track", func(t *testing.T) {
		h := newHarness(t)
		h.store.SetRepeatMode(guild, queue.RepeatTrack)
		h.enqueue(song("a"), song("b"))
		h.endTrack(stream.EventIdle)
		if cur := h.current(); cur == nil || cur.Title != "a" {
			t.Fatalf("current = %v, want a again", cur)
		}
		hist, _ := h.store.History(guild)
		if len(hist) != 1 {
			t.Fatalf("replay recorded again: %d entries", len(hist))
		}
	})
	t.Run("queue", func(t *testing.T) {
		h := newHarness(t)
		h.store.SetRepeatMode(guild, queue.RepeatQueue)
		h.enqueue(song("a"))
		h.endTrack(stream.EventIdle)
		if cur := h.current(); cur == nil || cur.Title != "a" {
			t.Fatalf("current = %v, want a looped", cur)
		}
	})
}

func TestSessionControls(t *testing.T) {
	h := newHarness(t)
	h.store.SetRepeatMode(guild, queue.RepeatQueue)
	h.enqueue(song("a"), song("b"), song("c"), song("d"))

	_ = h.lane(func() error {
		s := h.session()
		if err := s.Pause(context.Background()); err != nil {
			t.Errorf("Pause: %v", err)
		}
		if s.State() != playback.StatePaused {
			t.Errorf("state = %v, want paused", s.State())
		}
		_ = s.Resume(context.Background())
		if err := s.Seek(context.Background(), time.Second); !errors.Is(err, playback.ErrSeekUnsupported) {
			t.Errorf("Seek = %v", err)
		}
		if err := s.SetVolume(context.Background(), 250); !errors.Is(err, playback.ErrVolumeRange) {
			t.Errorf("SetVolume(250) = %v", err)
		}
		_ = s.SetVolume(context.Background(), 80)
		if h.sink.volume != 80 || s.Volume() != 80 {
			t.Errorf("volume = %d", h.sink.volume)
		}
		if err := s.Jump(context.Background(), 5); !errors.Is(err, playback.ErrOutOfRange) {
			t.Errorf("Jump(5) = %v", err)
		}
		return s.Jump(context.Background(), 2)
	})
	if cur := h.current(); cur == nil || cur.Title != "c" {
		t.Fatalf("current after jump = %v, want c", cur)
	}

	_ = h.lane(func() error { return h.session().Stop(context.Background()) })
	if cur := h.current(); cur != nil {
		t.Fatalf("current after stop = %v", cur)
	}
	if !h.hooks.timer {
		t.Fatal("timer not armed after stop")
	}
	if up := h.session().Upcoming(); len(up) != 0 {
		t.Fatalf("stop kept %d pending tracks", len(up))
	}
}

func TestReplayDoesNotRecord(t *testing.T) {
	h := newHarness(t)
	h.enqueue(song("a"), song("b"))
	_ = h.lane(func() error {
		return h.session().Replay(context.Background(), song("z"))
	})
	if cur := h.current(); cur == nil || cur.Title != "z" {
		t.Fatalf("current = %v, want z", cur)
	}
	hist, _ := h.store.History(guild)
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
}

func TestDestroyReleasesSession(t *testing.T) {
	h := newHarness(t)
	h.enqueue(song("a"))
	_ = h.lane(func() error {
		h.backend.Destroy(context.Background(), guild)
		return nil
	})
	if h.backend.Has(guild) {
		t.Fatal("session survived Destroy")
	}
	if !h.sink.closed || !h.transport.conn.disconnected {
		t.Fatal("sink or connection not released")
	}
	// second destroy is a no-op
	_ = h.lane(func() error {
		h.backend.Destroy(context.Background(), guild)
		return nil
	})
}

func TestJoinFailureLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	h.transport.err = errors.New("missing permissions")
	err := h.lane(func() error {
		_, err := h.backend.Enqueue(context.Background(), playback.Request{GuildID: guild, VoiceChannelID: "vc", Tracks: []track.Track{song("a")}})
		return err
	})
	if err == nil {
		t.Fatal("Enqueue succeeded without a voice connection")
	}
	if h.backend.Has(guild) {
		t.Fatal("session created despite join failure")
	}
}

func TestSlowExtractionKeepsLaneFree(t *testing.T) {
	h := newHarness(t)
	h.extractor.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.loop.Run(ctx, guild, func() error {
		_, err := h.backend.Enqueue(ctx, playback.Request{GuildID: guild, VoiceChannelID: "vc", Tracks: []track.Track{song("a"), song("b")}})
		return err
	})
	if err != nil {
		t.Fatalf("Enqueue blocked on extraction: %v", err)
	}

	var cur *track.Track
	var pos int
	err = h.loop.Run(ctx, guild, func() error {
		cur = h.session().Current()
		res, err := h.backend.Enqueue(ctx, playback.Request{GuildID: guild, VoiceChannelID: "vc", Tracks: []track.Track{song("c")}})
		pos = res.Position
		return err
	})
	if err != nil {
		t.Fatalf("lane blocked while extracting: %v", err)
	}
	if cur == nil || cur.Title != "a" {
		t.Fatalf("current while loading = %v, want a", cur)
	}
	if pos != 2 {
		t.Fatalf("position = %d, want 2", pos)
	}

	close(h.extractor.gate)
	h.settle(ctx)
	if got := strings.Join(h.hooks.started, ","); got != "a" {
		t.Fatalf("started = %s, want a", got)
	}
}

func TestDestroyDuringExtraction(t *testing.T) {
	h := newHarness(t)
	h.extractor.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.loop.Run(ctx, guild, func() error {
		_, err := h.backend.Enqueue(ctx, playback.Request{GuildID: guild, VoiceChannelID: "vc", Tracks: []track.Track{song("a")}})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	dctx, dcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer dcancel()
	err = h.loop.Run(dctx, guild, func() error {
		h.backend.Destroy(dctx, guild)
		return nil
	})
	if err != nil {
		t.Fatalf("Destroy waited on extraction: %v", err)
	}
	if h.backend.Has(guild) {
		t.Fatal("session survived Destroy")
	}

	close(h.extractor.gate)
	waitClosed(t, &h.extractor.closed, 1)
	if err := h.loop.Flush(ctx, guild); err != nil {
		t.Fatal(err)
	}
	if len(h.sink.played) != 0 || len(h.hooks.started) != 0 {
		t.Fatal("late extraction result played after Destroy")
	}
}

func TestSkipWhileLoadingAbandonsTrack(t *testing.T) {
	h := newHarness(t)
	h.extractor.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.loop.Run(ctx, guild, func() error {
		if _, err := h.backend.Enqueue(ctx, playback.Request{GuildID: guild, VoiceChannelID: "vc", Tracks: []track.Track{song("a"), song("b")}}); err != nil {
			return err
		}
		return h.session().Skip(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}

	close(h.extractor.gate)
	h.settle(ctx)
	if cur := h.current(); cur == nil || cur.Title != "b" {
		t.Fatalf("current = %v, want b", cur)
	}
	if got := strings.Join(h.hooks.started, ","); got != "b" {
		t.Fatalf("started = %s, want b", got)
	}
	waitClosed(t, &h.extractor.closed, 1)
}

func waitClosed(t *testing.T, closed *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for closed.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("closed %d resources, want %d", closed.Load(), want)
		}
		time.Sleep(time.Millisecond)
	}
}
