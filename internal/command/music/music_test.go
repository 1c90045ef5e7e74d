package music

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"nabra/internal/music/playback"
	"nabra/internal/music/player"
	"nabra/internal/music/queue"
	"nabra/internal/music/track"
	"nabra/pkg/cmd"
	"nabra/pkg/jobmgr"
)

func tracks(n int) []track.Track {
	out := make([]track.Track, n)
	for i := range out {
		out[i] = track.Track{Title: "t" + string(rune('a'+i%26)), Duration: time.Minute}
	}
	return out
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pos, dur time.Duration
		filled   int
	}{
		{0, time.Minute, 0},
		{30 * time.Second, time.Minute, 10},
		{time.Minute, time.Minute, 20},
		{2 * time.Minute, time.Minute, 20},
		{time.Second, 0, 0},
	}
	for _, tt := range tests {
		bar := ProgressBar(tt.pos, tt.dur)
		left, _, ok := strings.Cut(bar, "🔘")
		if !ok {
			t.Fatalf("bar %q has no knob", bar)
		}
		if got := strings.Count(left, "▬"); got != tt.filled {
			t.Errorf("ProgressBar(%v, %v) filled %d, want %d", tt.pos, tt.dur, got, tt.filled)
		}
		if got := strings.Count(bar, "▬"); got != progressLength {
			t.Errorf("ProgressBar(%v, %v) length %d, want %d", tt.pos, tt.dur, got, progressLength)
		}
	}
}

func TestQueuePages(t *testing.T) {
	for n, want := range map[int]int{0: 1, 1: 1, 10: 1, 11: 2, 25: 3} {
		if got := QueuePages(n); got != want {
			t.Errorf("QueuePages(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestQueueEmbedClampsPage(t *testing.T) {
	snap := playback.Snapshot{Current: &track.Track{Title: "now"}, Upcoming: tracks(15), Repeat: queue.RepeatQueue}

	_, page := QueueEmbed(snap, 9)
	if page != 1 {
		t.Fatalf("page = %d, want 1", page)
	}
	e, page := QueueEmbed(snap, -3)
	if page != 0 {
		t.Fatalf("page = %d, want 0", page)
	}
	if !strings.Contains(e.Footer.Text, "Page 1/2") || !strings.Contains(e.Footer.Text, "Repeat: queue") {
		t.Errorf("footer = %q", e.Footer.Text)
	}
	if got := e.Fields[1].Value; !strings.HasPrefix(got, "**1.**") || strings.Contains(got, "**11.**") {
		t.Errorf("first page lists %q", got)
	}
}

func TestQueueEmbedEmpty(t *testing.T) {
	e, _ := QueueEmbed(playback.Snapshot{}, 0)
	if len(e.Fields) != 1 || e.Fields[0].Value != "No tracks in queue" {
		t.Fatalf("fields = %+v", e.Fields)
	}
	if queueButtons(0, 1) != nil {
		t.Error("single page should have no pager")
	}
}

func TestPlayResultEmbed(t *testing.T) {
	tr := track.Track{Title: "song", URI: "https://example.com/a", Duration: 90 * time.Second}
	tests := []struct {
		res   player.PlayResult
		title string
	}{
		{player.PlayResult{Track: tr}, "🎶 Now Playing"},
		{player.PlayResult{Track: tr, QueuePosition: 3}, "➕ Added to Queue"},
		{player.PlayResult{Track: tr, PlaylistSize: 12, PlaylistName: "mix", Backend: playback.KindFallback}, "📃 Playlist Added"},
	}
	for _, tt := range tests {
		e := PlayResultEmbed(&tt.res)
		if e.Title != tt.title {
			t.Errorf("title = %q, want %q", e.Title, tt.title)
		}
		if e.Footer.Text != "Backend: "+tt.res.Backend.String() {
			t.Errorf("footer = %q", e.Footer.Text)
		}
	}
}

type stubSession struct {
	playback.Session
	kind    playback.Kind
	current *track.Track
	pos     time.Duration
}

func (s *stubSession) Kind() playback.Kind     { return s.kind }
func (s *stubSession) Current() *track.Track   { return s.current }
func (s *stubSession) Position() time.Duration { return s.pos }

func TestForwardTarget(t *testing.T) {
	song := &track.Track{Title: "song", Duration: 3 * time.Minute}
	stream := &track.Track{Title: "radio", IsLive: true}

	tests := []struct {
		name string
		s    *stubSession
		d    time.Duration
		want time.Duration
		err  error
	}{
		{"forward", &stubSession{current: song, pos: time.Minute}, 30 * time.Second, 90 * time.Second, nil},
		{"past end", &stubSession{current: song, pos: 170 * time.Second}, 10 * time.Second, 0, errPastEnd},
		{"live", &stubSession{current: stream}, time.Second, 0, errLiveTrack},
		{"idle", &stubSession{}, time.Second, 0, playback.ErrNothingPlaying},
		{"fallback", &stubSession{kind: playback.KindFallback, current: song}, time.Second, 0, playback.ErrSeekUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := forwardTarget(tt.s, tt.d)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("target = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribeUserErrors(t *testing.T) {
	if got := describe(errTooFewToShuffle); got != string(errTooFewToShuffle) {
		t.Errorf("describe = %q", got)
	}
	if got := describe(player.ErrNoPlayer); got != player.Describe(player.ErrNoPlayer) {
		t.Errorf("describe = %q", got)
	}
}

func TestRegisterAll(t *testing.T) {
	r := cmd.NewRegistry()
	if err := Register(r, &Deps{}); err != nil {
		t.Fatal(err)
	}
	if got := len(r.GetAll()); got != 17 {
		t.Fatalf("registered %d commands, want 17", got)
	}
	if err := Register(r, &Deps{}); err == nil {
		t.Fatal("registering twice should fail")
	}
}

type fakeSource struct {
	mu   sync.Mutex
	snap playback.Snapshot
	ok   bool
}

func (f *fakeSource) GetPlayer(context.Context, string) (playback.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.ok
}

func (f *fakeSource) set(ok bool) {
	f.mu.Lock()
	f.ok = ok
	f.mu.Unlock()
}

type fakeEditor struct {
	mu    sync.Mutex
	edits []*discordgo.MessageEmbed
	comps []int
}

func (f *fakeEditor) EditDisplay(_, _ string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, embed)
	f.comps = append(f.comps, len(components))
	return nil
}

func (f *fakeEditor) last() (*discordgo.MessageEmbed, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return nil, 0, 0
	}
	return f.edits[len(f.edits)-1], f.comps[len(f.comps)-1], len(f.edits)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newLive(src SnapshotSource, ed MessageEditor) *LiveDisplays {
	l := NewLiveDisplays(jobmgr.NewManager(zerolog.Nop()), src, ed, zerolog.Nop())
	l.interval = 5 * time.Millisecond
	return l
}

func TestLiveDisplayUpdatesUntilStopped(t *testing.T) {
	src := &fakeSource{snap: playback.Snapshot{Current: &track.Track{Title: "song", Duration: time.Minute}}, ok: true}
	ed := &fakeEditor{}
	l := newLive(src, ed)

	l.Start("g1", "c1", "m1")
	waitFor(t, func() bool { _, _, n := ed.last(); return n >= 2 })

	e, comps, _ := ed.last()
	if e.Title != "🔴 Live Now Playing" || comps != 1 {
		t.Fatalf("live edit = %q with %d rows", e.Title, comps)
	}

	if !l.Stop("g1") {
		t.Fatal("Stop reported no display")
	}
	waitFor(t, func() bool {
		e, _, _ := ed.last()
		return e.Description == "⏹️ Live update stopped"
	})
	if _, comps, _ := ed.last(); comps != 0 {
		t.Error("stopped display still has buttons")
	}
	if l.Stop("g1") {
		t.Error("second Stop should report nothing running")
	}
}

func TestLiveDisplayEndsWithPlayback(t *testing.T) {
	src := &fakeSource{snap: playback.Snapshot{Current: &track.Track{Title: "song"}}, ok: true}
	ed := &fakeEditor{}
	l := newLive(src, ed)

	l.Start("g1", "c1", "m1")
	waitFor(t, func() bool { _, _, n := ed.last(); return n >= 1 })
	src.set(false)

	waitFor(t, func() bool { return !l.Running("g1") })
	e, comps, _ := ed.last()
	if e.Description != "⏹️ Playback ended" || comps != 0 {
		t.Fatalf("final edit = %q with %d rows", e.Description, comps)
	}
}

func TestLiveDisplayMaxAge(t *testing.T) {
	src := &fakeSource{snap: playback.Snapshot{Current: &track.Track{Title: "song"}}, ok: true}
	ed := &fakeEditor{}
	l := newLive(src, ed)
	l.maxAge = 30 * time.Millisecond

	l.Start("g1", "c1", "m1")
	waitFor(t, func() bool { return !l.Running("g1") })
	if e, _, _ := ed.last(); e.Description != "⏹️ Live update stopped" {
		t.Fatalf("final edit = %q", e.Description)
	}
}
