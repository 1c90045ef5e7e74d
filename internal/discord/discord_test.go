package discord

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"nabra/internal/command/music"
	"nabra/internal/music/player"
	"nabra/internal/music/track"
	"nabra/internal/storage"
	"nabra/pkg/cmd"
)

type fakePlayer struct {
	has       atomic.Bool
	destroyed atomic.Int32
	checked   atomic.Int32

	mu        sync.Mutex
	occupants []player.Occupant
}

func (p *fakePlayer) HasPlayer(string) bool { return p.has.Load() }

func (p *fakePlayer) Destroy(context.Context, string) {
	p.destroyed.Add(1)
	p.has.Store(false)
}

func (p *fakePlayer) CheckVoiceChannelMembers(_ context.Context, _ string, occ []player.Occupant) bool {
	p.checked.Add(1)
	p.mu.Lock()
	p.occupants = occ
	p.mu.Unlock()
	return false
}

type fakeLookup struct {
	botChannel string
	occupants  []player.Occupant
	unknown    bool
}

func (l fakeLookup) BotChannel(string, string) string { return l.botChannel }

func (l fakeLookup) Occupants(string, string) ([]player.Occupant, bool) {
	if l.unknown {
		return nil, false
	}
	return l.occupants, true
}

const botID = "bot"

func TestBotDisconnectDestroysOnce(t *testing.T) {
	p := &fakePlayer{}
	p.has.Store(true)
	w := newVoiceWatcher(p, fakeLookup{}, zerolog.Nop())
	w.hold = 50 * time.Millisecond

	change := voiceChange{GuildID: "g1", UserID: botID, Before: "vc"}
	w.handle(context.Background(), botID, change)
	p.has.Store(true)
	w.handle(context.Background(), botID, change)

	if got := p.destroyed.Load(); got != 1 {
		t.Fatalf("destroyed %d times within the hold, want 1", got)
	}

	time.Sleep(100 * time.Millisecond)
	w.handle(context.Background(), botID, change)
	if got := p.destroyed.Load(); got != 2 {
		t.Fatalf("destroyed %d times after the hold, want 2", got)
	}
}

func TestBotDisconnectWithoutPlayer(t *testing.T) {
	p := &fakePlayer{}
	w := newVoiceWatcher(p, fakeLookup{}, zerolog.Nop())
	w.handle(context.Background(), botID, voiceChange{GuildID: "g1", UserID: botID, Before: "vc"})
	if p.destroyed.Load() != 0 {
		t.Fatal("destroy called without a player")
	}
}

func TestBotMovedIsIgnored(t *testing.T) {
	p := &fakePlayer{}
	p.has.Store(true)
	w := newVoiceWatcher(p, fakeLookup{}, zerolog.Nop())
	w.handle(context.Background(), botID, voiceChange{GuildID: "g1", UserID: botID, Before: "vc1", After: "vc2"})
	if p.destroyed.Load() != 0 {
		t.Fatal("a move must not destroy the player")
	}
}

func TestUserLeavingChecksMembers(t *testing.T) {
	occ := []player.Occupant{{UserID: botID, Bot: true}}
	tests := []struct {
		name   string
		change voiceChange
		checks int32
	}{
		{"left bot channel", voiceChange{GuildID: "g1", UserID: "u1", Before: "vc"}, 1},
		{"moved away", voiceChange{GuildID: "g1", UserID: "u1", Before: "vc", After: "other"}, 1},
		{"joined bot channel", voiceChange{GuildID: "g1", UserID: "u1", After: "vc"}, 0},
		{"left another channel", voiceChange{GuildID: "g1", UserID: "u1", Before: "other"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{}
			w := newVoiceWatcher(p, fakeLookup{botChannel: "vc", occupants: occ}, zerolog.Nop())
			w.handle(context.Background(), botID, tt.change)
			if got := p.checked.Load(); got != tt.checks {
				t.Fatalf("checked %d times, want %d", got, tt.checks)
			}
			if tt.checks > 0 && len(p.occupants) != 1 {
				t.Errorf("occupants = %+v", p.occupants)
			}
		})
	}
}

func TestUnknownMembersSkipsCheck(t *testing.T) {
	p := &fakePlayer{}
	p.has.Store(true)
	w := newVoiceWatcher(p, fakeLookup{botChannel: "vc", unknown: true}, zerolog.Nop())
	w.handle(context.Background(), botID, voiceChange{GuildID: "g1", UserID: "u1", Before: "vc"})
	if p.checked.Load() != 0 || p.destroyed.Load() != 0 {
		t.Fatal("an unreadable member list was treated as an empty channel")
	}
}

func TestUserLeavingWhenBotNotInVoice(t *testing.T) {
	p := &fakePlayer{}
	w := newVoiceWatcher(p, fakeLookup{}, zerolog.Nop())
	w.handle(context.Background(), botID, voiceChange{GuildID: "g1", UserID: "u1", Before: "vc"})
	if p.checked.Load() != 0 {
		t.Fatal("members checked while the bot is not connected")
	}
}

func TestGuildRemovedForgetsData(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "datastore.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.Toggle247("g1"); err != nil {
		t.Fatal(err)
	}

	p := &fakePlayer{}
	p.has.Store(true)
	b := &Bot{storage: store, voice: newVoiceWatcher(p, fakeLookup{}, zerolog.Nop()), log: zerolog.Nop()}

	b.guildRemoved(&discordgo.Guild{ID: "g1", Unavailable: true})
	if p.destroyed.Load() != 0 || !store.Is247("g1") {
		t.Fatal("outage must keep player and settings")
	}

	b.guildRemoved(&discordgo.Guild{ID: "g1"})
	if p.destroyed.Load() != 1 {
		t.Fatalf("destroyed %d times, want 1", p.destroyed.Load())
	}
	if store.Is247("g1") {
		t.Fatal("settings survived removal")
	}
}

func TestHashCommandsStable(t *testing.T) {
	r := cmd.NewRegistry()
	if err := music.Register(r, &music.Deps{}); err != nil {
		t.Fatal(err)
	}
	defs := commandDefinitions(r)
	if len(defs) != len(r.GetAll()) {
		t.Fatalf("%d definitions for %d commands", len(defs), len(r.GetAll()))
	}
	for _, d := range defs {
		if d.Type != discordgo.ChatApplicationCommand {
			t.Errorf("%s has type %d", d.Name, d.Type)
		}
	}

	h := hashCommands(defs)
	reversed := make([]*discordgo.ApplicationCommand, len(defs))
	for i, d := range defs {
		reversed[len(defs)-1-i] = d
	}
	if hashCommands(reversed) != h {
		t.Error("hash depends on command order")
	}

	defs[0].Description += "!"
	if hashCommands(defs) == h {
		t.Error("hash ignores description changes")
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, channelID+"|"+embed.Title)
	f.mu.Unlock()
	f.done <- struct{}{}
	return &discordgo.Message{}, nil
}

type fakeLive struct{ stopped []string }

func (f *fakeLive) Stop(guildID string) bool {
	f.stopped = append(f.stopped, guildID)
	return true
}

func TestNotifier(t *testing.T) {
	s := &fakeSender{done: make(chan struct{}, 4)}
	live := &fakeLive{}
	n := &Notifier{send: s, live: live, log: zerolog.Nop()}

	n.NowPlaying("g1", "tc", track.Track{Title: "song"})
	n.QueueEnded("g1", "tc")
	n.NowPlaying("g1", "", track.Track{Title: "silent"})
	for range 2 {
		select {
		case <-s.done:
		case <-time.After(time.Second):
			t.Fatal("message not sent")
		}
	}

	s.mu.Lock()
	got := len(s.sent)
	s.mu.Unlock()
	if got != 2 {
		t.Fatalf("sent %d messages, want 2", got)
	}

	n.SessionDestroyed("g1")
	if len(live.stopped) != 1 || live.stopped[0] != "g1" {
		t.Fatalf("stopped = %v", live.stopped)
	}
}
