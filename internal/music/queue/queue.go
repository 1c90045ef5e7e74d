// Package queue keeps per-guild repeat mode and play history.
package queue

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"nabra/internal/music/track"
)

// HistoryLimit bounds the per-guild history; the oldest entry is evicted first.
const HistoryLimit = 50

// RepeatMode controls what happens to a finished track.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatTrack
	RepeatQueue
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatTrack:
		return "track"
	case RepeatQueue:
		return "queue"
	}
	return "off"
}

// ParseRepeatMode accepts off, track or queue (case-insensitive).
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return RepeatOff, nil
	case "track", "song", "one":
		return RepeatTrack, nil
	case "queue", "all":
		return RepeatQueue, nil
	}
	return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
}

type guildState struct {
	repeat  RepeatMode
	history []track.Track
	cursor  int
}

// Store is an owned registry of guild state, created lazily per guild.
// It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	guilds map[string]*guildState
}

func NewStore() *Store {
	return &Store{guilds: make(map[string]*guildState)}
}

func (s *Store) state(guildID string) *guildState {
	st, ok := s.guilds[guildID]
	if !ok {
		st = &guildState{cursor: -1}
		s.guilds[guildID] = st
	}
	return st
}

func (s *Store) SetRepeatMode(guildID string, mode RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(guildID).repeat = mode
}

// RepeatMode returns RepeatOff for unseen guilds without creating state.
func (s *Store) RepeatMode(guildID string) RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.guilds[guildID]; ok {
		return st.repeat
	}
	return RepeatOff
}

// RecordPlayed drops any history past the cursor, appends t and moves the
// cursor onto it.
func (s *Store) RecordPlayed(guildID string, t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(guildID)
	if st.cursor < len(st.history)-1 {
		st.history = st.history[:st.cursor+1]
	}
	st.history = append(st.history, t)
	st.cursor = len(st.history) - 1

	if over := len(st.history) - HistoryLimit; over > 0 {
		st.history = append([]track.Track(nil), st.history[over:]...)
		st.cursor -= over
	}
}

// Previous steps the cursor back and returns the entry it lands on.
// With the cursor at 0 or below it returns ok=false and changes nothing.
func (s *Store) Previous(guildID string) (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.guilds[guildID]
	if !ok || st.cursor <= 0 {
		return track.Track{}, false
	}
	st.cursor--
	return st.history[st.cursor], true
}

func (s *Store) HasPrevious(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.guilds[guildID]
	return ok && st.cursor > 0
}

// History returns a copy of the guild history and the cursor (-1 when empty).
func (s *Store) History(guildID string) ([]track.Track, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.guilds[guildID]
	if !ok {
		return nil, -1
	}
	return append([]track.Track(nil), st.history...), st.cursor
}

// Clear forgets everything about the guild.
func (s *Store) Clear(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
}

// Shuffler permutes sequences with an injectable random source.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewShuffler uses r, or a randomly seeded source when r is nil.
func NewShuffler(r *rand.Rand) *Shuffler {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Shuffler{rnd: r}
}

var defaultShuffler = NewShuffler(nil)

// Shuffle returns a uniformly random permutation of in, leaving in untouched.
func Shuffle[T any](in []T) []T {
	return ShuffleWith(defaultShuffler, in)
}

// ShuffleWith is Shuffle drawing from sh.
func ShuffleWith[T any](sh *Shuffler, in []T) []T {
	out := append([]T(nil), in...)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for i := len(out) - 1; i > 0; i-- {
		j := sh.rnd.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
