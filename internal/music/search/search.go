// Package search turns a user query into playable tracks. A connected node
// is asked first; the local providers (yt-dlp, then the pure Go clients)
// answer when no node is up or the node finds nothing.
package search

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/rs/zerolog"

	"nabra/internal/music/track"
)

// ErrUnsupported is returned by providers for lookups they cannot do.
var ErrUnsupported = errors.New("lookup not supported by provider")

// Source says which path served a result.
type Source int

const (
	SourceNone Source = iota
	SourceRemote
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceFallback:
		return "fallback"
	}
	return "none"
}

// Result is what Search found. Tracks is ranked best first unless the
// query named a playlist, which keeps playlist order.
type Result struct {
	Tracks       []track.Track
	Source       Source
	Playlist     bool
	PlaylistName string
}

// Loader is the node-side lookup.
type Loader interface {
	Available() bool
	Load(ctx context.Context, identifier string) (*lavalink.LoadResult, error)
}

// Provider is one local metadata source. Lookups a provider cannot serve
// return ErrUnsupported.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]track.Entry, error)
	Video(ctx context.Context, url string) (track.Entry, error)
	Playlist(ctx context.Context, url string, limit int) (name string, entries []track.Entry, err error)
}

// Converter rewrites catalog links (Spotify, Apple Music) into something
// the providers understand.
type Converter interface {
	Convert(ctx context.Context, query string) (string, bool)
}

type Options struct {
	Remote        Loader
	Providers     []Provider
	Converter     Converter
	SearchLimit   int
	PlaylistLimit int
}

type Searcher struct {
	remote        Loader
	providers     []Provider
	converter     Converter
	searchLimit   int
	playlistLimit int
	log           zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Searcher {
	s := &Searcher{
		remote:        opts.Remote,
		providers:     opts.Providers,
		converter:     opts.Converter,
		searchLimit:   opts.SearchLimit,
		playlistLimit: opts.PlaylistLimit,
		log:           log.With().Str("component", "search").Logger(),
	}
	if s.searchLimit <= 0 {
		s.searchLimit = 10
	}
	if s.playlistLimit <= 0 {
		s.playlistLimit = 200
	}
	return s
}

// Search never fails: lookup errors are logged and an empty Result with
// SourceNone means nothing was found anywhere.
func (s *Searcher) Search(ctx context.Context, query, requesterID string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}
	}
	if s.converter != nil {
		if converted, ok := s.converter.Convert(ctx, query); ok {
			s.log.Debug().Str("from", query).Str("to", converted).Msg("Converted catalog link")
			query = converted
		}
	}

	res := s.searchRemote(ctx, query)
	if len(res.Tracks) == 0 {
		res = s.searchLocal(ctx, query)
	}
	if len(res.Tracks) == 0 {
		s.log.Info().Str("query", query).Msg("No results")
		return Result{}
	}
	for i := range res.Tracks {
		res.Tracks[i] = res.Tracks[i].WithRequester(requesterID)
	}
	s.log.Info().
		Str("query", query).
		Stringer("source", res.Source).
		Int("tracks", len(res.Tracks)).
		Bool("playlist", res.Playlist).
		Msg("Search resolved")
	return res
}

func (s *Searcher) searchRemote(ctx context.Context, query string) Result {
	if s.remote == nil || !s.remote.Available() {
		return Result{}
	}
	identifier := query
	if !IsURL(query) {
		identifier = lavalink.SearchTypeYouTubeMusic.Apply(query)
	}

	lr, err := s.remote.Load(ctx, identifier)
	if err != nil {
		s.log.Warn().Err(err).Str("query", query).Msg("Node search failed, trying local providers")
		return Result{}
	}
	if lr == nil {
		return Result{}
	}

	res := Result{Source: SourceRemote}
	switch data := lr.Data.(type) {
	case lavalink.Track:
		res.Tracks = []track.Track{track.FromLavalink(data)}
	case lavalink.Playlist:
		res.Playlist = true
		res.PlaylistName = data.Info.Name
		for _, lt := range data.Tracks {
			res.Tracks = append(res.Tracks, track.FromLavalink(lt))
		}
	case lavalink.Search:
		ranked := rankBy(query, []lavalink.Track(data), func(lt lavalink.Track) string {
			return lt.Info.Author + " " + lt.Info.Title
		})
		for _, lt := range ranked {
			res.Tracks = append(res.Tracks, track.FromLavalink(lt))
		}
	case lavalink.Exception:
		s.log.Warn().Str("query", query).Str("severity", string(data.Severity)).Msg(data.Message)
	}
	return res
}

func (s *Searcher) searchLocal(ctx context.Context, query string) Result {
	res := Result{Source: SourceFallback}

	switch {
	case IsPlaylistURL(query):
		res.Playlist = true
		for _, p := range s.providers {
			name, entries, err := p.Playlist(ctx, query, s.playlistLimit)
			if err != nil {
				s.logProviderErr(p, err, query)
				continue
			}
			if len(entries) == 0 {
				continue
			}
			res.PlaylistName = name
			if res.PlaylistName == "" {
				res.PlaylistName = "Playlist"
			}
			res.Tracks = fromEntries(entries)
			return res
		}

	case IsURL(query):
		for _, p := range s.providers {
			entry, err := p.Video(ctx, query)
			if err != nil {
				s.logProviderErr(p, err, query)
				continue
			}
			if entry.URL == "" {
				entry.URL = query
			}
			res.Tracks = []track.Track{track.FromSearchEntry(entry)}
			return res
		}

	default:
		for _, p := range s.providers {
			entries, err := p.Search(ctx, query, s.searchLimit)
			if err != nil {
				s.logProviderErr(p, err, query)
				continue
			}
			if len(entries) == 0 {
				continue
			}
			res.Tracks = fromEntries(Rank(query, entries))
			return res
		}
	}
	return Result{}
}

func (s *Searcher) logProviderErr(p Provider, err error, query string) {
	if errors.Is(err, ErrUnsupported) {
		return
	}
	s.log.Warn().Err(err).Str("provider", p.Name()).Str("query", query).Msg("Provider lookup failed")
}

func fromEntries(entries []track.Entry) []track.Track {
	out := make([]track.Track, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" && e.ID == "" {
			continue
		}
		out = append(out, track.FromSearchEntry(e))
	}
	return out
}

// IsURL reports whether q is an absolute http(s) URL.
func IsURL(q string) bool {
	u, err := url.Parse(q)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsPlaylistURL reports whether q names a whole YouTube playlist rather than
// a video that happens to carry a list parameter.
func IsPlaylistURL(q string) bool {
	if !IsURL(q) {
		return false
	}
	u, _ := url.Parse(q)
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "youtube.com" && host != "music.youtube.com" && host != "m.youtube.com" {
		return false
	}
	v := u.Query()
	if v.Get("list") == "" {
		return false
	}
	return u.Path == "/playlist" || v.Get("v") == ""
}
