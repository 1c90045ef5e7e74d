// Package track holds the canonical playback unit shared by both playback
// backends. Callers read metadata from Track and never branch on which
// backend produced it; only the backend that owns Payload inspects it.
package track

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
)

// ErrNoPlayableSource is returned when no stream locator can be derived from a track.
var ErrNoPlayableSource = errors.New("no playable source for track")

// Locator is a resolved stream source understood by the local extractor.
type Locator string

// Track is immutable apart from RequesterID, which is stamped at enqueue time.
type Track struct {
	Title        string
	Author       string
	Duration     time.Duration // ignored when IsLive
	IsLive       bool
	URI          string
	ThumbnailURL string
	SourceName   string
	Identifier   string
	RequesterID  string

	// Payload is the backend handle: lavalink.Track for the remote node,
	// Locator for the local fallback.
	Payload any
}

// Entry is a search result produced by the local search providers.
type Entry struct {
	ID        string
	Title     string
	Uploader  string
	Duration  time.Duration
	URL       string
	Thumbnail string
	IsLive    bool
	Source    string
}

// FromLavalink converts a node track.
func FromLavalink(lt lavalink.Track) Track {
	info := lt.Info
	t := Track{
		Title:      info.Title,
		Author:     info.Author,
		Duration:   time.Duration(info.Length) * time.Millisecond,
		IsLive:     info.IsStream,
		SourceName: info.SourceName,
		Identifier: info.Identifier,
		Payload:    lt,
	}
	if info.URI != nil {
		t.URI = *info.URI
	}
	if info.ArtworkURL != nil {
		t.ThumbnailURL = *info.ArtworkURL
	}
	if t.Title == "" {
		t.Title = "Unknown title"
	}
	return t
}

// FromSearchEntry converts a local search result. The entry URL (or the
// canonical watch URL built from its id) becomes the fallback Locator.
func FromSearchEntry(e Entry) Track {
	uri := e.URL
	if uri == "" && e.ID != "" {
		uri = WatchURL(e.ID)
	}
	source := e.Source
	if source == "" {
		source = "youtube"
	}
	thumb := e.Thumbnail
	if thumb == "" && e.ID != "" && source == "youtube" {
		thumb = "https://i.ytimg.com/vi/" + e.ID + "/hqdefault.jpg"
	}
	t := Track{
		Title:        e.Title,
		Author:       e.Uploader,
		Duration:     e.Duration,
		IsLive:       e.IsLive,
		URI:          uri,
		ThumbnailURL: thumb,
		SourceName:   source,
		Identifier:   e.ID,
	}
	if uri != "" {
		t.Payload = Locator(uri)
	}
	if t.Title == "" {
		t.Title = "Unknown title"
	}
	return t
}

// WithRequester returns a copy stamped with the requesting user.
func (t Track) WithRequester(id string) Track {
	t.RequesterID = id
	return t
}

// Lavalink returns the node handle, if this track came from a node.
func (t Track) Lavalink() (lavalink.Track, bool) {
	lt, ok := t.Payload.(lavalink.Track)
	return lt, ok
}

// Locate resolves the stream locator for the local extractor: the payload
// locator, then the URI, then a watch URL rebuilt from the identifier.
func (t Track) Locate() (Locator, error) {
	if loc, ok := t.Payload.(Locator); ok && loc != "" {
		return loc, nil
	}
	if t.URI != "" {
		return Locator(t.URI), nil
	}
	if t.Identifier != "" {
		return Locator(WatchURL(t.Identifier)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoPlayableSource, t.Title)
}

// WatchURL rebuilds the canonical watch page URL for a video identifier.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// DisplayDuration renders the duration as m:ss or h:mm:ss, or LIVE.
func (t Track) DisplayDuration() string {
	if t.IsLive {
		return "LIVE"
	}
	return FormatDuration(t.Duration)
}

// FormatDuration renders d as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ParseDuration parses "h:mm:ss", "m:ss" or plain seconds.
func ParseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var total int
	for _, part := range strings.Split(s, ":") {
		n := 0
		if part == "" {
			return 0, false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}
