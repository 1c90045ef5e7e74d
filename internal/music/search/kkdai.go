package search

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"

	"nabra/internal/music/track"
)

// Kkdai reads video and playlist metadata straight from YouTube without
// the yt-dlp binary. It cannot search.
type Kkdai struct {
	client *youtube.Client
}

var _ Provider = (*Kkdai)(nil)

func NewKkdai() *Kkdai {
	return &Kkdai{client: &youtube.Client{}}
}

func (k *Kkdai) Name() string { return "kkdai" }

func (k *Kkdai) Search(context.Context, string, int) ([]track.Entry, error) {
	return nil, ErrUnsupported
}

func (k *Kkdai) Video(ctx context.Context, url string) (track.Entry, error) {
	v, err := k.client.GetVideoContext(ctx, url)
	if err != nil {
		return track.Entry{}, fmt.Errorf("get video: %w", err)
	}
	e := track.Entry{
		ID:       v.ID,
		Title:    v.Title,
		Uploader: v.Author,
		Duration: v.Duration,
		URL:      track.WatchURL(v.ID),
		Source:   "youtube",
	}
	if n := len(v.Thumbnails); n > 0 {
		e.Thumbnail = v.Thumbnails[n-1].URL
	}
	// live streams report no duration
	e.IsLive = v.Duration == 0
	return e, nil
}

func (k *Kkdai) Playlist(ctx context.Context, url string, limit int) (string, []track.Entry, error) {
	p, err := k.client.GetPlaylistContext(ctx, url)
	if err != nil {
		return "", nil, fmt.Errorf("get playlist: %w", err)
	}
	entries := make([]track.Entry, 0, min(len(p.Videos), limit))
	for _, v := range p.Videos {
		if len(entries) == limit {
			break
		}
		e := track.Entry{
			ID:       v.ID,
			Title:    v.Title,
			Uploader: v.Author,
			Duration: v.Duration,
			URL:      track.WatchURL(v.ID),
			Source:   "youtube",
		}
		if n := len(v.Thumbnails); n > 0 {
			e.Thumbnail = v.Thumbnails[n-1].URL
		}
		entries = append(entries, e)
	}
	return p.Title, entries, nil
}
