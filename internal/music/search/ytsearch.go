package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ppalone/ytsearch"

	"nabra/internal/music/track"
)

// Web searches YouTube's web endpoint directly. It is the last resort for
// text queries when yt-dlp is missing or failing.
type Web struct {
	client *ytsearch.Client
}

var _ Provider = (*Web)(nil)

func NewWeb() *Web {
	return &Web{client: ytsearch.NewClient(&http.Client{Timeout: 10 * time.Second})}
}

func (w *Web) Name() string { return "ytsearch" }

func (w *Web) Search(ctx context.Context, query string, limit int) ([]track.Entry, error) {
	res, err := w.client.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	seen := make(map[string]bool)
	var entries []track.Entry
	for _, v := range res.Results {
		if len(entries) == limit {
			break
		}
		if v.VideoID == "" || seen[v.VideoID] {
			continue
		}
		seen[v.VideoID] = true
		entries = append(entries, track.Entry{
			ID:     v.VideoID,
			Title:  v.Title,
			URL:    track.WatchURL(v.VideoID),
			Source: "youtube",
		})
	}
	return entries, nil
}

func (w *Web) Video(context.Context, string) (track.Entry, error) {
	return track.Entry{}, ErrUnsupported
}

func (w *Web) Playlist(context.Context, string, int) (string, []track.Entry, error) {
	return "", nil, ErrUnsupported
}
