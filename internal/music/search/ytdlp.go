package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"nabra/internal/music/track"
)

const searchTemplate = "%(id)s\t%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(live_status)s"

// CommandFunc builds a configured yt-dlp command; stream.Extractor.YtdlpCommand
// satisfies it.
type CommandFunc func(ctx context.Context, configure func(*ytdlp.Command), args ...string) *exec.Cmd

// Ytdlp answers every lookup with the yt-dlp binary.
type Ytdlp struct {
	command CommandFunc
}

var _ Provider = (*Ytdlp)(nil)

func NewYtdlp(command CommandFunc) *Ytdlp {
	return &Ytdlp{command: command}
}

func (y *Ytdlp) Name() string { return "yt-dlp" }

func (y *Ytdlp) Search(ctx context.Context, query string, limit int) ([]track.Entry, error) {
	out, err := y.run(ctx, func(c *ytdlp.Command) {
		c.FlatPlaylist().
			Print(searchTemplate).
			PlaylistItems(fmt.Sprintf("1-%d", limit))
	}, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, err
	}
	return parseSearchLines(out), nil
}

func (y *Ytdlp) Video(ctx context.Context, url string) (track.Entry, error) {
	out, err := y.run(ctx, func(c *ytdlp.Command) {
		c.DumpJSON().
			SkipDownload().
			NoPlaylist()
	}, "--extractor-args", "youtube:player_client=android,web", url)
	if err != nil {
		return track.Entry{}, err
	}
	var info ytdlpInfo
	if err := json.Unmarshal(bytes.TrimSpace(out), &info); err != nil {
		return track.Entry{}, fmt.Errorf("decode yt-dlp metadata: %w", err)
	}
	e := info.entry()
	if e.URL == "" {
		e.URL = url
	}
	return e, nil
}

func (y *Ytdlp) Playlist(ctx context.Context, url string, limit int) (string, []track.Entry, error) {
	out, err := y.run(ctx, func(c *ytdlp.Command) {
		c.FlatPlaylist().
			DumpJSON().
			PlaylistItems(fmt.Sprintf("1-%d", limit))
	}, "--extractor-args", "youtube:player_client=android,web", url)
	if err != nil {
		return "", nil, err
	}
	name, entries := parsePlaylistLines(out)
	return name, entries, nil
}

func (y *Ytdlp) run(ctx context.Context, configure func(*ytdlp.Command), args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := y.command(ctx, configure, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("yt-dlp exited with %d: %s", exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return nil, fmt.Errorf("run yt-dlp: %w", err)
	}
	return out, nil
}

// ytdlpInfo is the subset of yt-dlp's JSON we read.
type ytdlpInfo struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	WebpageURL    string  `json:"webpage_url"`
	Title         string  `json:"title"`
	Uploader      string  `json:"uploader"`
	Channel       string  `json:"channel"`
	Duration      float64 `json:"duration"`
	Thumbnail     string  `json:"thumbnail"`
	IsLive        bool    `json:"is_live"`
	LiveStatus    string  `json:"live_status"`
	Extractor     string  `json:"extractor_key"`
	PlaylistTitle string  `json:"playlist_title"`
}

func (i ytdlpInfo) entry() track.Entry {
	u := i.WebpageURL
	if u == "" && strings.HasPrefix(i.URL, "http") {
		u = i.URL
	}
	uploader := i.Uploader
	if uploader == "" {
		uploader = i.Channel
	}
	source := strings.ToLower(i.Extractor)
	if strings.HasPrefix(source, "youtube") {
		source = "youtube"
	}
	return track.Entry{
		ID:        i.ID,
		Title:     i.Title,
		Uploader:  uploader,
		Duration:  time.Duration(i.Duration * float64(time.Second)),
		URL:       u,
		Thumbnail: i.Thumbnail,
		IsLive:    i.IsLive || i.LiveStatus == "is_live",
		Source:    source,
	}
}

// parseSearchLines reads searchTemplate output. Lines with too few fields
// are skipped.
func parseSearchLines(out []byte) []track.Entry {
	var entries []track.Entry
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		ps := strings.Split(strings.TrimSpace(sc.Text()), "\t")
		if len(ps) < 5 {
			continue
		}
		e := track.Entry{
			ID:       ps[0],
			URL:      ps[1],
			Title:    ps[2],
			Uploader: ps[3],
			Source:   "youtube",
		}
		if e.URL == "NA" || !strings.HasPrefix(e.URL, "http") {
			e.URL = ""
		}
		if e.ID == "NA" {
			e.ID = ""
		}
		if e.Uploader == "NA" {
			e.Uploader = ""
		}
		if secs, err := strconv.ParseFloat(ps[4], 64); err == nil {
			e.Duration = time.Duration(secs * float64(time.Second))
		}
		if len(ps) > 5 && ps[5] == "is_live" {
			e.IsLive = true
		}
		if e.ID == "" && e.URL == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// parsePlaylistLines reads --flat-playlist --dump-json output, one JSON
// object per line.
func parsePlaylistLines(out []byte) (string, []track.Entry) {
	var (
		name    string
		entries []track.Entry
	)
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal(line, &info); err != nil {
			continue
		}
		if name == "" {
			name = info.PlaylistTitle
		}
		e := info.entry()
		if e.URL == "" && info.ID != "" {
			e.URL = track.WatchURL(info.ID)
		}
		if e.Source == "" {
			e.Source = "youtube"
		}
		if e.Title == "" {
			e.Title = "Unknown title"
		}
		entries = append(entries, e)
	}
	return name, entries
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
