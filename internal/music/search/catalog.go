package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	spotifyTrackRe = regexp.MustCompile(`spotify\.com/(?:intl-[a-z]+/)?track/([A-Za-z0-9]+)`)
	appleMusicRe   = regexp.MustCompile(`music\.apple\.com/([a-z]{2})/(album|playlist|song)/([^?#]+)`)
)

const defaultOEmbedURL = "https://open.spotify.com/oembed"

// Catalog turns Spotify and Apple Music links into text queries. Spotify
// albums and playlists are left alone for nodes that can load them.
type Catalog struct {
	spotify   *spotify.Client
	http      *http.Client
	oembedURL string
	log       zerolog.Logger
}

var _ Converter = (*Catalog)(nil)

// NewCatalog uses the Spotify Web API when credentials are given and the
// public oEmbed endpoint otherwise.
func NewCatalog(clientID, clientSecret string, log zerolog.Logger) *Catalog {
	c := &Catalog{
		http:      &http.Client{Timeout: 10 * time.Second},
		oembedURL: defaultOEmbedURL,
		log:       log.With().Str("component", "catalog").Logger(),
	}
	if clientID != "" && clientSecret != "" {
		cfg := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		c.spotify = spotify.New(cfg.Client(context.Background()))
	}
	return c
}

func (c *Catalog) Convert(ctx context.Context, query string) (string, bool) {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "spotify.com"):
		m := spotifyTrackRe.FindStringSubmatch(query)
		if m == nil {
			return "", false
		}
		q, err := c.spotifyTrack(ctx, m[1], query)
		if err != nil {
			c.log.Warn().Err(err).Str("url", query).Msg("Spotify lookup failed")
			return "", false
		}
		return q, q != ""

	case strings.Contains(lower, "music.apple.com"):
		q := AppleMusicQuery(query)
		return q, q != ""
	}
	return "", false
}

func (c *Catalog) spotifyTrack(ctx context.Context, id, link string) (string, error) {
	if c.spotify != nil {
		t, err := c.spotify.GetTrack(ctx, spotify.ID(id))
		if err == nil {
			artists := make([]string, len(t.Artists))
			for i, a := range t.Artists {
				artists[i] = a.Name
			}
			return strings.TrimSpace(strings.Join(artists, ", ") + " " + t.Name), nil
		}
		c.log.Debug().Err(err).Msg("Spotify API lookup failed, trying oEmbed")
	}
	return c.oembedTitle(ctx, link)
}

func (c *Catalog) oembedTitle(ctx context.Context, link string) (string, error) {
	endpoint := c.oembedURL + "?url=" + url.QueryEscape(link)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode oembed: %w", err)
	}
	return strings.TrimSpace(strings.TrimSuffix(body.Title, " | Spotify")), nil
}

// AppleMusicQuery turns the readable slug of an Apple Music link into words,
// e.g. ".../album/hotel-california/1440935467" becomes "hotel california".
func AppleMusicQuery(link string) string {
	m := appleMusicRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	slug := strings.SplitN(m[3], "/", 2)[0]
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(slug, "-", " ")), " ")
}
