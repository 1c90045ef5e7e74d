package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultLavalinkPort     = 2333
	defaultLavalinkPassword = "youshallnotpass"
)

// Config is loaded from the process environment, optionally seeded by a .env file.
type Config struct {
	DiscordToken    string `env:"DISCORD_TOKEN"`
	DiscordClientID string `env:"DISCORD_CLIENT_ID"`
	DiscordGuildID  string `env:"DISCORD_GUILD_ID"`

	LavalinkNodes    string `env:"LAVALINK_NODES"`
	LavalinkHost     string `env:"LAVALINK_HOST" envDefault:"localhost"`
	LavalinkPort     int    `env:"LAVALINK_PORT" envDefault:"2333"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD" envDefault:"youshallnotpass"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE" envDefault:"false"`

	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"5m"`
	StoragePath       string        `env:"STORAGE_PATH" envDefault:"data/datastore.json"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile           string        `env:"LOG_FILE"`

	YtdlpPath  string `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	FfmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	Proxy      string `env:"PROXY"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	DefaultVolume int `env:"DEFAULT_VOLUME" envDefault:"100"`
	MaxQueueSize  int `env:"MAX_QUEUE_SIZE" envDefault:"100"`
	SearchLimit   int `env:"SEARCH_LIMIT" envDefault:"10"`
	PlaylistLimit int `env:"PLAYLIST_LIMIT" envDefault:"200"`

	InitSlashCommands bool `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
}

// Node is one remote streaming node.
type Node struct {
	ID       string
	Host     string
	Port     int
	Password string
	Secure   bool
}

// Address returns host:port.
func (n Node) Address() string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	// a missing .env is normal in containers
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is not set"))
	}
	if c.InactivityTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INACTIVITY_TIMEOUT must be positive, got %s", c.InactivityTimeout))
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 200 {
		errs = append(errs, fmt.Errorf("DEFAULT_VOLUME must be within 0..200, got %d", c.DefaultVolume))
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", c.MaxQueueSize))
	}
	if _, err := c.Nodes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Nodes parses LAVALINK_NODES ("id:host:port:password[:secure]", comma
// separated). When unset a single node is built from the LAVALINK_* fields.
func (c *Config) Nodes() ([]Node, error) {
	if strings.TrimSpace(c.LavalinkNodes) == "" {
		if c.LavalinkHost == "" {
			return nil, nil
		}
		return []Node{{
			ID:       "main",
			Host:     c.LavalinkHost,
			Port:     c.LavalinkPort,
			Password: c.LavalinkPassword,
			Secure:   c.LavalinkSecure,
		}}, nil
	}

	var nodes []Node
	for i, raw := range strings.Split(c.LavalinkNodes, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		n, err := parseNode(raw)
		if err != nil {
			return nil, fmt.Errorf("LAVALINK_NODES entry %d: %w", i+1, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parseNode(raw string) (Node, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return Node{}, fmt.Errorf("want id:host[:port[:password[:secure]]], got %q", raw)
	}

	n := Node{
		ID:       parts[0],
		Host:     parts[1],
		Port:     defaultLavalinkPort,
		Password: defaultLavalinkPassword,
	}
	if n.ID == "" || n.Host == "" {
		return Node{}, fmt.Errorf("empty id or host in %q", raw)
	}
	if len(parts) > 2 && parts[2] != "" {
		port, err := strconv.Atoi(parts[2])
		if err != nil || port <= 0 || port > 65535 {
			return Node{}, fmt.Errorf("invalid port %q", parts[2])
		}
		n.Port = port
	}
	if len(parts) > 3 && parts[3] != "" {
		n.Password = parts[3]
	}
	if len(parts) > 4 {
		secure, err := strconv.ParseBool(parts[4])
		if err != nil {
			return Node{}, fmt.Errorf("invalid secure flag %q", parts[4])
		}
		n.Secure = secure
	}
	return n, nil
}
