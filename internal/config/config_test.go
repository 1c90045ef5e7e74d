package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InactivityTimeout != 5*time.Minute {
		t.Errorf("InactivityTimeout = %v, want 5m", cfg.InactivityTimeout)
	}
	if cfg.LavalinkPort != 2333 || cfg.LavalinkPassword != "youshallnotpass" {
		t.Errorf("lavalink defaults = %d/%q", cfg.LavalinkPort, cfg.LavalinkPassword)
	}
	if cfg.MaxQueueSize != 100 || cfg.SearchLimit != 10 || cfg.PlaylistLimit != 200 {
		t.Errorf("limits = %d/%d/%d", cfg.MaxQueueSize, cfg.SearchLimit, cfg.PlaylistLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateMissingToken(t *testing.T) {
	cfg := &Config{InactivityTimeout: time.Minute, MaxQueueSize: 1}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") {
		t.Fatalf("Validate() = %v, want DISCORD_TOKEN error", err)
	}
}

func TestNodes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    []Node
		wantErr bool
	}{
		{
			name: "single node from host fields",
			cfg:  Config{LavalinkHost: "lava", LavalinkPort: 2444, LavalinkPassword: "pw"},
			want: []Node{{ID: "main", Host: "lava", Port: 2444, Password: "pw"}},
		},
		{
			name: "list with defaults",
			cfg:  Config{LavalinkNodes: "a:host-a, b:host-b:4000:secret:true"},
			want: []Node{
				{ID: "a", Host: "host-a", Port: 2333, Password: "youshallnotpass"},
				{ID: "b", Host: "host-b", Port: 4000, Password: "secret", Secure: true},
			},
		},
		{name: "bad port", cfg: Config{LavalinkNodes: "a:host:x"}, wantErr: true},
		{name: "missing host", cfg: Config{LavalinkNodes: "a"}, wantErr: true},
		{name: "bad secure flag", cfg: Config{LavalinkNodes: "a:h:1:p:maybe"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Nodes()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Nodes() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Nodes: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Nodes() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("node %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNodeAddress(t *testing.T) {
	n := Node{Host: "localhost", Port: 2333}
	if got := n.Address(); got != "localhost:2333" {
		t.Errorf("Address() = %q", got)
	}
}
