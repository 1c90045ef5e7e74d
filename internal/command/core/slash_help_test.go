package core

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"nabra/internal/command/music"
	"nabra/internal/storage"
	"nabra/pkg/cmd"
)

func TestHelpByCategoryOrder(t *testing.T) {
	r := cmd.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	if err := music.Register(r, &music.Deps{}); err != nil {
		t.Fatal(err)
	}

	out := HelpByCategory(r)
	info := strings.Index(out, "**🕯️ Information**")
	mus := strings.Index(out, "**🎵 Music**")
	settings := strings.Index(out, "**⚙️ Settings**")
	if info < 0 || mus < 0 || settings < 0 {
		t.Fatalf("missing category in:\n%s", out)
	}
	if !(info < mus && mus < settings) {
		t.Errorf("categories out of order: info=%d music=%d settings=%d", info, mus, settings)
	}
	if !strings.Contains(out, "`/247`") || !strings.Contains(out, "`/play`") {
		t.Errorf("commands missing:\n%s", out)
	}
	if strings.Index(out, "`/pause`") > strings.Index(out, "`/play`") {
		t.Error("commands within a category should be sorted by name")
	}
}

func TestRegisterCore(t *testing.T) {
	r := cmd.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"help", "about", "ping", "cmd-log", "cmd-toggle", "cmd-status", "db-status"} {
		if r.Get(name) == nil {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestGroupsAndToggleChoices(t *testing.T) {
	r := cmd.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	if err := music.Register(r, &music.Deps{}); err != nil {
		t.Fatal(err)
	}

	groups := Groups(r)
	if len(groups) != 2 || groups[0] != "core" || groups[1] != "music" {
		t.Fatalf("groups = %v", groups)
	}

	def := (&CommandsToggleCommand{Registry: r}).SlashDefinition()
	choices := def.Options[0].Choices
	if len(choices) != 2 || choices[1].Value != "music" {
		t.Fatalf("choices = %+v", choices)
	}

	on, off := SplitGroups(groups, []string{"music"})
	if len(on) != 1 || on[0] != "core" || len(off) != 1 || off[0] != "music" {
		t.Fatalf("on = %v off = %v", on, off)
	}
	if groupList(nil) != "_none_" || groupList(off) != "`music`" {
		t.Fatal("unexpected group list text")
	}
}

func TestFormatCommandLog(t *testing.T) {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []storage.CommandHistoryRecord{
		{Username: "old", Command: "play", Param: "query=lofi", Datetime: base},
		{Username: "new", Command: "skip", Datetime: base.Add(time.Minute)},
	}
	out := FormatCommandLog(records)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[1], "new") || !strings.Contains(lines[2], "/play query=lofi") {
		t.Fatalf("log not newest first:\n%s", out)
	}
	if !strings.HasPrefix(lines[2], "2025-01-02 03:04:05") {
		t.Fatalf("datetime format: %q", lines[2])
	}
}

func TestFormatCommandLogFitsMessage(t *testing.T) {
	records := make([]storage.CommandHistoryRecord, 200)
	for i := range records {
		records[i] = storage.CommandHistoryRecord{Username: "user", Command: "play", Param: strings.Repeat("x", 40)}
	}
	out := FormatCommandLog(records)
	if len(codeLeftBlockWrapper+"\n"+out+codeRightBlockWrapper) > discordMaxMessageLength {
		t.Fatalf("message is %d bytes", len(out))
	}
}

func TestRelease(t *testing.T) {
	tests := []struct {
		name string
		info *debug.BuildInfo
		want string
	}{
		{"no info", nil, "unknown"},
		{"dev", &debug.BuildInfo{GoVersion: "go1.24.0"}, "dev build (Go 1.24.0)"},
		{"vcs", &debug.BuildInfo{GoVersion: "go1.24.0", Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2025-03-04T05:06:07Z"},
		}}, "2025-03-04 0123456 (Go 1.24.0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Release(tt.info); got != tt.want {
				t.Errorf("Release = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatsEmbed(t *testing.T) {
	e := StatsEmbed(storage.Stats{Keys: 3, Guilds: 2, MemoryBytes: 2048, FilePath: "data.json"})
	want := map[string]string{"Keys": "3", "Guilds": "2", "Memory": "2.0 KiB", "Saved to disk": "not yet"}
	for _, f := range e.Fields {
		if w, ok := want[f.Name]; ok && f.Value != w {
			t.Errorf("%s = %q, want %q", f.Name, f.Value, w)
		}
	}
	if formatBytes(512) != "512 B" || formatBytes(3<<20) != "3.0 MiB" {
		t.Error("unexpected byte formatting")
	}
}
