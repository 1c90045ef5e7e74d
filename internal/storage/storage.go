// Package storage keeps per-guild settings that outlive a process: 24/7
// mode, the preferred volume, disabled command groups, recent command
// history and the hash of the last registered command set.
package storage

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nabra/datastore"
)

const (
	commandHistoryLimit = 20
	guildKeyPrefix      = "guild:"
	hashKeyPrefix       = "commands_hash:"
)

type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Param     string    `json:"param,omitempty"`
	Datetime  time.Time `json:"datetime"`
}

type Record struct {
	Hold247         bool                   `json:"hold_247"`
	Volume          int                    `json:"volume,omitempty"`
	DisabledGroups  []string               `json:"disabled_groups,omitempty"`
	CommandsHistory []CommandHistoryRecord `json:"cmd_history"`
}

// Stats describes the backing datastore.
type Stats struct {
	Keys        int
	Guilds      int
	MemoryBytes int64
	FilePath    string
	Saved       bool
}

type Storage struct {
	ds  *datastore.DataStore
	log zerolog.Logger

	// guards read-modify-write of guild records
	mu sync.Mutex
}

func New(filePath string, log zerolog.Logger) (*Storage, error) {
	ds, err := datastore.New(filePath, log)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds, log: log.With().Str("component", "storage").Logger()}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func (s *Storage) record(guildID string) (Record, error) {
	var rec Record
	if _, err := s.ds.Get(guildKeyPrefix+guildID, &rec); err != nil {
		return Record{}, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return rec, nil
}

func (s *Storage) update(guildID string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(guildID)
	if err != nil {
		return err
	}
	fn(&rec)
	return s.ds.Put(guildKeyPrefix+guildID, rec)
}

// Is247 reports whether the guild keeps the bot in voice when idle.
// Storage errors read as false.
func (s *Storage) Is247(guildID string) bool {
	rec, err := s.record(guildID)
	if err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Msg("Failed to read 24/7 setting")
		return false
	}
	return rec.Hold247
}

// Toggle247 flips the setting and returns the new value.
func (s *Storage) Toggle247(guildID string) (bool, error) {
	var on bool
	err := s.update(guildID, func(r *Record) {
		r.Hold247 = !r.Hold247
		on = r.Hold247
	})
	return on, err
}

// Volume returns the saved volume, or ok=false when none was saved.
func (s *Storage) Volume(guildID string) (int, bool) {
	rec, err := s.record(guildID)
	if err != nil || rec.Volume == 0 {
		return 0, false
	}
	// 0 is stored as -1 so that "unset" stays distinguishable
	if rec.Volume < 0 {
		return 0, true
	}
	return rec.Volume, true
}

func (s *Storage) SetVolume(guildID string, pct int) error {
	if pct == 0 {
		pct = -1
	}
	return s.update(guildID, func(r *Record) { r.Volume = pct })
}

// AppendCommandToHistory appends a command history record for a guild
func (s *Storage) AppendCommandToHistory(guildID string, cmd CommandHistoryRecord) error {
	return s.update(guildID, func(r *Record) {
		r.CommandsHistory = append(r.CommandsHistory, cmd)
		if over := len(r.CommandsHistory) - commandHistoryLimit; over > 0 {
			r.CommandsHistory = r.CommandsHistory[over:]
		}
	})
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	return rec.CommandsHistory, nil
}

// DisableGroup turns a command group off for the guild.
func (s *Storage) DisableGroup(guildID, group string) error {
	return s.update(guildID, func(r *Record) {
		if !slices.Contains(r.DisabledGroups, group) {
			r.DisabledGroups = append(r.DisabledGroups, group)
			slices.Sort(r.DisabledGroups)
		}
	})
}

func (s *Storage) EnableGroup(guildID, group string) error {
	return s.update(guildID, func(r *Record) {
		r.DisabledGroups = slices.DeleteFunc(r.DisabledGroups, func(g string) bool { return g == group })
	})
}

func (s *Storage) IsGroupDisabled(guildID, group string) (bool, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return false, err
	}
	return slices.Contains(rec.DisabledGroups, group), nil
}

func (s *Storage) DisabledGroups(guildID string) ([]string, error) {
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	return rec.DisabledGroups, nil
}

// ForgetGuild drops everything stored for a guild the bot was removed from.
func (s *Storage) ForgetGuild(guildID string) error {
	s.mu.Lock()
	s.ds.Delete(guildKeyPrefix + guildID)
	s.ds.Delete(hashKeyPrefix + guildID)
	s.mu.Unlock()
	return s.ds.SaveToFile()
}

func (s *Storage) Stats() Stats {
	raw := s.ds.Stats()
	st := Stats{}
	st.Keys, _ = raw["keys"].(int)
	st.MemoryBytes, _ = raw["memory_size"].(int64)
	st.FilePath, _ = raw["file_path"].(string)
	st.Saved, _ = raw["last_save"].(bool)
	for _, k := range s.ds.Keys() {
		if strings.HasPrefix(k, guildKeyPrefix) {
			st.Guilds++
		}
	}
	return st
}

// CommandsHash returns the hash of the command set last registered for
// scope ("global" or a guild id).
func (s *Storage) CommandsHash(scope string) string {
	var h string
	if _, err := s.ds.Get(hashKeyPrefix+scope, &h); err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Msg("Failed to read commands hash")
		return ""
	}
	return h
}

func (s *Storage) SetCommandsHash(scope, hash string) error {
	if err := s.ds.Put(hashKeyPrefix+scope, hash); err != nil {
		return err
	}
	return s.ds.SaveToFile()
}
