package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/music/fallback"
)

// VoiceTransport joins voice channels on the bot's own gateway session for
// local playback.
type VoiceTransport struct {
	dg *discordgo.Session
}

var _ fallback.Transport = (*VoiceTransport)(nil)

func NewVoiceTransport(dg *discordgo.Session) *VoiceTransport {
	return &VoiceTransport{dg: dg}
}

func (t *VoiceTransport) Join(ctx context.Context, guildID, channelID string) (fallback.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := t.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	return &voiceConn{vc: vc}, nil
}

type voiceConn struct {
	vc *discordgo.VoiceConnection
}

func (c *voiceConn) Speaking(on bool) error { return c.vc.Speaking(on) }

func (c *voiceConn) SendOpus(ctx context.Context, frame []byte) error {
	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *voiceConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *voiceConn) Disconnect() error { return c.vc.Disconnect() }
