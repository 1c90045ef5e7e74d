package music

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"nabra/internal/command"
	"nabra/internal/music/playback"
	"nabra/internal/music/player"
	"nabra/internal/music/track"
)

const (
	queuePageSize  = 10
	progressLength = 20
)

func trackLink(t track.Track) string {
	if t.URI == "" {
		return "**" + t.Title + "**"
	}
	return fmt.Sprintf("**[%s](%s)**", t.Title, t.URI)
}

func trackLine(t track.Track) string {
	line := trackLink(t)
	if t.Author != "" {
		line += "\n🎤 " + t.Author
	}
	return line + " • " + durationLabel(t)
}

func durationLabel(t track.Track) string {
	if t.IsLive {
		return "🔴 Live"
	}
	return track.FormatDuration(t.Duration)
}

// ProgressBar renders pos within dur as a fixed width bar.
func ProgressBar(pos, dur time.Duration) string {
	filled := 0
	if dur > 0 {
		filled = int(float64(pos) / float64(dur) * progressLength)
	}
	filled = min(max(filled, 0), progressLength)
	return strings.Repeat("▬", filled) + "🔘" + strings.Repeat("▬", progressLength-filled)
}

// PlayResultEmbed describes what a /play did.
func PlayResultEmbed(res *player.PlayResult) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Color: command.EmbedColor, Thumbnail: thumbnail(res.Track)}
	switch {
	case res.PlaylistSize > 0:
		name := res.PlaylistName
		if name == "" {
			name = "Playlist"
		}
		e.Title = "📃 Playlist Added"
		e.Description = fmt.Sprintf("**%s**\nQueued **%d** tracks, starting with %s", name, res.PlaylistSize, trackLink(res.Track))
	case res.QueuePosition == 0:
		e.Title = "🎶 Now Playing"
		e.Description = trackLine(res.Track)
	default:
		e.Title = "➕ Added to Queue"
		e.Description = trackLine(res.Track)
		e.Fields = []*discordgo.MessageEmbedField{
			{Name: "Position", Value: "#" + strconv.Itoa(res.QueuePosition), Inline: true},
		}
	}
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Backend: " + res.Backend.String()}
	return e
}

// NowPlayingEmbed renders the current track with its progress.
func NowPlayingEmbed(snap playback.Snapshot) *discordgo.MessageEmbed {
	cur := snap.Current
	if cur == nil {
		return &discordgo.MessageEmbed{Description: "Nothing is playing right now.", Color: command.ErrorColor}
	}
	total := "Live"
	if !cur.IsLive {
		total = track.FormatDuration(cur.Duration)
	}
	title := "🎶 Now Playing"
	if snap.State == playback.StatePaused {
		title = "⏸️ Paused"
	}
	e := &discordgo.MessageEmbed{
		Title:       title,
		Description: trackLink(*cur),
		Color:       command.EmbedColor,
		Thumbnail:   thumbnail(*cur),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👤 Artist", Value: orUnknown(cur.Author), Inline: true},
			{Name: "⏱️ Duration", Value: total, Inline: true},
			{Name: "🔊 Volume", Value: strconv.Itoa(snap.Volume) + "%", Inline: true},
			{Name: "🔁 Repeat", Value: snap.Repeat.String(), Inline: true},
		},
	}
	if !cur.IsLive {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "📊 Progress",
			Value: fmt.Sprintf("%s\n%s / %s", ProgressBar(snap.Position, cur.Duration), track.FormatDuration(snap.Position), total),
		})
	}
	if cur.RequesterID != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: "<@" + cur.RequesterID + ">", Inline: true})
	}
	if len(snap.Upcoming) > 0 {
		next := snap.Upcoming[0]
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "📜 Up Next",
			Value: fmt.Sprintf("**%s**\n%d more in queue", next.Title, len(snap.Upcoming)-1),
		})
	}
	return e
}

// QueuePages is the number of pages needed for n upcoming tracks.
func QueuePages(n int) int {
	return max(1, (n+queuePageSize-1)/queuePageSize)
}

// QueueEmbed renders one page of the queue; page is clamped.
func QueueEmbed(snap playback.Snapshot, page int) (*discordgo.MessageEmbed, int) {
	pages := QueuePages(len(snap.Upcoming))
	page = min(max(page, 0), pages-1)

	e := &discordgo.MessageEmbed{Title: "📜 Music Queue", Color: command.EmbedColor}
	if snap.Current != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "🎵 Now Playing", Value: trackLine(*snap.Current)})
	}

	if len(snap.Upcoming) == 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "📜 Up Next", Value: "No tracks in queue"})
		return e, page
	}

	start := page * queuePageSize
	end := min(start+queuePageSize, len(snap.Upcoming))
	lines := make([]string, 0, end-start)
	for i, t := range snap.Upcoming[start:end] {
		lines = append(lines, fmt.Sprintf("**%d.** %s", start+i+1, trackLine(t)))
	}
	plural := "s"
	if len(snap.Upcoming) == 1 {
		plural = ""
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("📜 Up Next (%d track%s)", len(snap.Upcoming), plural),
		Value: strings.Join(lines, "\n\n"),
	})

	var total time.Duration
	for _, t := range snap.Upcoming {
		if !t.IsLive {
			total += t.Duration
		}
	}
	e.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Total queue time: %s • Page %d/%d • Repeat: %s", track.FormatDuration(total), page+1, pages, snap.Repeat),
	}
	return e, page
}

// queueButtons renders the pager; custom ids carry the target page.
func queueButtons(page, pages int) []discordgo.MessageComponent {
	if pages <= 1 {
		return nil
	}
	id := func(p int) string { return "queue:page:" + strconv.Itoa(p) }
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{CustomID: id(0), Emoji: &discordgo.ComponentEmoji{Name: "⏮️"}, Style: discordgo.SecondaryButton, Disabled: page == 0},
		discordgo.Button{CustomID: id(page - 1), Emoji: &discordgo.ComponentEmoji{Name: "◀️"}, Style: discordgo.PrimaryButton, Disabled: page == 0},
		discordgo.Button{CustomID: "queue:label", Label: fmt.Sprintf("Page %d/%d", page+1, pages), Style: discordgo.SecondaryButton, Disabled: true},
		discordgo.Button{CustomID: id(page + 1), Emoji: &discordgo.ComponentEmoji{Name: "▶️"}, Style: discordgo.PrimaryButton, Disabled: page >= pages-1},
		discordgo.Button{CustomID: id(pages - 1), Emoji: &discordgo.ComponentEmoji{Name: "⏭️"}, Style: discordgo.SecondaryButton, Disabled: page >= pages-1},
	}}}
}

func thumbnail(t track.Track) *discordgo.MessageEmbedThumbnail {
	if t.ThumbnailURL == "" {
		return nil
	}
	return &discordgo.MessageEmbedThumbnail{URL: t.ThumbnailURL}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// TrackStartedEmbed is posted to the text channel when a track begins.
func TrackStartedEmbed(t track.Track) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		Description: trackLine(t),
		Color:       command.EmbedColor,
		Thumbnail:   thumbnail(t),
	}
	if t.RequesterID != "" {
		e.Fields = []*discordgo.MessageEmbedField{{Name: "Requested by", Value: "<@" + t.RequesterID + ">", Inline: true}}
	}
	if t.SourceName != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Source: " + t.SourceName}
	}
	return e
}

func QueueEndedEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎵 Queue Ended",
		Description: "The queue has finished playing.",
		Color:       command.EmbedColor,
	}
}
