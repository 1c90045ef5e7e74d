package command

import "github.com/bwmarrin/discordgo"

const (
	EmbedColor   = 0xb01e66
	ErrorColor   = 0xe74c3c
	SuccessColor = 0x2ecc71
)

func RespondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
}

func RespondEmbedEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// RespondError replies ephemerally with a red embed.
func RespondError(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) error {
	return RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{
		Title:       "❌ Error",
		Description: msg,
		Color:       ErrorColor,
	})
}

// RespondDeferred acknowledges an interaction without an immediate reply.
func RespondDeferred(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// EditResponseEmbed replaces the (deferred) interaction response.
func EditResponseEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components ...discordgo.MessageComponent) (*discordgo.Message, error) {
	embeds := []*discordgo.MessageEmbed{embed}
	edit := &discordgo.WebhookEdit{Embeds: &embeds}
	if components != nil {
		edit.Components = &components
	}
	return s.InteractionResponseEdit(i.Interaction, edit)
}

// UpdateComponentMessage rewrites the message a pressed button belongs to.
func UpdateComponentMessage(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	data := &discordgo.InteractionResponseData{Components: components}
	if embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if components == nil {
		data.Components = []discordgo.MessageComponent{}
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
}

// User returns the interaction author in guilds and DMs alike.
func User(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}
