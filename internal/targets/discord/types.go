package discord

import (
	"github.com/bwmarrin/discordgo"

	"herald/internal/config"
	"herald/internal/types"
)

// Discord rejects webhook messages carrying more than ten embeds.
const MaxEmbedsPerMessage = 10

const maxTitleLength = 256

func EmbedFrom(item *types.Item, color int) *discordgo.MessageEmbed {
	title := item.Title
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength-3]) + "..."
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
		URL:   item.Link,
		Color: color,
	}

	if item.Author != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: item.Author}
	}

	if item.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: item.ImageURL}
	}

	return embed
}

// Chunk splits list into consecutive groups of at most size, preserving
// order.
func Chunk[T any](list []T, size int) [][]T {
	if size <= 0 || size > MaxEmbedsPerMessage {
		size = MaxEmbedsPerMessage
	}

	chunks := make([][]T, 0, (len(list)+size-1)/size)
	for start := 0; start < len(list); start += size {
		end := start + size
		if end > len(list) {
			end = len(list)
		}
		chunks = append(chunks, list[start:end])
	}
	return chunks
}

func embedParams(cfg config.SourceConfig, embeds []*discordgo.MessageEmbed) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Username:  cfg.Username,
		AvatarURL: cfg.UserImage,
		Embeds:    embeds,
	}
}

func contentParams(cfg config.SourceConfig, content string) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Username:  cfg.Username,
		AvatarURL: cfg.UserImage,
		Content:   content,
	}
}
