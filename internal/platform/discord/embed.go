package discord

import (
	"github.com/bwmarrin/discordgo"

	"modbot/internal/report"
)

// Discord embed limits.
const (
	embedsPerMessage = 10
	maxTitle         = 256
	maxDescription   = 4096
	maxFields        = 25
	maxFieldName     = 256
	maxFieldValue    = 1024
	maxFooter        = 2048
)

// Embed renders a report as a Discord embed, truncated to Discord's limits.
func Embed(r report.Report) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       truncate(r.Title, maxTitle),
		URL:         r.URL,
		Color:       r.Color,
		Description: truncate(r.Description, maxDescription),
		Timestamp:   timestamp(r.Timestamp),
	}
	if r.Author.Name != "" {
		e.Author = &discordgo.MessageEmbedAuthor{Name: truncate(r.Author.Name, maxTitle), IconURL: r.Author.IconURL}
	}
	for i, f := range r.Fields {
		if i == maxFields {
			break
		}
		// empty names or values are rejected by the API
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   truncate(orBlank(f.Name), maxFieldName),
			Value:  truncate(orBlank(f.Value), maxFieldValue),
			Inline: f.Inline,
		})
	}
	if r.ImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: r.ImageURL}
	}
	if r.ThumbnailURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: r.ThumbnailURL}
	}
	if r.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: truncate(r.Footer, maxFooter)}
	}
	return e
}

// EmbedBatches renders reports in groups that fit one message each.
func EmbedBatches(reports []report.Report) [][]*discordgo.MessageEmbed {
	var out [][]*discordgo.MessageEmbed
	for start := 0; start < len(reports); start += embedsPerMessage {
		end := min(start+embedsPerMessage, len(reports))
		batch := make([]*discordgo.MessageEmbed, 0, end-start)
		for _, r := range reports[start:end] {
			batch = append(batch, Embed(r))
		}
		out = append(out, batch)
	}
	return out
}

func orBlank(s string) string {
	if s == "" {
		return "\u200b"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
