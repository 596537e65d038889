package report

import "strings"

// PlainText renders r for platforms without rich embeds.
func PlainText(r Report) string {
	var sb strings.Builder

	if r.Title != "" {
		sb.WriteString("*" + r.Title + "*")
		if r.Author.Name != "" {
			sb.WriteString(" (" + r.Author.Name + ")")
		}
		sb.WriteString("\n")
	} else if r.Author.Name != "" {
		sb.WriteString(r.Author.Name + "\n")
	}
	if r.Description != "" {
		sb.WriteString("> " + strings.ReplaceAll(r.Description, "\n", "\n> ") + "\n")
	}
	for _, f := range r.Fields {
		sb.WriteString(f.Name + ": " + f.Value + "\n")
	}
	if r.URL != "" {
		sb.WriteString(r.URL + "\n")
	}
	if r.ImageURL != "" {
		sb.WriteString(r.ImageURL + "\n")
	}
	if r.Footer != "" {
		sb.WriteString(r.Footer + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
