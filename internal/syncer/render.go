package syncer

import (
	"strings"

	"icstask/internal/models"
)

const (
	untitled      = "Untitled event"
	maxExtraRunes = 120
	ellipsis      = "..."
)

// Render builds the task payload for an event. Create and update send the
// same payload.
//
//	<summary> — @<location> | <description> (<marker><uid>)
func Render(ev models.Event, marker string) models.TaskPayload {
	return models.TaskPayload{
		Content: renderContent(ev, marker),
		Due:     ev.Start.Payload(),
	}
}

func renderContent(ev models.Event, marker string) string {
	var b strings.Builder

	summary := strings.TrimSpace(ev.Summary)
	if summary == "" {
		summary = untitled
	}
	b.WriteString(summary)

	var extras []string
	if ev.Location != "" {
		extras = append(extras, "@"+truncate(ev.Location))
	}
	if ev.Description != "" {
		extras = append(extras, truncate(ev.Description))
	}
	if len(extras) > 0 {
		b.WriteString(" — ")
		b.WriteString(strings.Join(extras, " | "))
	}

	b.WriteString(" (")
	b.WriteString(marker)
	b.WriteString(ev.UID)
	b.WriteString(")")
	return b.String()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxExtraRunes {
		return s
	}
	return string(r[:maxExtraRunes]) + ellipsis
}
