package alert

import (
	"fmt"
	"sort"
	"time"
)

// EventType identifies an operator-facing event.
type EventType string

// Event types.
const (
	EventMemberJoined    EventType = "member_joined"
	EventProvisionFailed EventType = "provision_failed"
	EventCleanupFailed   EventType = "cleanup_failed"
	EventSaveFailed      EventType = "save_failed"
)

// Field keys used in alert payloads.
const (
	FieldUser      = "user"
	FieldWorkspace = "workspace"
	FieldChannel   = "channel"
	FieldProject   = "project"
	FieldStep      = "step"
	FieldError     = "error"
	FieldPath      = "path"
)

type eventConfig struct {
	emoji string
	title string
}

var eventConfigs = map[EventType]eventConfig{
	EventMemberJoined:    {emoji: "👋", title: "Member Joined"},
	EventProvisionFailed: {emoji: "❌", title: "Workspace Setup Failed"},
	EventCleanupFailed:   {emoji: "🧹", title: "Workspace Cleanup Failed"},
	EventSaveFailed:      {emoji: "💾", title: "Registry Save Failed"},
}

// fieldOrder fixes the display order of known fields; unknown fields
// follow in key order.
var fieldOrder = []string{FieldUser, FieldWorkspace, FieldChannel, FieldProject, FieldStep, FieldPath, FieldError}

var fieldLabels = map[string]string{
	FieldUser:      "User",
	FieldWorkspace: "Workspace",
	FieldChannel:   "Channel",
	FieldProject:   "Project",
	FieldStep:      "Step",
	FieldPath:      "Path",
	FieldError:     "Error",
}

// formatMessage builds the webhook payload for an event.
func formatMessage(event EventType, fields map[string]string, now time.Time) *webhookMessage {
	cfg, ok := eventConfigs[event]
	if !ok {
		cfg = eventConfig{emoji: "📢", title: string(event)}
	}

	header := fmt.Sprintf("%s *%s*", cfg.emoji, cfg.title)
	blocks := []block{{Type: "section", Text: &text{Type: "mrkdwn", Text: header}}}

	if fieldBlocks := formatFields(fields); len(fieldBlocks) > 0 {
		blocks = append(blocks, block{Type: "section", Fields: fieldBlocks})
	}

	blocks = append(blocks, block{
		Type: "context",
		Fields: []text{
			{Type: "mrkdwn", Text: fmt.Sprintf("_wipbot • %s_", now.Format("Jan 2, 15:04 MST"))},
		},
	})

	return &webhookMessage{
		Text:   fmt.Sprintf("%s %s", cfg.emoji, cfg.title),
		Blocks: blocks,
	}
}

func formatFields(fields map[string]string) []text {
	var result []text
	seen := make(map[string]bool, len(fields))
	for _, k := range fieldOrder {
		seen[k] = true
		v := fields[k]
		if v == "" {
			continue
		}
		if k == FieldError {
			result = append(result, text{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n```%s```", fieldLabels[k], truncate(v, 200))})
			continue
		}
		result = append(result, text{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", fieldLabels[k], truncate(v, 100))})
	}

	var extra []string
	for k := range fields {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		if v := fields[k]; v != "" {
			result = append(result, text{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, truncate(v, 100))})
		}
	}
	return result
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
