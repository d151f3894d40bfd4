package notify

import (
	"fmt"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// FormatEvent renders an event for chat display.
func FormatEvent(ev Event) FormattedEvent {
	switch ev.Kind {
	case KindBlockCreated:
		return FormattedEvent{
			Title:    "Assistant run started",
			Body:     ev.Detail,
			Severity: "info",
			Color:    ColorInfo,
			Fields: []Field{
				{Name: "Project", Value: ev.ProjectID, Short: true},
				{Name: "Block", Value: shortID(ev.BlockID), Short: true},
			},
		}
	case KindBlockCompleted:
		return FormattedEvent{
			Title:    "Assistant run completed",
			Body:     ev.Detail,
			Severity: "success",
			Color:    ColorSuccess,
			Fields: []Field{
				{Name: "Project", Value: ev.ProjectID, Short: true},
				{Name: "Block", Value: shortID(ev.BlockID), Short: true},
			},
		}
	case KindStatusChanged:
		severity := "info"
		if ev.Status == "error" {
			severity = "error"
		}
		return FormattedEvent{
			Title:    fmt.Sprintf("Project status: %s", ev.Status),
			Body:     ev.Detail,
			Severity: severity,
			Color:    severityColor(severity),
			Fields: []Field{
				{Name: "Project", Value: ev.ProjectID, Short: true},
				{Name: "Status", Value: ev.Status, Short: true},
			},
		}
	default:
		return FormattedEvent{
			Title:    ev.Kind,
			Body:     ev.Detail,
			Severity: "info",
			Color:    ColorInfo,
		}
	}
}

// FormatDigest renders an activity summary for the periodic digest.
func FormatDigest(period string, sum store.ActivitySummary) FormattedEvent {
	body := fmt.Sprintf("%d assistant runs completed\n%d input / %d output tokens\n$%.2f total cost",
		sum.Blocks, sum.InputTokens, sum.OutputTokens, sum.CostUSD)

	return FormattedEvent{
		Title:    fmt.Sprintf("BeeSwarm %s digest", period),
		Body:     body,
		Severity: "info",
		Color:    ColorInfo,
		Fields: []Field{
			{Name: "Runs", Value: fmt.Sprintf("%d", sum.Blocks), Short: true},
			{Name: "Cost", Value: fmt.Sprintf("$%.2f", sum.CostUSD), Short: true},
		},
	}
}

// shortID abbreviates a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
