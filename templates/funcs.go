// Package templates renders text artifacts from Go templates: Dockerfiles for
// detected frameworks and human-readable deployment trace reports.
package templates

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"nexlayer.io/mcp/tracestore"
)

// FormatDuration renders a millisecond duration for display
//
//	850 -> "850ms", 1500 -> "1.5s", 125000 -> "2m 5s", 3725000 -> "1h 2m 5s"
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	duration := time.Duration(ms) * time.Millisecond
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return strings.TrimSuffix(humanize.FtoaWithDigits(duration.Seconds(), 1), ".0") + "s"
}

// StatusIcon returns a marker for a trace or step status
func StatusIcon(status tracestore.Status) string {
	switch status {
	case tracestore.StatusPending:
		return "⏳"
	case tracestore.StatusInProgress:
		return "🔄"
	case tracestore.StatusSuccess:
		return "✅"
	case tracestore.StatusFailed:
		return "❌"
	case tracestore.StatusSkipped:
		return "⏭️"
	default:
		return "❓"
	}
}

// funcMap builds the template functions; now anchors relative times
func funcMap(now time.Time) template.FuncMap {
	return template.FuncMap{
		"statusIcon": StatusIcon,
		"duration": func(ms *int64) string {
			if ms == nil {
				return "running"
			}
			return FormatDuration(*ms)
		},
		"ago": func(t time.Time) string {
			return humanize.RelTime(t, now, "ago", "from now")
		},
		"formatTime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04:05 UTC")
		},
		"inc": func(i int) int {
			return i + 1
		},
		"indent": func(spaces int, s string) string {
			pad := strings.Repeat(" ", spaces)
			return pad + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+pad)
		},
	}
}
