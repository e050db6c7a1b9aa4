package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"statusbot/internal/transport"
)

const (
	ChartKindStatus = "status"
	ChartFileName   = "status-graph.png"
)

// Renderer builds the text part of a report.
type Renderer interface {
	RenderText(sum Summary, s Settings, now time.Time) transport.Embed
}

// TextRenderer is the default Renderer.
type TextRenderer struct{}

func (TextRenderer) RenderText(sum Summary, s Settings, now time.Time) transport.Embed {
	cls := sum.Classify()
	up := len(sum.ServicesUp)

	operational := "None"
	if up > 0 {
		lines := make([]string, 0, up)
		for _, r := range sum.ServicesUp {
			lines = append(lines, fmt.Sprintf("`%s` • %dms • %.2f%% uptime", r.Name, r.ResponseTimeMs, r.UptimePct()))
		}
		operational = strings.Join(lines, "\n")
	}

	outages := "No outages detected"
	if len(sum.ServicesDown) > 0 {
		lines := make([]string, 0, len(sum.ServicesDown))
		for _, r := range sum.ServicesDown {
			lines = append(lines, fmt.Sprintf("`%s` • Down for: %s", r.Name, Downtime(r.LastCheckedAt, now)))
		}
		outages = strings.Join(lines, "\n")
	}

	metrics := strings.Join([]string{
		fmt.Sprintf("• Response Time: `%dms`", int64(math.Round(finite(sum.AvgResponseTimeMs)))),
		fmt.Sprintf("• Degraded Services: `%d`", sum.DegradedCount),
		fmt.Sprintf("• Hourly Checks: `%d`", sum.ChecksLastHourCount),
		fmt.Sprintf("• System Uptime: `%.2f%%`", finite(sum.AggregateUptimePct)),
	}, "\n")

	return transport.Embed{
		Title:        "📊 Live Service Status",
		Color:        StatusColor(cls),
		ThumbnailURL: s.ThumbnailURL,
		Fields: []transport.EmbedField{
			{Name: StatusEmoji(cls) + " Status: ", Value: StatusMessage(cls, up, sum.TotalCount)},
			{Name: "🟢 Operational Services", Value: operational},
			{Name: "🔴 Service Outages", Value: outages},
			{Name: "📈 Real-Time Metrics", Value: metrics},
		},
		Footer:    s.footer() + " • Live Updates",
		Timestamp: now,
	}
}

func StatusColor(c Classification) string {
	switch c {
	case AllUp:
		return "#00ff00"
	case AllDown:
		return "#ff0000"
	default:
		return "#ffaa00"
	}
}

func StatusEmoji(c Classification) string {
	switch c {
	case AllUp:
		return "🟢"
	case AllDown:
		return "🔴"
	default:
		return "🟡"
	}
}

func StatusMessage(c Classification, up, total int) string {
	switch c {
	case AllUp:
		return "All Systems Operational"
	case AllDown:
		return "Major System Outage"
	default:
		return fmt.Sprintf("Partial Outage (%d/%d Online)", up, total)
	}
}

// Downtime formats the time since lastChecked as "Hh Mm" or "Mm".
func Downtime(lastChecked, now time.Time) string {
	if lastChecked.IsZero() {
		return "unknown"
	}
	minutes := int64(now.Sub(lastChecked) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
