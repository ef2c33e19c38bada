package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/store"
)

// StatsDashboardView displays connection health and lifetime counters.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{textView: textView}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(u publish.Update) {
	v.textView.Clear()
	fmt.Fprint(v.textView, formatStats(u))
}

func formatStats(u publish.Update) string {
	feed := u.Feed
	h := u.Health

	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = "-"
	}
	source := "stream"
	if h.Polling {
		source = "polling"
	}

	return fmt.Sprintf(`[yellow]Connection[-]
State: [%s]%s[-] (%s)
Endpoint: %s
Reconnects: %d
Last poll: %s

[yellow]Feed[-]
Uptime: %s
Messages: %d (%.2f/s)
Accepted: %d  Duplicates: %d
Rejected: %d
Whales: %d

[yellow]Lifetime[-]
Volume: %s XRP
Largest: %s XRP
Unique accounts: ~%d
`,
		stateColor(h.State), h.State, source,
		endpoint,
		h.Reconnects,
		formatTimeAgo(h.LastPollAt),
		formatDuration(feed.Uptime),
		feed.MessagesTotal, feed.MessageRate,
		feed.Accepted, feed.Duplicates,
		feed.RejectedTotal,
		feed.Whales,
		formatXRP(feed.LifetimeVolume),
		formatXRP(feed.LargestEver),
		feed.UniqueAccounts,
	)
}

func stateColor(s store.ConnectionState) string {
	switch s {
	case store.StateLive:
		return "green"
	case store.StateDegraded, store.StateConnecting:
		return "yellow"
	default:
		return "red"
	}
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
