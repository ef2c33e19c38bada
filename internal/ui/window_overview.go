package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/publish"
)

// WindowOverviewView displays the sliding window aggregates.
type WindowOverviewView struct {
	textView *tview.TextView
}

// NewWindowOverviewView creates a new window overview view.
func NewWindowOverviewView() *WindowOverviewView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Rolling Window ").SetBorder(true)

	return &WindowOverviewView{textView: textView}
}

// Widget returns the tview primitive.
func (v *WindowOverviewView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the view with the window in u.
func (v *WindowOverviewView) Update(u publish.Update) {
	v.textView.Clear()
	fmt.Fprint(v.textView, formatWindow(u))

	title := fmt.Sprintf(" Rolling Window (%s) ", formatDuration(u.Snapshot.WindowEnd.Sub(u.Snapshot.WindowStart)))
	if u.Stale {
		title = " Rolling Window [red](stale)[-] "
	}
	v.textView.SetTitle(title)
}

func formatWindow(u publish.Update) string {
	snap := u.Snapshot
	if snap.WindowEnd.IsZero() {
		return "Waiting for first update..."
	}

	staleNote := ""
	if u.Stale {
		staleNote = "\n[red]Feed interrupted, showing last known window[-]"
	}

	return fmt.Sprintf(`[yellow]Payments[-]   %d
[yellow]Volume[-]     %s XRP
[yellow]Largest[-]    %s XRP
[yellow]Rate[-]       %.2f tx/s
[yellow]Span[-]       %s - %s%s`,
		snap.Count,
		formatXRP(snap.VolumeInWindow),
		formatXRP(snap.MaxAmountInWindow),
		snap.ThroughputPerSecond,
		snap.WindowStart.Local().Format("15:04:05"),
		snap.WindowEnd.Local().Format("15:04:05"),
		staleNote,
	)
}

// formatXRP renders drops as whole XRP with thousands separators.
func formatXRP(drops uint64) string {
	return groupThousands(ingest.WholeXRP(drops))
}

func groupThousands(n uint64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
