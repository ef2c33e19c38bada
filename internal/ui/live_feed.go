package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/store"
)

var liveFeedHeaders = []string{"Time", "Hash", "From", "To", "Amount (XRP)", "Via"}

// LiveFeedView shows the newest payments in the window.
type LiveFeedView struct {
	table   *tview.Table
	maxRows int
}

// NewLiveFeedView creates a new live feed view.
func NewLiveFeedView() *LiveFeedView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Live Payments ").SetBorder(true)
	setHeader(table, liveFeedHeaders)

	return &LiveFeedView{table: table, maxRows: 100}
}

// Widget returns the tview primitive.
func (v *LiveFeedView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the table from snap.
func (v *LiveFeedView) Update(snap store.WindowSnapshot) {
	v.table.Clear()
	setHeader(v.table, liveFeedHeaders)

	for i, tx := range newestFirst(snap.Events, v.maxRows) {
		cells := []string{
			tx.ObservedAt.Local().Format("15:04:05"),
			truncateHash(tx.ID),
			accountName(tx.Source, detector.LabelFor(tx.Source)),
			accountName(tx.Destination, detector.LabelFor(tx.Destination)),
			formatXRP(tx.Amount),
			tx.Transport.String(),
		}
		for col, text := range cells {
			v.table.SetCell(i+1, col, tview.NewTableCell(text).SetAlign(tview.AlignLeft))
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Live Payments (%d in window) ", snap.Count))
}

// newestFirst returns at most limit events in reverse time order.
func newestFirst(events []store.Transaction, limit int) []store.Transaction {
	n := min(len(events), limit)
	out := make([]store.Transaction, 0, n)
	for i := len(events) - 1; i >= len(events)-n; i-- {
		out = append(out, events[i])
	}
	return out
}

func setHeader(table *tview.Table, headers []string) {
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}
}
