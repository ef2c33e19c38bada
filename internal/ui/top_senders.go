package ui

import (
	"fmt"
	"sort"

	"github.com/rivo/tview"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/store"
)

var topSendersHeaders = []string{"Account", "Payments", "Volume (XRP)"}

// senderActivity aggregates one source account inside the window.
type senderActivity struct {
	Account string
	Count   int
	Volume  uint64
}

// TopSendersView ranks source accounts by volume moved in the window.
type TopSendersView struct {
	table *tview.Table
	limit int
}

// NewTopSendersView creates a new top senders view.
func NewTopSendersView() *TopSendersView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Senders ").SetBorder(true)
	setHeader(table, topSendersHeaders)

	return &TopSendersView{table: table, limit: 10}
}

// Widget returns the tview primitive.
func (v *TopSendersView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the ranking from snap.
func (v *TopSendersView) Update(snap store.WindowSnapshot) {
	v.table.Clear()
	setHeader(v.table, topSendersHeaders)

	senders := topSenders(snap.Events, v.limit)
	if len(senders) == 0 {
		cell := tview.NewTableCell("No data yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, s := range senders {
		row := i + 1
		v.table.SetCell(row, 0, tview.NewTableCell(accountName(s.Account, detector.LabelFor(s.Account))).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", s.Count)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 2, tview.NewTableCell(formatXRP(s.Volume)).SetAlign(tview.AlignRight))
	}
}

// topSenders groups events by source and returns the limit largest by
// volume. Ties break on payment count, then account.
func topSenders(events []store.Transaction, limit int) []senderActivity {
	byAccount := make(map[string]*senderActivity)
	for _, tx := range events {
		s, ok := byAccount[tx.Source]
		if !ok {
			s = &senderActivity{Account: tx.Source}
			byAccount[tx.Source] = s
		}
		s.Count++
		s.Volume += tx.Amount
	}

	out := make([]senderActivity, 0, len(byAccount))
	for _, s := range byAccount {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Account < out[j].Account
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
