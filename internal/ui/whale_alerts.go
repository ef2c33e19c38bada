package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ledgerpulse/engine/internal/detector"
	"github.com/ledgerpulse/engine/internal/store"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// WhaleAlertsView lists whale payments, newest first.
type WhaleAlertsView struct {
	list     *tview.List
	whales   []store.WhaleEvent
	summary  detector.WhaleSummary
	maxItems int
}

// NewWhaleAlertsView creates a new whale alerts view.
func NewWhaleAlertsView() *WhaleAlertsView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🐋 Whale Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	v := &WhaleAlertsView{
		list:     list,
		whales:   make([]store.WhaleEvent, 0, 50),
		maxItems: 50,
	}
	v.rebuildList()
	return v
}

// Widget returns the tview primitive.
func (v *WhaleAlertsView) Widget() tview.Primitive {
	return v.list
}

// AddWhales prepends evs, which arrive oldest first.
func (v *WhaleAlertsView) AddWhales(evs []store.WhaleEvent) {
	if len(evs) == 0 {
		return
	}
	for _, ev := range evs {
		v.whales = append([]store.WhaleEvent{ev}, v.whales...)
	}
	if len(v.whales) > v.maxItems {
		v.whales = v.whales[:v.maxItems]
	}
	v.rebuildList()
}

// SetSummary updates the 24h totals shown in the title.
func (v *WhaleAlertsView) SetSummary(s detector.WhaleSummary) {
	v.summary = s
	v.list.SetTitle(whaleTitle(s))
}

// Refresh redraws the list.
func (v *WhaleAlertsView) Refresh() {
	v.rebuildList()
}

func (v *WhaleAlertsView) rebuildList() {
	v.list.Clear()

	if len(v.whales) == 0 {
		v.list.AddItem("No whales detected yet", "", 0, nil)
	}

	for _, ev := range v.whales {
		title, secondary := formatWhale(ev)
		v.list.AddItem(title, secondary, 0, nil)
	}
	v.list.SetTitle(whaleTitle(v.summary))
}

func whaleTitle(s detector.WhaleSummary) string {
	if s.Count == 0 {
		return " 🐋 Whale Alerts | 24h: none "
	}
	return fmt.Sprintf(" 🐋 Whale Alerts | 24h: %d moved %s XRP, largest %s XRP %s ",
		s.Count, formatXRP(s.TotalMoved), formatXRP(s.Largest), sparkline(s.Hourly))
}

// sparkline draws one block per hour scaled to the busiest hour.
func sparkline(hours []detector.HourlyVolume) string {
	var peak uint64
	for _, h := range hours {
		if h.Volume > peak {
			peak = h.Volume
		}
	}

	var b strings.Builder
	for _, h := range hours {
		idx := 0
		if peak > 0 {
			idx = int(h.Volume * uint64(len(sparkBlocks)-1) / peak)
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

func formatWhale(ev store.WhaleEvent) (string, string) {
	tx := ev.Transaction
	title := fmt.Sprintf("%s [blue]%s XRP[-]", tx.ObservedAt.Local().Format("15:04:05"), formatXRP(tx.Amount))
	secondary := fmt.Sprintf("%s -> %s | %s",
		accountName(tx.Source, ev.SourceLabel),
		accountName(tx.Destination, ev.DestinationLabel),
		truncateHash(tx.ID))
	return title, secondary
}

func accountName(addr, label string) string {
	if label != "" {
		return label
	}
	return truncateAddress(addr)
}

// truncateAddress truncates an account address for display.
func truncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}
