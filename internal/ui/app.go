// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ledgerpulse/engine/internal/publish"
)

// App is the main TUI application. It renders every update from a single
// publisher subscription.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	windowOverview *WindowOverviewView
	whaleAlerts    *WhaleAlertsView
	liveFeed       *LiveFeedView
	statsDashboard *StatsDashboardView
	topSenders     *TopSendersView

	sub    *publish.Subscription
	onQuit func()
	last   publish.Update
}

// NewApp creates a TUI reading from sub. onQuit runs when the user presses
// q or Ctrl-C; it should cancel the engine context.
func NewApp(sub *publish.Subscription, onQuit func()) *App {
	a := &App{
		app:    tview.NewApplication(),
		sub:    sub,
		onQuit: onQuit,
	}

	a.windowOverview = NewWindowOverviewView()
	a.whaleAlerts = NewWhaleAlertsView()
	a.liveFeed = NewLiveFeedView()
	a.statsDashboard = NewStatsDashboardView()
	a.topSenders = NewTopSendersView()

	a.setupLayout()
	a.setupKeyboard()
	return a
}

// setupLayout creates the 5-panel layout.
func (a *App) setupLayout() {
	// Top row: Window Overview (left) | Whale Alerts (right)
	topRow := tview.NewFlex().
		AddItem(a.windowOverview.Widget(), 0, 1, false).
		AddItem(a.whaleAlerts.Widget(), 0, 2, false)

	middleRow := a.liveFeed.Widget()

	// Bottom row: Stats Dashboard (left) | Top Senders (right)
	bottomRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.topSenders.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 2, false).
		AddItem(middleRow, 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.quit()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.quit()
				return nil
			case 'r', 'R':
				a.refresh()
				return nil
			}
		}
		return event
	})
}

// Run draws the dashboard until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	go a.consume(ctx)
	go func() {
		<-ctx.Done()
		a.app.Stop()
	}()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

func (a *App) quit() {
	if a.onQuit != nil {
		a.onQuit()
	}
	a.app.Stop()
}

// consume forwards updates to the draw loop.
func (a *App) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-a.sub.Updates():
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.last = u
				a.render(u)
			})
		}
	}
}

// render must run on the draw goroutine.
func (a *App) render(u publish.Update) {
	a.whaleAlerts.AddWhales(u.Whales)
	a.redraw(u)
}

// refresh redraws the last update without replaying its whales.
func (a *App) refresh() {
	a.whaleAlerts.Refresh()
	a.redraw(a.last)
}

func (a *App) redraw(u publish.Update) {
	a.whaleAlerts.SetSummary(u.WhaleSummary)
	a.windowOverview.Update(u)
	a.liveFeed.Update(u.Snapshot)
	a.statsDashboard.Update(u)
	a.topSenders.Update(u.Snapshot)
}
