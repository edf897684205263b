package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/poller"
	"github.com/dmitrijs2005/opentrace-console/internal/client/session"
	"github.com/dmitrijs2005/opentrace-console/internal/client/views"
)

var errNoView = errors.New("no view is open")

// open replaces the active view. The previous one is closed first so that
// its late results are never printed.
func (a *App) open(name session.View, mk func() view) {
	a.stopView()
	v := mk()
	a.mu.Lock()
	a.active, a.activeName = v, name
	a.mu.Unlock()
}

func (a *App) stopView() {
	a.mu.Lock()
	v := a.active
	a.active, a.activeName = nil, ""
	a.mu.Unlock()
	if v != nil {
		v.Close()
	}
}

func (a *App) activeView() (view, session.View) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, a.activeName
}

// Dashboard opens the 24h summary of the selected resource.
func (a *App) Dashboard(ctx context.Context) error {
	a.open(session.ViewDashboard, func() view {
		return views.NewDashboard(a.api, a.registry, func(st poller.State[*models.DashboardStats]) {
			a.write(renderDashboard(st))
		}, a.logger)
	})
	return nil
}

// Live opens the real-time feed. It refreshes every LiveInterval.
func (a *App) Live(ctx context.Context) error {
	a.open(session.ViewLive, func() view {
		return views.NewLive(a.api, a.registry, a.config.LiveInterval, func(st poller.State[*models.LiveFeed]) {
			a.write(renderLive(st))
		}, a.logger)
	})
	return nil
}

// Analytics opens the explorer or changes its range when it is already
// open. Only the 24h range is polled.
func (a *App) Analytics(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("analytics")
	}
	dr, err := views.ParseDateRange(args[0], args[1:]...)
	if err != nil {
		return err
	}

	if v, name := a.activeView(); name == session.ViewAnalytics {
		v.(*views.Analytics).SetRange(dr)
		return nil
	}

	a.open(session.ViewAnalytics, func() view {
		return views.NewAnalytics(a.api, a.registry, dr, a.config.AnalyticsInterval, func(st poller.State[*models.Exploration]) {
			a.write(renderExploration(st))
		}, a.logger)
	})
	return nil
}

// Funnels lists the funnels of the selected resource.
func (a *App) Funnels(ctx context.Context) error {
	a.open(session.ViewFunnels, func() view {
		return views.NewFunnels(a.api, a.registry, func(st poller.State[[]models.Funnel]) {
			a.write(renderFunnels(st))
		}, a.logger)
	})
	return nil
}

// Retention opens the cohort table, by default for the last 30 days, or
// changes its window when it is already open.
func (a *App) Retention(ctx context.Context, args []string) error {
	dr := views.DateRange{Range: views.Range30d}
	if len(args) > 0 {
		var err error
		if dr, err = views.ParseDateRange(args[0], args[1:]...); err != nil {
			return err
		}
	}

	if v, name := a.activeView(); name == session.ViewRetention {
		v.(*views.Retention).SetRange(dr)
		return nil
	}

	a.open(session.ViewRetention, func() view {
		return views.NewRetention(a.api, a.registry, dr, func(st poller.State[*models.RetentionReport]) {
			a.write(renderRetention(st))
		}, a.logger)
	})
	return nil
}

// Monitor shows the backend host's load every MonitorInterval.
func (a *App) Monitor(ctx context.Context) error {
	a.open(session.ViewMonitor, func() view {
		return views.NewMonitor(a.api, a.config.MonitorInterval, func(st poller.State[*models.SystemMonitor]) {
			a.write(renderMonitor(st))
		}, a.logger)
	})
	return nil
}

// Refresh refetches the active view, keeping what is shown meanwhile.
func (a *App) Refresh(ctx context.Context) error {
	v, _ := a.activeView()
	if v == nil {
		return errNoView
	}
	v.Refresh()
	return nil
}

// Stop closes the active view.
func (a *App) Stop(ctx context.Context) error {
	if v, _ := a.activeView(); v == nil {
		return errNoView
	}
	a.stopView()
	return nil
}
