// Package views binds the analytics screens to the resource selection.
//
// Each view owns one poller keyed by what its endpoint needs (resource uid,
// numeric id, date range) and re-keys it whenever the registry reports a new
// selection. Views never mutate the selection themselves. Monitor is the
// exception that is not bound to a resource.
package views

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/poller"
	"github.com/dmitrijs2005/opentrace-console/internal/client/registry"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
)

// ErrNoResource is the state error of a view with nothing selected.
var ErrNoResource = errors.New("no resource selected")

// Fetcher is the analytics part of the backend API.
type Fetcher interface {
	DashboardStats(ctx context.Context, uid string) (*models.DashboardStats, error)
	LiveFeed(ctx context.Context, id int64) (*models.LiveFeed, error)
	Explore(ctx context.Context, uid, start, end string) (*models.Exploration, error)
	ListFunnels(ctx context.Context, id int64) ([]models.Funnel, error)
	Retention(ctx context.Context, id int64, from, to string) (*models.RetentionReport, error)
	SystemMonitor(ctx context.Context) (*models.SystemMonitor, error)
}

// Selection is the read side of the registry. Watch delivers the current
// selection before any change.
type Selection interface {
	Selected() (models.Resource, bool)
	Watch(fn registry.Watcher) (cancel func())
}

// Base is shared by all views.
type Base[I comparable, T any] struct {
	poller  *poller.Poller[I, T]
	unwatch func()
}

func (b *Base[I, T]) State() poller.State[T] { return b.poller.State() }

func (b *Base[I, T]) Refresh() { b.poller.Refresh() }

// Close unsubscribes from the selection and stops polling.
func (b *Base[I, T]) Close() {
	if b.unwatch != nil {
		b.unwatch()
	}
	b.poller.Close()
}

// Dashboard shows the last 24 hours for the selected resource. It is keyed
// by uid and does not poll.
type Dashboard struct {
	Base[string, *models.DashboardStats]
}

func NewDashboard(f Fetcher, sel Selection, onChange func(poller.State[*models.DashboardStats]), logger logging.Logger) *Dashboard {
	v := &Dashboard{}
	v.poller = poller.New(poller.Config[string, *models.DashboardStats]{
		Name: "dashboard",
		Fetch: func(ctx context.Context, uid string) (*models.DashboardStats, error) {
			if uid == "" {
				return nil, ErrNoResource
			}
			return f.DashboardStats(ctx, uid)
		},
		OnChange: onChange,
		Logger:   logger,
	})
	v.unwatch = bind(sel, func(r models.Resource, ok bool) { v.poller.SetInputs(uidOf(r, ok)) })
	return v
}

// Live shows who is on the selected resource right now. It is keyed by the
// numeric id and polls every interval.
type Live struct {
	Base[int64, *models.LiveFeed]
}

func NewLive(f Fetcher, sel Selection, interval time.Duration, onChange func(poller.State[*models.LiveFeed]), logger logging.Logger) *Live {
	v := &Live{}
	v.poller = poller.New(poller.Config[int64, *models.LiveFeed]{
		Name: "live",
		Fetch: func(ctx context.Context, id int64) (*models.LiveFeed, error) {
			if id == 0 {
				return nil, ErrNoResource
			}
			return f.LiveFeed(ctx, id)
		},
		Interval: func(id int64) time.Duration {
			if id == 0 {
				return 0
			}
			return interval
		},
		OnChange: onChange,
		Logger:   logger,
	})
	v.unwatch = bind(sel, func(r models.Resource, ok bool) { v.poller.SetInputs(idOf(r, ok)) })
	return v
}

// AnalyticsKey is what the analytics view fetches for.
type AnalyticsKey struct {
	UID   string
	Range DateRange
}

// Analytics explores an arbitrary window. It polls only while the range is
// live (24h); custom ranges are fetched once per change, and only when both
// dates are set.
type Analytics struct {
	Base[AnalyticsKey, *models.Exploration]
	key keyState[AnalyticsKey]
}

func NewAnalytics(f Fetcher, sel Selection, dr DateRange, interval time.Duration, onChange func(poller.State[*models.Exploration]), logger logging.Logger) *Analytics {
	v := &Analytics{key: keyState[AnalyticsKey]{key: AnalyticsKey{Range: dr}}}
	v.poller = poller.New(poller.Config[AnalyticsKey, *models.Exploration]{
		Name: "analytics",
		Fetch: func(ctx context.Context, k AnalyticsKey) (*models.Exploration, error) {
			if k.UID == "" {
				return nil, ErrNoResource
			}
			start, end, err := k.Range.Window(time.Now())
			if err != nil {
				return nil, err
			}
			return f.Explore(ctx, k.UID, start, end)
		},
		Interval: func(k AnalyticsKey) time.Duration {
			if k.UID == "" || !k.Range.Live() {
				return 0
			}
			return interval
		},
		OnChange: onChange,
		Logger:   logger,
	})
	v.unwatch = bind(sel, func(r models.Resource, ok bool) {
		v.key.update(v.poller, func(k *AnalyticsKey) { k.UID = uidOf(r, ok) })
	})
	return v
}

// SetRange changes the date filter.
func (v *Analytics) SetRange(dr DateRange) {
	v.key.update(v.poller, func(k *AnalyticsKey) { k.Range = dr })
}

// Range returns the current date filter.
func (v *Analytics) Range() DateRange { return v.key.get().Range }

// Funnels lists the conversion funnels of the selected resource. It is keyed
// by the numeric id and refetched on selection change or refresh only.
type Funnels struct {
	Base[int64, []models.Funnel]
}

func NewFunnels(f Fetcher, sel Selection, onChange func(poller.State[[]models.Funnel]), logger logging.Logger) *Funnels {
	v := &Funnels{}
	v.poller = poller.New(poller.Config[int64, []models.Funnel]{
		Name: "funnels",
		Fetch: func(ctx context.Context, id int64) ([]models.Funnel, error) {
			if id == 0 {
				return nil, ErrNoResource
			}
			return f.ListFunnels(ctx, id)
		},
		OnChange: onChange,
		Logger:   logger,
	})
	v.unwatch = bind(sel, func(r models.Resource, ok bool) { v.poller.SetInputs(idOf(r, ok)) })
	return v
}

// RetentionKey is what the retention view fetches for.
type RetentionKey struct {
	ID    int64
	Range DateRange
}

// Retention shows cohort retention for the selected resource between two
// cohort dates. It does not poll.
type Retention struct {
	Base[RetentionKey, *models.RetentionReport]
	key keyState[RetentionKey]
}

func NewRetention(f Fetcher, sel Selection, dr DateRange, onChange func(poller.State[*models.RetentionReport]), logger logging.Logger) *Retention {
	v := &Retention{key: keyState[RetentionKey]{key: RetentionKey{Range: dr}}}
	v.poller = poller.New(poller.Config[RetentionKey, *models.RetentionReport]{
		Name: "retention",
		Fetch: func(ctx context.Context, k RetentionKey) (*models.RetentionReport, error) {
			if k.ID == 0 {
				return nil, ErrNoResource
			}
			from, to, err := k.Range.Window(time.Now())
			if err != nil {
				return nil, err
			}
			return f.Retention(ctx, k.ID, from, to)
		},
		OnChange: onChange,
		Logger:   logger,
	})
	v.unwatch = bind(sel, func(r models.Resource, ok bool) {
		v.key.update(v.poller, func(k *RetentionKey) { k.ID = idOf(r, ok) })
	})
	return v
}

// SetRange changes the cohort window.
func (v *Retention) SetRange(dr DateRange) {
	v.key.update(v.poller, func(k *RetentionKey) { k.Range = dr })
}

func (v *Retention) Range() DateRange { return v.key.get().Range }

// Monitor shows the backend host's load. It ignores the selection and
// polls every interval.
type Monitor struct {
	Base[struct{}, *models.SystemMonitor]
}

func NewMonitor(f Fetcher, interval time.Duration, onChange func(poller.State[*models.SystemMonitor]), logger logging.Logger) *Monitor {
	v := &Monitor{}
	v.poller = poller.New(poller.Config[struct{}, *models.SystemMonitor]{
		Name: "monitor",
		Fetch: func(ctx context.Context, _ struct{}) (*models.SystemMonitor, error) {
			return f.SystemMonitor(ctx)
		},
		Interval: func(struct{}) time.Duration { return interval },
		OnChange: onChange,
		Logger:   logger,
	})
	v.poller.SetInputs(struct{}{})
	return v
}

// keyState holds a composite poller key. sendMu keeps key updates and
// SetInputs calls in the same order.
type keyState[K comparable] struct {
	sendMu sync.Mutex
	mu     sync.Mutex
	key    K
}

func (s *keyState[K]) update(p interface{ SetInputs(K) }, fn func(*K)) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	fn(&s.key)
	k := s.key
	s.mu.Unlock()

	p.SetInputs(k)
}

func (s *keyState[K]) get() K {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func idOf(r models.Resource, ok bool) int64 {
	if !ok {
		return 0
	}
	return r.ID
}

func uidOf(r models.Resource, ok bool) string {
	if !ok {
		return ""
	}
	return r.UID
}

// bind applies the current selection and then every change to apply.
func bind(sel Selection, apply registry.Watcher) func() {
	return sel.Watch(apply)
}
