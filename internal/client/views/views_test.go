package views

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/client/apitest"
	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/registry"
	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backend  *apitest.Backend
	client   *api.HTTPClient
	registry *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	b.SetResources(
		models.Resource{ID: 1, UID: "ot_web_a", Name: "Site"},
		models.Resource{ID: 2, UID: "ot_bot_b", Name: "Bot"},
	)
	b.Lock()
	b.Dashboard["ot_web_a"] = models.DashboardStats{Visitors: 10}
	b.Dashboard["ot_bot_b"] = models.DashboardStats{Visitors: 20}
	b.Live[1] = models.LiveFeed{Online: 1}
	b.Live[2] = models.LiveFeed{Online: 2}
	b.Unlock()

	c := api.NewHTTPClient(b.APIURL(), 2*time.Second,
		api.TokenFunc(func(context.Context) string { return "tok" }), logging.Discard())
	r := registry.New(c, storage.NewMemoryStore(), logging.Discard())
	require.NoError(t, r.Load(context.Background()))
	return &fixture{backend: b, client: c, registry: r}
}

func exploreQueries(b *apitest.Backend) []url.Values {
	var out []url.Values
	for _, r := range b.Requests() {
		if r.Path == "/api/analytics/explore" {
			q, _ := url.ParseQuery(r.Query)
			out = append(out, q)
		}
	}
	return out
}

func TestDashboard_FollowsSelection(t *testing.T) {
	f := newFixture(t)
	v := NewDashboard(f.client, f.registry, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool {
		s := v.State()
		return s.HasData && s.Data.Visitors == 10
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.registry.Select(context.Background(), 2))
	require.Eventually(t, func() bool { return v.State().Data.Visitors == 20 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, f.backend.Count("GET", "/api/dashboard/stats"), "dashboard does not poll")
}

func TestDashboard_NoSelection(t *testing.T) {
	f := newFixture(t)
	f.backend.SetResources()
	require.NoError(t, f.registry.Load(context.Background()))

	v := NewDashboard(f.client, f.registry, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool { return v.State().Err != nil }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, v.State().Err, ErrNoResource)
	require.Equal(t, 0, f.backend.Count("GET", "/api/dashboard/stats"))
}

func TestLive_PollsByNumericID(t *testing.T) {
	f := newFixture(t)
	v := NewLive(f.client, f.registry, 10*time.Millisecond, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool {
		return f.backend.Count("GET", "/api/analytics/live") >= 3
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, v.State().Data.Online)

	require.NoError(t, f.registry.Select(context.Background(), 2))
	require.Eventually(t, func() bool { return v.State().Data.Online == 2 }, time.Second, 5*time.Millisecond)

	for _, r := range f.backend.Requests() {
		if r.Path == "/api/analytics/live" {
			q, _ := url.ParseQuery(r.Query)
			require.Contains(t, []string{"1", "2"}, q.Get("resource_id"))
		}
	}
}

func TestAnalytics_LiveWindowPollsAndCustomStops(t *testing.T) {
	f := newFixture(t)
	v := NewAnalytics(f.client, f.registry, DateRange{Range: Range24h}, 10*time.Millisecond, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool { return len(exploreQueries(f.backend)) >= 3 }, time.Second, 5*time.Millisecond)
	q := exploreQueries(f.backend)[0]
	require.Equal(t, "ot_web_a", q.Get("resource_id"))

	v.SetRange(DateRange{Range: RangeCustom, Start: "2026-01-01", End: "2026-01-31"})
	require.Eventually(t, func() bool {
		s := v.State()
		return s.HasData && s.Data.Bounce == "2026-01-01..2026-01-31"
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	n := len(exploreQueries(f.backend))
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, n, len(exploreQueries(f.backend)), "custom range must not poll")

	v.SetRange(DateRange{Range: Range24h})
	require.Eventually(t, func() bool { return len(exploreQueries(f.backend)) >= n+2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, DateRange{Range: Range24h}, v.Range())
}

func TestAnalytics_IncompleteCustomDoesNotFetch(t *testing.T) {
	f := newFixture(t)
	v := NewAnalytics(f.client, f.registry, DateRange{Range: Range7d}, 10*time.Millisecond, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool { return v.State().HasData }, time.Second, 5*time.Millisecond)
	n := len(exploreQueries(f.backend))

	v.SetRange(DateRange{Range: RangeCustom, Start: "2026-01-01"})
	require.Eventually(t, func() bool { return v.State().Err != nil }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, v.State().Err, ErrRangeIncomplete)
	require.True(t, v.State().HasData, "previous data stays")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, len(exploreQueries(f.backend)))
}

func TestViews_UnauthorizedStopsPolling(t *testing.T) {
	f := newFixture(t)
	var fired atomic.Int32
	f.client.OnUnauthorized(func() { fired.Add(1) })

	v := NewLive(f.client, f.registry, 10*time.Millisecond, nil, logging.Discard())
	t.Cleanup(v.Close)
	require.Eventually(t, func() bool { return v.State().HasData }, time.Second, 5*time.Millisecond)

	f.backend.SetForceUnauthorized(true)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	n := f.backend.Count("GET", "/api/analytics/live")
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, n, f.backend.Count("GET", "/api/analytics/live"))
	require.NoError(t, v.State().Err)
}

func queriesFor(b *apitest.Backend, path string) []url.Values {
	var out []url.Values
	for _, r := range b.Requests() {
		if r.Path == path {
			q, _ := url.ParseQuery(r.Query)
			out = append(out, q)
		}
	}
	return out
}

func TestFunnels_FollowsSelectionByID(t *testing.T) {
	f := newFixture(t)
	f.backend.Lock()
	f.backend.Funnels[1] = []models.Funnel{{ID: 10, Name: "Signup"}}
	f.backend.Funnels[2] = []models.Funnel{{ID: 20, Name: "Start"}, {ID: 21, Name: "Pay"}}
	f.backend.Unlock()

	v := NewFunnels(f.client, f.registry, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool { return len(v.State().Data) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.registry.Select(context.Background(), 2))
	require.Eventually(t, func() bool { return len(v.State().Data) == 2 }, time.Second, 5*time.Millisecond)

	var ids []string
	for _, q := range queriesFor(f.backend, "/api/funnels") {
		ids = append(ids, q.Get("resource_id"))
	}
	require.Equal(t, []string{"1", "2"}, ids)
}

func TestRetention_ForwardsWindowAndRange(t *testing.T) {
	f := newFixture(t)
	v := NewRetention(f.client, f.registry, DateRange{Range: RangeCustom, Start: "2026-01-01", End: "2026-01-31"}, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool { return v.State().HasData }, time.Second, 5*time.Millisecond)
	q := queriesFor(f.backend, "/api/analytics/retention")[0]
	require.Equal(t, "1", q.Get("resource_id"))
	require.Equal(t, "2026-01-01", q.Get("date_from"))
	require.Equal(t, "2026-01-31", q.Get("date_to"))

	v.SetRange(DateRange{Range: RangeCustom, Start: "2026-02-01", End: "2026-02-28"})
	require.Eventually(t, func() bool {
		s := v.State()
		return len(s.Data.Cohorts) == 1 && s.Data.Cohorts[0].CohortDate == "2026-02-01..2026-02-28"
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "2026-02-01", v.Range().Start)

	v.SetRange(DateRange{Range: RangeCustom, Start: "2026-03-01"})
	require.Eventually(t, func() bool { return v.State().Err != nil }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, v.State().Err, ErrRangeIncomplete)

	time.Sleep(30 * time.Millisecond)
	require.Len(t, queriesFor(f.backend, "/api/analytics/retention"), 2, "retention does not poll")
}

func TestMonitor_PollsWithoutSelection(t *testing.T) {
	f := newFixture(t)
	f.backend.SetResources()
	require.NoError(t, f.registry.Load(context.Background()))
	f.backend.Lock()
	f.backend.Monitor = models.SystemMonitor{Status: "online", CPU: models.CPUStats{Cores: 8}}
	f.backend.Unlock()

	v := NewMonitor(f.client, 10*time.Millisecond, nil, logging.Discard())
	t.Cleanup(v.Close)

	require.Eventually(t, func() bool {
		return f.backend.Count("GET", "/api/system/monitor") >= 3
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 8, v.State().Data.CPU.Cores)
}
