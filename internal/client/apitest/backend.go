// Package apitest runs an in-process fake of the OpenTrace REST backend for
// tests. It keeps resources, users and tracking entities in memory, records
// every request and lets tests force failures.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/gorilla/mux"
)

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

// Account is a login the fake accepts.
type Account struct {
	Password string
	Response models.LoginResponse
}

// Rule is a public tracking rule served by /v1/rules/{uid}.
type Rule struct {
	Name     string `json:"name"`
	Trigger  string `json:"trigger"`
	Selector string `json:"selector"`
}

// Backend is the fake server. Exported fields may be changed by tests at
// any time; access them through Lock/Unlock or the helper methods while
// requests are in flight.
type Backend struct {
	mu     sync.Mutex
	server *httptest.Server

	// Token is the bearer token accepted on protected routes. Empty accepts
	// any token.
	Token string
	// AdminPassword authorises password-gated deletes.
	AdminPassword string
	// ForceUnauthorized answers every protected route with 401.
	ForceUnauthorized bool
	// Down answers /health with 503.
	Down bool
	// Delay is applied to every analytics read before answering.
	Delay time.Duration

	Accounts  map[string]Account
	Resources []models.Resource
	Campaigns []models.Campaign
	Events    []models.Event
	Tags      []models.Tag

	// TakenUIDs makes POST /resources answer 409 for these uids.
	TakenUIDs map[string]bool

	Dashboard map[string]models.DashboardStats
	Live      map[int64]models.LiveFeed
	Explore   func(uid, start, end string) models.Exploration
	Rules     map[string][]Rule

	// Funnels is keyed by numeric resource id.
	Funnels   map[int64][]models.Funnel
	Retention func(id int64, from, to string) models.RetentionReport
	Monitor   models.SystemMonitor

	// Collected holds every /v1/collect body.
	Collected []map[string]any

	requests []Request
	nextID   int64
}

// NewBackend starts the fake. Close it with t.Cleanup(b.Close).
func NewBackend() *Backend {
	b := &Backend{
		AdminPassword: "secret",
		Accounts:      map[string]Account{},
		TakenUIDs:     map[string]bool{},
		Dashboard:     map[string]models.DashboardStats{},
		Live:          map[int64]models.LiveFeed{},
		Rules:         map[string][]Rule{},
		Funnels:       map[int64][]models.Funnel{},
		Monitor:       models.SystemMonitor{Status: "online"},
		nextID:        100,
	}
	b.server = httptest.NewServer(b.routes())
	return b
}

// URL is the server root.
func (b *Backend) URL() string { return b.server.URL }

// APIURL is the root plus the /api prefix, as expected by api.NewHTTPClient.
func (b *Backend) APIURL() string { return b.server.URL + "/api" }

func (b *Backend) Close() { b.server.Close() }

func (b *Backend) Lock()   { b.mu.Lock() }
func (b *Backend) Unlock() { b.mu.Unlock() }

// AddAccount registers a login.
func (b *Backend) AddAccount(email, password string, resp models.LoginResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	resp.Email = email
	b.Accounts[email] = Account{Password: password, Response: resp}
}

// SetResources replaces the resource list.
func (b *Backend) SetResources(rs ...models.Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Resources = append([]models.Resource(nil), rs...)
}

func (b *Backend) SetForceUnauthorized(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ForceUnauthorized = v
}

func (b *Backend) SetDown(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Down = v
}

// Requests returns a copy of the request log.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns the number of recorded requests with the given method and
// path (path without the query string).
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// CollectedEvents returns a copy of the tracking bodies received so far.
func (b *Backend) CollectedEvents() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.Collected...)
}

func (b *Backend) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(b.record)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", b.health).Methods(http.MethodGet)
	api.HandleFunc("/login", b.login).Methods(http.MethodPost)
	api.HandleFunc("/v1/collect", b.collect).Methods(http.MethodPost)
	api.HandleFunc("/v1/rules/{uid}", b.rules).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(b.authorize)
	protected.HandleFunc("/change-password", b.changePassword).Methods(http.MethodPost)
	protected.HandleFunc("/resources", b.listResources).Methods(http.MethodGet)
	protected.HandleFunc("/resources", b.createResource).Methods(http.MethodPost)
	protected.HandleFunc("/resources/{id:[0-9]+}", b.updateResource).Methods(http.MethodPut)
	protected.HandleFunc("/resources/{id:[0-9]+}", b.deleteResource).Methods(http.MethodDelete)
	protected.HandleFunc("/campaigns", b.listCampaigns).Methods(http.MethodGet)
	protected.HandleFunc("/campaigns/{id:[0-9]+}", b.deleteCampaign).Methods(http.MethodDelete)
	protected.HandleFunc("/events", b.listEvents).Methods(http.MethodGet)
	protected.HandleFunc("/events/{id:[0-9]+}", b.deleteEvent).Methods(http.MethodDelete)
	protected.HandleFunc("/tags", b.listTags).Methods(http.MethodGet)
	protected.HandleFunc("/tags/{id:[0-9]+}", b.deleteTag).Methods(http.MethodDelete)
	protected.HandleFunc("/dashboard/stats", b.dashboardStats).Methods(http.MethodGet)
	protected.HandleFunc("/analytics/live", b.liveFeed).Methods(http.MethodGet)
	protected.HandleFunc("/analytics/explore", b.explore).Methods(http.MethodGet)
	protected.HandleFunc("/analytics/retention", b.retention).Methods(http.MethodGet)
	protected.HandleFunc("/funnels", b.listFunnels).Methods(http.MethodGet)
	protected.HandleFunc("/funnels/{id:[0-9]+}", b.deleteFunnel).Methods(http.MethodDelete)
	protected.HandleFunc("/system/monitor", b.systemMonitor).Methods(http.MethodGet)
	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		b.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		force, token := b.ForceUnauthorized, b.Token
		b.mu.Unlock()

		auth := r.Header.Get("Authorization")
		if force || !strings.HasPrefix(auth, "Bearer ") ||
			(token != "" && strings.TrimPrefix(auth, "Bearer ") != token) {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (b *Backend) health(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	down := b.Down
	b.mu.Unlock()
	if down {
		writeDetail(w, http.StatusServiceUnavailable, "maintenance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	acc, ok := b.Accounts[req.Email]
	b.mu.Unlock()
	if !ok || acc.Password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, acc.Response)
}

func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for email, acc := range b.Accounts {
		if acc.Response.UserID != req.UserID {
			continue
		}
		if acc.Password != req.CurrentPassword {
			writeDetail(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		acc.Password = req.NewPassword
		acc.Response.IsFirstLogin = false
		b.Accounts[email] = acc
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}
	writeDetail(w, http.StatusNotFound, "User not found")
}

func (b *Backend) listResources(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := append([]models.Resource{}, b.Resources...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createResource(w http.ResponseWriter, r *http.Request) {
	var draft models.ResourceDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.TakenUIDs[draft.UID] {
		writeDetail(w, http.StatusConflict, "Resource with this uid already exists")
		return
	}
	for _, res := range b.Resources {
		if res.UID == draft.UID {
			writeDetail(w, http.StatusConflict, "Resource with this uid already exists")
			return
		}
	}

	b.nextID++
	res := models.Resource{
		ID:        b.nextID,
		UID:       draft.UID,
		Name:      draft.Name,
		Type:      draft.Type,
		Status:    draft.Status,
		Token:     draft.Token,
		CreatedAt: time.Now().UTC(),
	}
	if res.Status == "" {
		res.Status = models.StatusActive
	}
	b.Resources = append(b.Resources, res)
	writeJSON(w, http.StatusOK, res)
}

func (b *Backend) updateResource(w http.ResponseWriter, r *http.Request) {
	var patch models.ResourcePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	id := pathID(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Resources {
		if b.Resources[i].ID != id {
			continue
		}
		if patch.Name != nil {
			b.Resources[i].Name = *patch.Name
		}
		if patch.Status != nil {
			b.Resources[i].Status = *patch.Status
		}
		writeJSON(w, http.StatusOK, b.Resources[i])
		return
	}
	writeDetail(w, http.StatusNotFound, "Resource not found")
}

// checkPassword decodes the delete body and answers 403 on mismatch.
// Callers hold b.mu.
func (b *Backend) checkPassword(w http.ResponseWriter, r *http.Request) bool {
	var req models.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Password required")
		return false
	}
	if req.Password != b.AdminPassword {
		writeDetail(w, http.StatusForbidden, "Invalid password")
		return false
	}
	return true
}

func deleteByID[T any](items []T, id int64, idOf func(T) int64) ([]T, bool) {
	for i, it := range items {
		if idOf(it) == id {
			return append(items[:i:i], items[i+1:]...), true
		}
	}
	return items, false
}

func (b *Backend) deleteResource(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.checkPassword(w, r) {
		return
	}
	var ok bool
	b.Resources, ok = deleteByID(b.Resources, pathID(r), func(x models.Resource) int64 { return x.ID })
	if !ok {
		writeDetail(w, http.StatusNotFound, "Resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (b *Backend) listCampaigns(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := append([]models.Campaign{}, b.Campaigns...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.checkPassword(w, r) {
		return
	}
	var ok bool
	b.Campaigns, ok = deleteByID(b.Campaigns, pathID(r), func(x models.Campaign) int64 { return x.ID })
	if !ok {
		writeDetail(w, http.StatusNotFound, "Campaign not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (b *Backend) listEvents(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := append([]models.Event{}, b.Events...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) deleteEvent(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.checkPassword(w, r) {
		return
	}
	var ok bool
	b.Events, ok = deleteByID(b.Events, pathID(r), func(x models.Event) int64 { return x.ID })
	if !ok {
		writeDetail(w, http.StatusNotFound, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (b *Backend) listTags(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := append([]models.Tag{}, b.Tags...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) deleteTag(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.checkPassword(w, r) {
		return
	}
	var ok bool
	b.Tags, ok = deleteByID(b.Tags, pathID(r), func(x models.Tag) int64 { return x.ID })
	if !ok {
		writeDetail(w, http.StatusNotFound, "Tag not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (b *Backend) delay() {
	b.mu.Lock()
	d := b.Delay
	b.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (b *Backend) dashboardStats(w http.ResponseWriter, r *http.Request) {
	b.delay()
	uid := r.URL.Query().Get("resource_id")
	b.mu.Lock()
	stats, ok := b.Dashboard[uid]
	b.mu.Unlock()
	if !ok {
		stats = models.DashboardStats{Session: "-", Bounce: "-", ChartData: []models.ChartPoint{}}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (b *Backend) liveFeed(w http.ResponseWriter, r *http.Request) {
	b.delay()
	id, err := strconv.ParseInt(r.URL.Query().Get("resource_id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "resource_id must be an integer")
		return
	}
	b.mu.Lock()
	feed := b.Live[id]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, feed)
}

func (b *Backend) explore(w http.ResponseWriter, r *http.Request) {
	b.delay()
	q := r.URL.Query()
	b.mu.Lock()
	fn := b.Explore
	b.mu.Unlock()
	if fn == nil {
		fn = func(uid, start, end string) models.Exploration {
			return models.Exploration{Bounce: fmt.Sprintf("%s..%s", start, end)}
		}
	}
	writeJSON(w, http.StatusOK, fn(q.Get("resource_id"), q.Get("start"), q.Get("end")))
}

func (b *Backend) collect(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	b.mu.Lock()
	b.Collected = append(b.Collected, body)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (b *Backend) rules(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	b.mu.Lock()
	rules := append([]Rule{}, b.Rules[uid]...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, rules)
}

func queryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("resource_id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "resource_id must be an integer")
		return 0, false
	}
	return id, true
}

func (b *Backend) retention(w http.ResponseWriter, r *http.Request) {
	b.delay()
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	b.mu.Lock()
	fn := b.Retention
	b.mu.Unlock()
	if fn == nil {
		fn = func(_ int64, from, to string) models.RetentionReport {
			return models.RetentionReport{Cohorts: []models.RetentionCohort{{CohortDate: from + ".." + to}}}
		}
	}
	writeJSON(w, http.StatusOK, fn(id, q.Get("date_from"), q.Get("date_to")))
}

func (b *Backend) listFunnels(w http.ResponseWriter, r *http.Request) {
	b.delay()
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	out := append([]models.Funnel{}, b.Funnels[id]...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) deleteFunnel(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.checkPassword(w, r) {
		return
	}
	for rid, fs := range b.Funnels {
		if rest, ok := deleteByID(fs, pathID(r), func(x models.Funnel) int64 { return x.ID }); ok {
			b.Funnels[rid] = rest
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Funnel not found")
}

func (b *Backend) systemMonitor(w http.ResponseWriter, _ *http.Request) {
	b.delay()
	b.mu.Lock()
	m := b.Monitor
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, m)
}
