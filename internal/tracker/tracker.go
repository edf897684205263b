// Package tracker sends page and custom events to the OpenTrace collect
// endpoint.
//
// Delivery is fire and forget: each event is one POST made in its own
// goroutine. Nothing is retried or queued. Failed deliveries are counted and
// handed to the optional OnDrop hook.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/google/uuid"
)

// TypePageView is used when Collect is called without an event type.
const TypePageView = "page_view"

// TriggerVisit is the rule trigger matched against page paths.
const TriggerVisit = "visit"

var ErrNoResourceID = errors.New("tracker: resource uid is required")

// Event is the body of a collect request.
type Event struct {
	ResourceID string         `json:"rid"`
	SessionID  string         `json:"sid"`
	Type       string         `json:"type"`
	URL        string         `json:"url"`
	Referrer   string         `json:"ref"`
	Resolution string         `json:"res"`
	Language   string         `json:"lang"`
	UTMSource  string         `json:"utm_s"`
	UTMMedium  string         `json:"utm_m"`
	UTMCamp    string         `json:"utm_c"`
	FBClickID  string         `json:"fbclid"`
	TTClickID  string         `json:"ttclid"`
	Meta       map[string]any `json:"meta"`
}

// Rule is a public auto-tracking rule of a resource.
type Rule struct {
	Name     string `json:"name"`
	Trigger  string `json:"trigger"`
	Selector string `json:"selector"`
}

type Options struct {
	Endpoint   string
	ResourceID string
	Resolution string
	Language   string
	Timeout    time.Duration
	// OnDrop is called from the delivery goroutine for every lost event.
	OnDrop func(ev Event, err error)
}

type Tracker struct {
	endpoint  string
	rid       string
	sid       string
	res       string
	lang      string
	onDrop    func(Event, error)
	http      *http.Client
	logger    logging.Logger
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// New returns a tracker with a fresh session id.
func New(opts Options, logger logging.Logger) (*Tracker, error) {
	if strings.TrimSpace(opts.ResourceID) == "" {
		return nil, ErrNoResourceID
	}
	if opts.Endpoint == "" {
		return nil, errors.New("tracker: endpoint is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sid := uuid.NewString()
	return &Tracker{
		endpoint: opts.Endpoint,
		rid:      opts.ResourceID,
		sid:      sid,
		res:      opts.Resolution,
		lang:     opts.Language,
		onDrop:   opts.OnDrop,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "tracker", "rid", opts.ResourceID, "sid", sid),
	}, nil
}

func (t *Tracker) SessionID() string { return t.sid }

// Dropped returns how many events were lost so far.
func (t *Tracker) Dropped() uint64 { return t.dropped.Load() }

// Delivered returns how many events the backend accepted.
func (t *Tracker) Delivered() uint64 { return t.delivered.Load() }

// Wait blocks until every event sent so far is delivered or dropped.
func (t *Tracker) Wait() { t.wg.Wait() }

// NewEvent builds the event Collect would send. UTM parameters and click ids
// are taken from the page URL query.
func (t *Tracker) NewEvent(typ, pageURL, referrer string, meta map[string]any) Event {
	if typ == "" {
		typ = TypePageView
	}
	if meta == nil {
		meta = map[string]any{}
	}
	ev := Event{
		ResourceID: t.rid,
		SessionID:  t.sid,
		Type:       typ,
		URL:        pageURL,
		Referrer:   referrer,
		Resolution: t.res,
		Language:   t.lang,
		Meta:       meta,
	}
	if u, err := url.Parse(pageURL); err == nil {
		q := u.Query()
		ev.UTMSource = q.Get("utm_source")
		ev.UTMMedium = q.Get("utm_medium")
		ev.UTMCamp = q.Get("utm_campaign")
		ev.FBClickID = q.Get("fbclid")
		ev.TTClickID = q.Get("ttclid")
	}
	return ev
}

// Collect sends one event in the background.
func (t *Tracker) Collect(ctx context.Context, typ, pageURL, referrer string, meta map[string]any) {
	ev := t.NewEvent(typ, pageURL, referrer, meta)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.send(ctx, ev); err != nil {
			t.dropped.Add(1)
			t.logger.Debug(ctx, "event dropped", "type", ev.Type, "error", err)
			if t.onDrop != nil {
				t.onDrop(ev, err)
			}
			return
		}
		t.delivered.Add(1)
	}()
}

func (t *Tracker) send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collect failed: %s", resp.Status)
	}

	var ack struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("failed to decode ack: %w", err)
	}
	if ack.Status != "success" {
		return fmt.Errorf("collect rejected: %s", ack.Message)
	}
	return nil
}

// RulesURL derives the rules endpoint from the collect endpoint.
func (t *Tracker) RulesURL() string {
	base := strings.TrimSuffix(t.endpoint, "/")
	base = strings.TrimSuffix(base, "/collect")
	return base + "/rules/" + url.PathEscape(t.rid)
}

// Rules fetches the auto-tracking rules of the resource.
func (t *Tracker) Rules(ctx context.Context) ([]Rule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.RulesURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rules request failed: %s", resp.Status)
	}
	var rules []Rule
	if err := json.NewDecoder(resp.Body).Decode(&rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return rules, nil
}

// VisitMatches returns the names of visit rules matching path. A rule
// matches when its selector is "*" or occurs in path.
func VisitMatches(rules []Rule, path string) []string {
	var names []string
	for _, r := range rules {
		if r.Trigger != TriggerVisit {
			continue
		}
		if r.Selector == "*" || strings.Contains(path, r.Selector) {
			names = append(names, r.Name)
		}
	}
	return names
}

// PagePath returns the path of a page URL for VisitMatches. Unparseable
// input is returned unchanged.
func PagePath(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
