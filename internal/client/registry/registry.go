// Package registry is the single source of truth for the list of trackable
// resources and for the one currently selected.
//
// The selection is a weak reference by id into the last successfully loaded
// list, persisted under common.KeyResourceID. Select is its only mutator and
// the only writer of the stored id; Load re-resolves the in-memory selection
// after every successful fetch without touching storage:
//  1. the persisted id, if still present in the new list;
//  2. otherwise the first resource in server order;
//  3. otherwise none.
//
// Dependent views subscribe with Watch and treat selection changes as
// external events.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/sethvargo/go-retry"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrPasswordRequired = errors.New("password required")

	// ErrUIDConflict marks a create rejected because the uid is taken. It is
	// retryable with a fresh uid.
	ErrUIDConflict = errors.New("resource uid already taken")
)

// Client is the subset of the backend API used by the registry.
type Client interface {
	ListResources(ctx context.Context) ([]models.Resource, error)
	CreateResource(ctx context.Context, draft models.ResourceDraft) (*models.Resource, error)
	UpdateResource(ctx context.Context, id int64, patch models.ResourcePatch) (*models.Resource, error)
	DeleteResource(ctx context.Context, id int64, password string) error
}

// Watcher receives the new selection. ok is false when nothing is selected.
// Watchers run synchronously in the goroutine that changed the selection
// and must not call Select or Load.
type Watcher func(sel models.Resource, ok bool)

// Option customises a Registry.
type Option func(*Registry)

// WithUIDRetries sets how many extra attempts Add makes after a uid
// collision and the pause between them.
func WithUIDRetries(n uint64, pause time.Duration) Option {
	return func(r *Registry) {
		r.uidRetries = n
		r.uidPause = pause
	}
}

type Registry struct {
	client Client
	store  storage.Store
	logger logging.Logger

	uidRetries uint64
	uidPause   time.Duration

	// writeMu serialises selection writes (memory, storage and watcher
	// notification) so notifications are delivered in mutation order.
	writeMu sync.Mutex

	mu       sync.RWMutex
	list     []models.Resource
	selected int64
	hasSel   bool
	loaded   bool
	watchers map[int]Watcher
	nextW    int
}

func New(client Client, store storage.Store, logger logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		client:     client,
		store:      store,
		logger:     logger.With("component", "registry"),
		uidRetries: 3,
		uidPause:   100 * time.Millisecond,
		watchers:   map[int]Watcher{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resources returns a copy of the current list.
func (r *Registry) Resources() []models.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.list)
}

// Loaded reports whether at least one Load succeeded.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Selected returns the selected resource.
func (r *Registry) Selected() (models.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedLocked()
}

func (r *Registry) selectedLocked() (models.Resource, bool) {
	if !r.hasSel {
		return models.Resource{}, false
	}
	i := slices.IndexFunc(r.list, func(x models.Resource) bool { return x.ID == r.selected })
	if i < 0 {
		return models.Resource{}, false
	}
	return r.list[i], true
}

// Get looks a resource up by id in the current list.
func (r *Registry) Get(id int64) (models.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.list, func(x models.Resource) bool { return x.ID == id })
	if i < 0 {
		return models.Resource{}, false
	}
	return r.list[i], true
}

// Watch registers fn, delivers the current selection to it and returns a
// function that unregisters it. No selection change can happen between the
// initial delivery and the registration.
func (r *Registry) Watch(fn Watcher) (cancel func()) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	id := r.nextW
	r.nextW++
	r.watchers[id] = fn
	sel, ok := r.selectedLocked()
	r.mu.Unlock()

	fn(sel, ok)

	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

func (r *Registry) notify(sel models.Resource, ok bool) {
	r.mu.RLock()
	keys := make([]int, 0, len(r.watchers))
	for k := range r.watchers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	ws := make([]Watcher, 0, len(keys))
	for _, k := range keys {
		ws = append(ws, r.watchers[k])
	}
	r.mu.RUnlock()

	for _, w := range ws {
		w(sel, ok)
	}
}

// persistedID reads the stored selection. Unreadable or malformed values
// count as absent.
func (r *Registry) persistedID(ctx context.Context) (int64, bool) {
	v, ok, err := r.store.Get(ctx, common.KeyResourceID)
	if err != nil {
		r.logger.Warn(ctx, "failed to read selection", "err", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Load fetches the resource list and resolves the selection. On failure the
// previous list and selection are kept.
func (r *Registry) Load(ctx context.Context) error {
	list, err := r.client.ListResources(ctx)
	if err != nil {
		r.logger.Warn(ctx, "failed to load resources", "err", err)
		return fmt.Errorf("failed to load resources: %w", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var (
		sel    models.Resource
		hasSel bool
	)
	if id, ok := r.persistedID(ctx); ok {
		if i := slices.IndexFunc(list, func(x models.Resource) bool { return x.ID == id }); i >= 0 {
			sel, hasSel = list[i], true
		}
	}
	if !hasSel && len(list) > 0 {
		sel, hasSel = list[0], true
	}

	r.mu.Lock()
	prev, hadPrev := r.selectedLocked()
	r.list = list
	r.selected, r.hasSel = sel.ID, hasSel
	r.loaded = true
	r.mu.Unlock()

	r.logger.Debug(ctx, "resources loaded", "count", len(list), "selected", sel.ID)

	if hadPrev != hasSel || prev.ID != sel.ID {
		r.notify(sel, hasSel)
	}
	return nil
}

// Select makes id the current selection and persists it. id must be in the
// current list.
func (r *Registry) Select(ctx context.Context, id int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrResourceNotFound, id)
	}

	if err := r.store.Set(ctx, common.KeyResourceID, res.IDString()); err != nil {
		return fmt.Errorf("failed to persist selection: %w", err)
	}

	r.mu.Lock()
	r.selected, r.hasSel = res.ID, true
	r.mu.Unlock()

	r.notify(res, true)
	return nil
}

// classifyCreate turns a uid collision on create into ErrUIDConflict: a 409,
// or a bare 500 from the unique uid column, which the backend reports without
// a detail. Validation errors are never retried.
func classifyCreate(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Status == http.StatusConflict,
		apiErr.Status == http.StatusInternalServerError && apiErr.Detail == "":
		return fmt.Errorf("%w: %w", ErrUIDConflict, err)
	}
	return err
}

// Create posts draft and reloads the list.
func (r *Registry) Create(ctx context.Context, draft models.ResourceDraft) (models.Resource, error) {
	if draft.Status == "" {
		draft.Status = models.StatusActive
	}
	created, err := r.client.CreateResource(ctx, draft)
	if err != nil {
		return models.Resource{}, fmt.Errorf("failed to create resource: %w", classifyCreate(err))
	}
	if err := r.Load(ctx); err != nil {
		return *created, err
	}
	return *created, nil
}

// Add creates a resource with a generated uid, retrying with a fresh uid on
// collisions. secret is the bot token or bundle id; it is ignored for
// websites.
func (r *Registry) Add(ctx context.Context, name string, typ models.ResourceType, secret string) (models.Resource, error) {
	var token *string
	if typ != models.ResourceWebsite && secret != "" {
		token = &secret
	}

	var out models.Resource
	backoff := retry.WithMaxRetries(r.uidRetries, retry.NewConstant(r.uidPause))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		uid, err := GenerateUID(typ)
		if err != nil {
			return err
		}
		out, err = r.Create(ctx, models.ResourceDraft{
			UID:    uid,
			Name:   name,
			Type:   typ,
			Token:  token,
			Status: models.StatusActive,
		})
		if errors.Is(err, ErrUIDConflict) {
			r.logger.Info(ctx, "uid collision, retrying", "uid", uid)
			return retry.RetryableError(err)
		}
		return err
	})
	return out, err
}

// Update patches name and/or status and reloads the list.
func (r *Registry) Update(ctx context.Context, id int64, patch models.ResourcePatch) (models.Resource, error) {
	updated, err := r.client.UpdateResource(ctx, id, patch)
	if err != nil {
		return models.Resource{}, fmt.Errorf("failed to update resource: %w", err)
	}
	if err := r.Load(ctx); err != nil {
		return *updated, err
	}
	return *updated, nil
}

// Delete removes a resource after password confirmation and reloads the
// list. An empty password fails without a network call.
func (r *Registry) Delete(ctx context.Context, id int64, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if err := r.client.DeleteResource(ctx, id, password); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return r.Load(ctx)
}

// GenerateUID suggests a tracking uid: the type prefix plus five random
// lowercase alphanumerics. The backend has the final say on uniqueness.
func GenerateUID(typ models.ResourceType) (string, error) {
	suffix, err := common.RandomString(5, common.LowerAlnum)
	if err != nil {
		return "", fmt.Errorf("generate uid: %w", err)
	}
	return typ.UIDPrefix() + suffix, nil
}
