package registry

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/client/apitest"
	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake client ----

type fakeClient struct {
	ListRet []models.Resource
	ListErr error

	CreateErrs []error
	UpdateErr  error
	DeleteErr  error

	LastDrafts      []models.ResourceDraft
	LastPatch       models.ResourcePatch
	LastDeleteID    int64
	LastDeletePass  string
	ListCalls       int
	DeleteCallCount int
}

func (f *fakeClient) ListResources(context.Context) ([]models.Resource, error) {
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]models.Resource(nil), f.ListRet...), nil
}

func (f *fakeClient) CreateResource(_ context.Context, d models.ResourceDraft) (*models.Resource, error) {
	f.LastDrafts = append(f.LastDrafts, d)
	if len(f.CreateErrs) > 0 {
		err := f.CreateErrs[0]
		f.CreateErrs = f.CreateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	res := models.Resource{ID: int64(100 + len(f.ListRet)), UID: d.UID, Name: d.Name, Type: d.Type, Status: d.Status}
	f.ListRet = append(f.ListRet, res)
	return &res, nil
}

func (f *fakeClient) UpdateResource(_ context.Context, id int64, p models.ResourcePatch) (*models.Resource, error) {
	f.LastPatch = p
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	for i := range f.ListRet {
		if f.ListRet[i].ID == id {
			if p.Name != nil {
				f.ListRet[i].Name = *p.Name
			}
			return &f.ListRet[i], nil
		}
	}
	return nil, &api.Error{Status: http.StatusNotFound}
}

func (f *fakeClient) DeleteResource(_ context.Context, id int64, password string) error {
	f.DeleteCallCount++
	f.LastDeleteID, f.LastDeletePass = id, password
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i := range f.ListRet {
		if f.ListRet[i].ID == id {
			f.ListRet = append(f.ListRet[:i], f.ListRet[i+1:]...)
			return nil
		}
	}
	return &api.Error{Status: http.StatusNotFound}
}

func twoResources() []models.Resource {
	return []models.Resource{
		{ID: 1, UID: "ot_web_a", Name: "Site", Type: models.ResourceWebsite},
		{ID: 2, UID: "ot_bot_b", Name: "Bot", Type: models.ResourceTelegramBot},
	}
}

func newRegistry(t *testing.T, fc *fakeClient) (*Registry, *storage.MemoryStore) {
	t.Helper()
	st := storage.NewMemoryStore()
	return New(fc, st, logging.Discard(), WithUIDRetries(3, time.Millisecond)), st
}

func persisted(t *testing.T, st storage.Store) (string, bool) {
	t.Helper()
	v, ok, err := st.Get(context.Background(), common.KeyResourceID)
	require.NoError(t, err)
	return v, ok
}

// ---- tests ----

func TestLoad_PersistedSelectionPresent(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t, &fakeClient{ListRet: twoResources()})
	require.NoError(t, st.Set(ctx, common.KeyResourceID, "2"))

	require.NoError(t, r.Load(ctx))

	sel, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, int64(2), sel.ID)
	require.Equal(t, "ot_bot_b", sel.UID)
}

func TestLoad_PersistedSelectionMissingFallsBackToFirst(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t, &fakeClient{ListRet: twoResources()})
	require.NoError(t, st.Set(ctx, common.KeyResourceID, "9"))

	require.NoError(t, r.Load(ctx))

	sel, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, int64(1), sel.ID)
	v, _ := persisted(t, st)
	require.Equal(t, "9", v, "the fallback is not persisted")
}

// A resource missing from one load is selected again once it comes back.
func TestLoad_PersistedSelectionSurvivesTransientAbsence(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{ListRet: twoResources()}
	r, st := newRegistry(t, fc)
	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.Select(ctx, 2))

	fc.ListRet = twoResources()[:1]
	require.NoError(t, r.Load(ctx))
	sel, _ := r.Selected()
	require.Equal(t, int64(1), sel.ID)
	v, _ := persisted(t, st)
	require.Equal(t, "2", v)

	fc.ListRet = twoResources()
	require.NoError(t, r.Load(ctx))
	sel, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, int64(2), sel.ID)
}

func TestLoad_MalformedPersistedValue(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t, &fakeClient{ListRet: twoResources()})
	require.NoError(t, st.Set(ctx, common.KeyResourceID, "not-a-number"))

	require.NoError(t, r.Load(ctx))
	sel, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, int64(1), sel.ID)
}

func TestLoad_EmptyListSelectsNothing(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t, &fakeClient{})
	require.NoError(t, st.Set(ctx, common.KeyResourceID, "2"))

	require.NoError(t, r.Load(ctx))
	_, ok := r.Selected()
	require.False(t, ok)
	v, _ := persisted(t, st)
	require.Equal(t, "2", v)
	require.True(t, r.Loaded())
}

func TestLoad_FailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{ListRet: twoResources()}
	r, _ := newRegistry(t, fc)
	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.Select(ctx, 2))

	fc.ListErr = api.ErrUnavailable
	err := r.Load(ctx)
	require.ErrorIs(t, err, api.ErrUnavailable)

	require.Len(t, r.Resources(), 2)
	sel, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, int64(2), sel.ID)
}

func TestSelect_UnknownID(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t, &fakeClient{ListRet: twoResources()})
	require.NoError(t, r.Load(ctx))

	err := r.Select(ctx, 42)
	require.ErrorIs(t, err, ErrResourceNotFound)

	sel, _ := r.Selected()
	require.Equal(t, int64(1), sel.ID)
	_, ok := persisted(t, st)
	require.False(t, ok)
}

// The persisted id always equals the last successful Select argument.
func TestSelect_PersistenceFollowsLastCall(t *testing.T) {
	ctx := context.Background()
	list := make([]models.Resource, 0, 10)
	for i := int64(1); i <= 10; i++ {
		list = append(list, models.Resource{ID: i, UID: "ot_web_" + string(rune('a'+i))})
	}
	r, st := newRegistry(t, &fakeClient{ListRet: list})
	require.NoError(t, r.Load(ctx))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		id := int64(rng.Intn(10) + 1)
		require.NoError(t, r.Select(ctx, id))

		v, ok := persisted(t, st)
		require.True(t, ok)
		require.Equal(t, models.Resource{ID: id}.IDString(), v)

		sel, ok := r.Selected()
		require.True(t, ok)
		require.Equal(t, id, sel.ID)
	}
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{ListRet: twoResources()}
	r, _ := newRegistry(t, fc)

	var got []int64
	cancel := r.Watch(func(sel models.Resource, ok bool) {
		if !ok {
			got = append(got, 0)
			return
		}
		got = append(got, sel.ID)
	})

	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.Load(ctx)) // unchanged selection, no event
	require.NoError(t, r.Select(ctx, 2))

	fc.ListRet = nil
	require.NoError(t, r.Load(ctx))

	require.Equal(t, []int64{0, 1, 2, 0}, got)

	cancel()
	fc.ListRet = twoResources()
	require.NoError(t, r.Load(ctx))
	require.Equal(t, []int64{0, 1, 2, 0}, got)
}

// A watcher registered while selections change ends on the final one.
func TestWatch_ConcurrentSelect(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t, &fakeClient{ListRet: twoResources()})
	require.NoError(t, r.Load(ctx))

	type last struct {
		mu sync.Mutex
		id int64
	}
	watchers := make([]*last, 20)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = r.Select(ctx, int64(i%2+1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := range watchers {
			l := &last{}
			watchers[i] = l
			r.Watch(func(sel models.Resource, _ bool) {
				l.mu.Lock()
				l.id = sel.ID
				l.mu.Unlock()
			})
		}
	}()
	wg.Wait()

	sel, _ := r.Selected()
	for _, l := range watchers {
		l.mu.Lock()
		require.Equal(t, sel.ID, l.id)
		l.mu.Unlock()
	}
}

func TestCreateAndUpdateReload(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{ListRet: twoResources()}
	r, _ := newRegistry(t, fc)
	require.NoError(t, r.Load(ctx))

	created, err := r.Create(ctx, models.ResourceDraft{UID: "ot_app_zzzzz", Name: "App", Type: models.ResourceMobileApp})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, fc.LastDrafts[0].Status)
	require.Len(t, r.Resources(), 3)
	_, ok := r.Get(created.ID)
	require.True(t, ok)

	name := "Renamed"
	_, err = r.Update(ctx, 1, models.ResourcePatch{Name: &name})
	require.NoError(t, err)
	res, _ := r.Get(1)
	require.Equal(t, "Renamed", res.Name)
	require.Equal(t, 3, fc.ListCalls)
}

func TestCreate_ConflictIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"409", &api.Error{Status: http.StatusConflict}, true},
		{"bare 500", &api.Error{Status: http.StatusInternalServerError}, true},
		{"500 with detail", &api.Error{Status: http.StatusInternalServerError, Detail: "database is down"}, false},
		{"validation mentions uid", &api.Error{Status: http.StatusUnprocessableEntity, Detail: "field required: uid"}, false},
		{"other denial", &api.Error{Status: http.StatusForbidden, Detail: "Demo users cannot create"}, false},
		{"transport", api.ErrUnavailable, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{CreateErrs: []error{tc.err}}
			r, _ := newRegistry(t, fc)
			_, err := r.Create(context.Background(), models.ResourceDraft{UID: "ot_web_aaaaa"})
			require.Error(t, err)
			require.Equal(t, tc.want, errors.Is(err, ErrUIDConflict))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestAdd_RetriesWithFreshUID(t *testing.T) {
	ctx := context.Background()
	conflict := &api.Error{Status: http.StatusConflict, Detail: "uid taken"}
	fc := &fakeClient{CreateErrs: []error{conflict, conflict, nil}}
	r, _ := newRegistry(t, fc)

	secret := "123:ABC"
	res, err := r.Add(ctx, "Bot", models.ResourceTelegramBot, secret)
	require.NoError(t, err)
	require.Len(t, fc.LastDrafts, 3)
	require.Equal(t, res.UID, fc.LastDrafts[2].UID)
	for _, d := range fc.LastDrafts {
		assert.True(t, strings.HasPrefix(d.UID, "ot_bot_"), d.UID)
		require.NotNil(t, d.Token)
		assert.Equal(t, secret, *d.Token)
	}
}

func TestAdd_ValidationErrorIsNotRetried(t *testing.T) {
	invalid := &api.Error{Status: http.StatusUnprocessableEntity, Detail: "field required: uid"}
	fc := &fakeClient{CreateErrs: []error{invalid}}
	r, _ := newRegistry(t, fc)

	_, err := r.Add(context.Background(), "Site", models.ResourceWebsite, "")
	require.ErrorIs(t, err, invalid)
	require.NotErrorIs(t, err, ErrUIDConflict)
	require.Len(t, fc.LastDrafts, 1)
}

func TestAdd_GivesUpAfterRetries(t *testing.T) {
	conflict := &api.Error{Status: http.StatusConflict}
	fc := &fakeClient{CreateErrs: []error{conflict, conflict, conflict, conflict, conflict}}
	r, _ := newRegistry(t, fc)

	_, err := r.Add(context.Background(), "Site", models.ResourceWebsite, "ignored")
	require.ErrorIs(t, err, ErrUIDConflict)
	require.Len(t, fc.LastDrafts, 4)
	require.Nil(t, fc.LastDrafts[0].Token)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{ListRet: twoResources()}
	r, st := newRegistry(t, fc)
	require.NoError(t, r.Load(ctx))
	require.NoError(t, r.Select(ctx, 2))

	require.ErrorIs(t, r.Delete(ctx, 2, ""), ErrPasswordRequired)
	require.Equal(t, 0, fc.DeleteCallCount)

	fc.DeleteErr = &api.Error{Status: http.StatusForbidden, Detail: "Invalid password"}
	require.Error(t, r.Delete(ctx, 2, "wrong"))
	require.Len(t, r.Resources(), 2)
	sel, _ := r.Selected()
	require.Equal(t, int64(2), sel.ID)

	fc.DeleteErr = nil
	require.NoError(t, r.Delete(ctx, 2, "secret"))
	require.Equal(t, "secret", fc.LastDeletePass)
	sel, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, int64(1), sel.ID)
	v, _ := persisted(t, st)
	require.Equal(t, "2", v)
}

func TestGenerateUID(t *testing.T) {
	seen := map[string]bool{}
	for _, typ := range []models.ResourceType{models.ResourceWebsite, models.ResourceTelegramBot, models.ResourceMobileApp} {
		for i := 0; i < 20; i++ {
			uid, err := GenerateUID(typ)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(uid, typ.UIDPrefix()))
			suffix := strings.TrimPrefix(uid, typ.UIDPrefix())
			require.Len(t, suffix, 5)
			for _, c := range suffix {
				require.Contains(t, common.LowerAlnum, string(c))
			}
			seen[uid] = true
		}
	}
	require.Greater(t, len(seen), 50)
}

func TestRegistry_AgainstBackend(t *testing.T) {
	ctx := context.Background()
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	b.SetResources(twoResources()...)

	client := api.NewHTTPClient(b.APIURL(), 2*time.Second,
		api.TokenFunc(func(context.Context) string { return "tok" }), logging.Discard())
	st := storage.NewMemoryStore()
	require.NoError(t, st.Set(ctx, common.KeyResourceID, "9"))
	r := New(client, st, logging.Discard(), WithUIDRetries(2, time.Millisecond))

	require.NoError(t, r.Load(ctx))
	sel, _ := r.Selected()
	require.Equal(t, int64(1), sel.ID)

	res, err := r.Add(ctx, "Shop", models.ResourceWebsite, "")
	require.NoError(t, err)
	require.Len(t, r.Resources(), 3)
	require.True(t, strings.HasPrefix(res.UID, "ot_web_"))

	err = r.Delete(ctx, res.ID, "wrong")
	detail, ok := api.Detail(err)
	require.True(t, ok)
	require.Equal(t, "Invalid password", detail)
	require.Len(t, r.Resources(), 3)

	require.NoError(t, r.Delete(ctx, res.ID, "secret"))
	require.Len(t, r.Resources(), 2)
}
