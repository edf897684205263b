package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeAuthClient struct {
	LoginRet *models.LoginResponse
	LoginErr error

	ChangePasswordErr error

	LastLoginEmail    string
	LastLoginPassword string
	LastChange        models.ChangePasswordRequest
	RearmCalls        int
}

func (f *fakeAuthClient) Login(_ context.Context, email, password string) (*models.LoginResponse, error) {
	f.LastLoginEmail, f.LastLoginPassword = email, password
	return f.LoginRet, f.LoginErr
}

func (f *fakeAuthClient) ChangePassword(_ context.Context, req models.ChangePasswordRequest) error {
	f.LastChange = req
	return f.ChangePasswordErr
}

func (f *fakeAuthClient) Rearm() { f.RearmCalls++ }

// failingStore fails every read.
type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func newGuard(t *testing.T) (*Guard, *storage.MemoryStore, *fakeAuthClient) {
	t.Helper()
	st := storage.NewMemoryStore()
	fc := &fakeAuthClient{}
	return NewGuard(st, fc, logging.Discard()), st, fc
}

func put(t *testing.T, st storage.Store, user, token string) {
	t.Helper()
	require.NoError(t, st.SetMany(context.Background(), map[string]string{
		common.KeyUser:  user,
		common.KeyToken: token,
	}))
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

// ---- tests ----

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		user      string
		token     string
		skipSeed  bool
		want      Status
		wantPurge bool
	}{
		{name: "absent", skipSeed: true, want: Unauthenticated},
		{name: "empty token", user: `{"user_id":1}`, token: "", want: Unauthenticated},
		{name: "valid opaque token", user: `{"user_id":1,"email":"a@b.c"}`, token: "tok", want: Authenticated},
		{name: "malformed json", user: `{"user_id":`, token: "tok", want: Invalid, wantPurge: true},
		{name: "missing user_id", user: `{"email":"a@b.c"}`, token: "tok", want: Invalid, wantPurge: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, st, _ := newGuard(t)
			if !tc.skipSeed {
				put(t, st, tc.user, tc.token)
			}
			require.Equal(t, tc.want, g.Check(ctx))

			if tc.wantPurge {
				all, err := st.List(ctx)
				require.NoError(t, err)
				require.NotContains(t, all, common.KeyUser)
				require.NotContains(t, all, common.KeyToken)
				require.Equal(t, Unauthenticated, g.Check(ctx))
			}
		})
	}
}

func TestGuard_Check_ExpiredJWT(t *testing.T) {
	ctx := context.Background()
	g, st, _ := newGuard(t)

	put(t, st, `{"user_id":1}`, signed(t, time.Now().Add(time.Hour)))
	require.Equal(t, Authenticated, g.Check(ctx))

	put(t, st, `{"user_id":1}`, signed(t, time.Now().Add(-time.Minute)))
	require.Equal(t, Invalid, g.Check(ctx))
	require.Equal(t, Unauthenticated, g.Check(ctx))
}

func TestGuard_Check_StorageFailureNeverGrantsAccess(t *testing.T) {
	g := NewGuard(failingStore{storage.NewMemoryStore()}, &fakeAuthClient{}, logging.Discard())
	require.Equal(t, Unauthenticated, g.Check(context.Background()))
	require.Equal(t, ViewLogin, g.Route(context.Background(), ViewDashboard).Redirect)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		st         Status
		firstLogin bool
		view       View
		want       Decision
	}{
		{"public while signed out", Unauthenticated, false, ViewLogin, Decision{Allow: true}},
		{"invitation is public", Unauthenticated, false, ViewAcceptInvitation, Decision{Allow: true}},
		{"protected while signed out", Unauthenticated, false, ViewDashboard, Decision{Redirect: ViewLogin}},
		{"protected with invalid session", Invalid, false, ViewResources, Decision{Redirect: ViewLogin}},
		{"signed in", Authenticated, false, ViewDashboard, Decision{Allow: true}},
		{"first login forced to profile", Authenticated, true, ViewDashboard, Decision{Redirect: ViewProfile}},
		{"first login on profile", Authenticated, true, ViewProfile, Decision{Allow: true}},
		{"first login on public", Authenticated, true, ViewLanding, Decision{Allow: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Decide(tc.st, tc.firstLogin, tc.view))
		})
	}
}

func TestGuard_LoginPersistsSession(t *testing.T) {
	ctx := context.Background()
	g, st, fc := newGuard(t)
	fc.LoginRet = &models.LoginResponse{
		AccessToken: "tok", UserID: 3, Email: "a@b.c", Role: models.RoleDemo, IsFirstLogin: true,
	}

	s, err := g.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	require.Equal(t, int64(3), s.UserID)
	require.Equal(t, "a@b.c", fc.LastLoginEmail)
	require.Equal(t, "pw", fc.LastLoginPassword)
	require.Equal(t, 1, fc.RearmCalls)

	cur, status := g.Current(ctx)
	require.Equal(t, Authenticated, status)
	require.Equal(t, "tok", cur.Token)
	require.Equal(t, models.RoleDemo, cur.Role)
	require.Equal(t, "tok", g.Token(ctx))

	require.Equal(t, Decision{Redirect: ViewProfile}, g.Route(ctx, ViewDashboard))

	user, ok, err := st.Get(ctx, common.KeyUser)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"user_id":3,"email":"a@b.c","role":"demo","is_first_login":true}`, user)
}

func TestGuard_LoginFailure(t *testing.T) {
	ctx := context.Background()
	g, _, fc := newGuard(t)
	fc.LoginErr = common.ErrorUnauthorized

	_, err := g.Login(ctx, "a@b.c", "bad")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	require.Equal(t, 0, fc.RearmCalls)
	require.Equal(t, Unauthenticated, g.Check(ctx))

	fc.LoginErr = nil
	fc.LoginRet = &models.LoginResponse{UserID: 1}
	_, err = g.Login(ctx, "a@b.c", "pw")
	require.ErrorIs(t, err, common.ErrorMalformedState)
}

func TestGuard_ChangePasswordClearsFirstLogin(t *testing.T) {
	ctx := context.Background()
	g, st, fc := newGuard(t)

	require.ErrorIs(t, g.ChangePassword(ctx, "old", "new"), ErrNotSignedIn)

	put(t, st, `{"user_id":5,"email":"a@b.c","is_first_login":true}`, "tok")

	fc.ChangePasswordErr = errors.New("denied")
	require.Error(t, g.ChangePassword(ctx, "old", "new"))
	s, _ := g.Current(ctx)
	require.True(t, s.IsFirstLogin)

	fc.ChangePasswordErr = nil
	require.NoError(t, g.ChangePassword(ctx, "old", "new"))
	require.Equal(t, models.ChangePasswordRequest{UserID: 5, CurrentPassword: "old", NewPassword: "new"}, fc.LastChange)

	s, st2 := g.Current(ctx)
	require.Equal(t, Authenticated, st2)
	require.False(t, s.IsFirstLogin)
	require.Equal(t, Decision{Allow: true}, g.Route(ctx, ViewDashboard))
}

func TestGuard_LogoutAndUnauthorized(t *testing.T) {
	ctx := context.Background()
	g, st, _ := newGuard(t)
	require.NoError(t, st.Set(ctx, common.KeyResourceID, "2"))

	put(t, st, `{"user_id":1}`, "tok")
	require.NoError(t, g.Logout(ctx))
	require.Equal(t, Unauthenticated, g.Check(ctx))

	var navigated []View
	g.OnNavigate(func(v View) { navigated = append(navigated, v) })

	put(t, st, `{"user_id":1}`, "tok")
	g.HandleUnauthorized()
	require.Equal(t, Unauthenticated, g.Check(ctx))
	require.Equal(t, []View{ViewLogin}, navigated)

	id, ok, err := st.Get(ctx, common.KeyResourceID)
	require.NoError(t, err)
	require.True(t, ok, "selection survives a session purge")
	require.Equal(t, "2", id)
}
