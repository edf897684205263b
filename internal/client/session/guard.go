// Package session implements the console's session guard: it decides from
// the persisted credentials whether the user is signed in, gates protected
// views and owns the global reaction to HTTP 401.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Status is the outcome of Check.
type Status int

const (
	Unauthenticated Status = iota
	Authenticated
	// Invalid means the stored session was corrupt or expired. It has
	// already been purged; treat it as Unauthenticated.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Invalid:
		return "invalid"
	default:
		return "unauthenticated"
	}
}

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// AuthClient is the part of the backend API the guard calls.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	ChangePassword(ctx context.Context, req models.ChangePasswordRequest) error
	// Rearm starts a new epoch for the once-per-session 401 reaction.
	Rearm()
}

// Guard is safe for concurrent use.
type Guard struct {
	store  storage.Store
	client AuthClient
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	navigate func(View)
}

func NewGuard(store storage.Store, client AuthClient, logger logging.Logger) *Guard {
	return &Guard{
		store:  store,
		client: client,
		logger: logger.With("component", "session"),
		now:    time.Now,
	}
}

// OnNavigate registers the hard-redirect hook used by HandleUnauthorized.
func (g *Guard) OnNavigate(fn func(View)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.navigate = fn
}

// Check classifies the persisted session. A storage failure yields
// Unauthenticated: an unverifiable session never grants access.
func (g *Guard) Check(ctx context.Context) Status {
	_, st := g.load(ctx)
	return st
}

// Current returns the persisted session and its status. The session is
// zero unless the status is Authenticated.
func (g *Guard) Current(ctx context.Context) (models.Session, Status) {
	return g.load(ctx)
}

func (g *Guard) load(ctx context.Context) (models.Session, Status) {
	blob, okUser, err := g.store.Get(ctx, common.KeyUser)
	if err != nil {
		g.logger.Warn(ctx, "session check failed", "err", err)
		return models.Session{}, Unauthenticated
	}
	token, okToken, err := g.store.Get(ctx, common.KeyToken)
	if err != nil {
		g.logger.Warn(ctx, "session check failed", "err", err)
		return models.Session{}, Unauthenticated
	}
	if !okUser || !okToken || blob == "" || token == "" {
		return models.Session{}, Unauthenticated
	}

	var user models.User
	if err := json.Unmarshal([]byte(blob), &user); err != nil || user.UserID == 0 {
		g.logger.Info(ctx, "purging malformed session")
		g.purge(ctx)
		return models.Session{}, Invalid
	}
	if g.expired(token) {
		g.logger.Info(ctx, "purging expired session", "user_id", user.UserID)
		g.purge(ctx)
		return models.Session{}, Invalid
	}
	return models.Session{User: user, Token: token}, Authenticated
}

// expired reports whether token is a JWT whose exp claim is in the past.
// Opaque tokens and tokens without exp are left to the backend.
func (g *Guard) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !g.now().Before(exp.Time)
}

func (g *Guard) purge(ctx context.Context) {
	if err := g.store.Delete(ctx, common.KeyUser, common.KeyToken); err != nil {
		g.logger.Warn(ctx, "failed to purge session", "err", err)
	}
}

// Token implements api.TokenSource. It returns the raw stored token without
// validation so that the backend stays the authority.
func (g *Guard) Token(ctx context.Context) string {
	token, _, err := g.store.Get(ctx, common.KeyToken)
	if err != nil {
		return ""
	}
	return token
}

// Route checks the session and applies Decide to v.
func (g *Guard) Route(ctx context.Context, v View) Decision {
	s, st := g.load(ctx)
	return Decide(st, s.IsFirstLogin, v)
}

// Login authenticates against the backend and persists the session blob
// and token in one transaction.
func (g *Guard) Login(ctx context.Context, email, password string) (models.Session, error) {
	resp, err := g.client.Login(ctx, email, password)
	if err != nil {
		return models.Session{}, fmt.Errorf("login error: %w", err)
	}

	s := resp.Session()
	if !s.Valid() {
		return models.Session{}, fmt.Errorf("login error: %w", common.ErrorMalformedState)
	}

	blob, err := json.Marshal(s.User)
	if err != nil {
		return models.Session{}, fmt.Errorf("encode session: %w", err)
	}

	g.client.Rearm()
	if err := g.store.SetMany(ctx, map[string]string{
		common.KeyUser:  string(blob),
		common.KeyToken: s.Token,
	}); err != nil {
		return models.Session{}, fmt.Errorf("session saving error: %w", err)
	}

	g.logger.Info(ctx, "signed in", "user_id", s.UserID, "role", s.Role)
	return s, nil
}

// Logout purges the session keys.
func (g *Guard) Logout(ctx context.Context) error {
	if err := g.store.Delete(ctx, common.KeyUser, common.KeyToken); err != nil {
		return fmt.Errorf("failed to purge session: %w", err)
	}
	return nil
}

// ChangePassword updates the password and clears the stored first-login
// flag.
func (g *Guard) ChangePassword(ctx context.Context, current, next string) error {
	s, st := g.load(ctx)
	if st != Authenticated {
		return ErrNotSignedIn
	}

	if err := g.client.ChangePassword(ctx, models.ChangePasswordRequest{
		UserID:          s.UserID,
		CurrentPassword: current,
		NewPassword:     next,
	}); err != nil {
		return fmt.Errorf("change password error: %w", err)
	}

	s.IsFirstLogin = false
	blob, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := g.store.Set(ctx, common.KeyUser, string(blob)); err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}
	return nil
}

// HandleUnauthorized purges the session and hard-redirects to login. The
// API client invokes it at most once per session epoch.
func (g *Guard) HandleUnauthorized() {
	ctx := context.Background()
	g.logger.Info(ctx, "session rejected by backend")
	g.purge(ctx)

	g.mu.Lock()
	nav := g.navigate
	g.mu.Unlock()
	if nav != nil {
		nav(ViewLogin)
	}
}
