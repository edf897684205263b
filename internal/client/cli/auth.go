package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/session"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
)

// getSimpleText, getPassword and getChoice are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getChoice     = GetChoice
)

var errPasswordMismatch = errors.New("passwords do not match")

// Login prompts for credentials, signs in and loads the resource list.
//
// Bad credentials are reported with the backend's message and never trigger
// the session-expired redirect. If the user must change the initial
// password, the console says so; every screen except the profile stays
// closed until then.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.guard.Login(ctx, email, string(password))
	if err != nil {
		switch {
		case errors.Is(err, api.ErrUnavailable):
			a.logger.Warn(ctx, "login failed", "error", err)
			return fmt.Errorf("server unavailable")
		case errors.Is(err, api.ErrUnauthorized):
			if detail, ok := api.Detail(err); ok {
				return errors.New(detail)
			}
			return fmt.Errorf("invalid credentials")
		}
		return err
	}

	a.printLine(fmt.Sprintf("Signed in as %s (%s)", s.Email, roleOf(s.Role)))
	if s.IsFirstLogin {
		a.printLine("This is your first login. Change your password with 'passwd'.")
		return nil
	}

	if err := a.registry.Load(ctx); err != nil {
		a.logger.Warn(ctx, "resources not loaded", "error", err)
		return err
	}
	if r, ok := a.registry.Selected(); ok {
		a.printLine(fmt.Sprintf("Selected resource: %s", r.Name))
	}
	return nil
}

// Logout closes the active view and purges the stored session. The
// resource selection is kept for the next login.
func (a *App) Logout(ctx context.Context) error {
	a.stopView()
	if err := a.guard.Logout(ctx); err != nil {
		return err
	}
	a.printLine("Signed out")
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	s, st := a.guard.Current(ctx)
	if st != session.Authenticated {
		return session.ErrNotSignedIn
	}
	a.printLine(fmt.Sprintf("%s (id %d, %s)", s.Email, s.UserID, roleOf(s.Role)))
	return nil
}

// Passwd changes the account password. The new password is asked twice.
func (a *App) Passwd(ctx context.Context) error {
	current, err := getPassword(a.out, "Current password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	next, err := getPassword(a.out, "New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	confirm, err := getPassword(a.out, "Repeat new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if len(next) == 0 {
		return fmt.Errorf("new password must not be empty")
	}
	if string(next) != string(confirm) {
		return errPasswordMismatch
	}

	if err := a.guard.ChangePassword(ctx, string(current), string(next)); err != nil {
		if detail, ok := api.Detail(err); ok {
			return errors.New(detail)
		}
		return err
	}
	a.printLine("Password changed")

	if err := a.registry.Load(ctx); err != nil {
		a.logger.Warn(ctx, "resources not loaded", "error", err)
	}
	return nil
}

func roleOf(r models.Role) string {
	if r == "" {
		return string(models.RoleAdmin)
	}
	return string(r)
}
