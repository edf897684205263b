package session

// View names a console screen.
type View string

const (
	ViewLanding          View = "landing"
	ViewLogin            View = "login"
	ViewForgotPassword   View = "forgot-password"
	ViewResetPassword    View = "reset-password"
	ViewAcceptInvitation View = "accept-invitation"

	ViewProfile   View = "profile"
	ViewResources View = "resources"
	ViewDashboard View = "dashboard"
	ViewLive      View = "live"
	ViewAnalytics View = "analytics"
	ViewCampaigns View = "campaigns"
	ViewEvents    View = "events"
	ViewTags      View = "tags"
	ViewFunnels   View = "funnels"
	ViewRetention View = "retention"
	ViewMonitor   View = "monitor"
)

// IsPublic reports whether v is reachable without a session.
func IsPublic(v View) bool {
	switch v {
	case ViewLanding, ViewLogin, ViewForgotPassword, ViewResetPassword, ViewAcceptInvitation:
		return true
	}
	return false
}

// Decision is the outcome of routing a view request. When Allow is false
// the caller must navigate to Redirect instead.
type Decision struct {
	Allow    bool
	Redirect View
}

func allow() Decision { return Decision{Allow: true} }

func redirect(to View) Decision { return Decision{Redirect: to} }

func (d Decision) String() string {
	if d.Allow {
		return "allow"
	}
	return "redirect:" + string(d.Redirect)
}

// Decide applies the transition rules:
//   - not authenticated and view not public: go to login;
//   - authenticated on first login, view neither profile nor public: go to
//     profile;
//   - otherwise allow.
func Decide(st Status, firstLogin bool, v View) Decision {
	if IsPublic(v) {
		return allow()
	}
	if st != Authenticated {
		return redirect(ViewLogin)
	}
	if firstLogin && v != ViewProfile {
		return redirect(ViewProfile)
	}
	return allow()
}
