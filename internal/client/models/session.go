// Package models defines the client-side data shapes shared by the API
// client, the state managers and the console.
package models

// Role of an authenticated user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleDemo  Role = "demo"
)

// User is the profile blob persisted under the "user" key.
type User struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	Role         Role   `json:"role,omitempty"`
	IsFirstLogin bool   `json:"is_first_login"`
}

// Session is the authenticated user's credential bundle.
type Session struct {
	User
	Token string
}

// Valid reports whether the session can authorise protected requests.
func (s Session) Valid() bool {
	return s.Token != "" && s.UserID != 0
}

// Admin reports whether the user may perform write operations. A missing
// role is treated as admin, matching older backends that do not send it.
func (s Session) Admin() bool {
	return s.Role == "" || s.Role == RoleAdmin
}

// LoginRequest is the POST /login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the session payload returned by POST /login.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	IsFirstLogin bool   `json:"is_first_login"`
}

// Session converts the login payload into a Session.
func (r LoginResponse) Session() Session {
	return Session{
		User: User{
			UserID:       r.UserID,
			Email:        r.Email,
			Role:         r.Role,
			IsFirstLogin: r.IsFirstLogin,
		},
		Token: r.AccessToken,
	}
}

// ChangePasswordRequest is the POST /change-password body.
type ChangePasswordRequest struct {
	UserID          int64  `json:"user_id"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
