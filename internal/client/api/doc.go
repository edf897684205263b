// Package api is the HTTP/JSON client of the OpenTrace REST backend.
//
// # Overview
//
// HTTPClient wraps every endpoint the console uses: login and password
// change, resource CRUD, campaign/event/tag listing with password-gated
// deletes, and the dashboard, live and explore analytics reads. Bearer
// tokens come from a TokenSource, normally the session guard.
//
// # Error Handling
//
// Failures are reported as:
//   - ErrUnavailable (wrapped) for transport errors and timeouts;
//   - ErrUnauthorized for HTTP 401, after the OnUnauthorized handler ran;
//   - *Error for any other non-2xx status, with the backend "detail".
//
// Match them with errors.Is / errors.As, or use Detail to pull the message
// shown to the user.
package api
