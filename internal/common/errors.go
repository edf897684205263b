// Package common defines shared constants and sentinel errors used across
// the console, the API client and the tracker. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrorNotFound = errors.New("not found")

	// Transport / flow-control errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Persisted-state errors.
	ErrorMalformedState = errors.New("malformed persisted state")
)
