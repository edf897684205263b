// Package storage persists the console's client-side state: the session
// blob, the bearer token, the selected resource and UI preferences. Values
// are plain strings, the same as browser localStorage, and are treated as
// advisory caches by the state managers built on top.
package storage

import "context"

// Store is a string key/value store.
//
// Get reports ok=false for an absent key. Delete and Clear are idempotent.
// SetMany applies all pairs atomically.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}
