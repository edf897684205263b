// Package cli provides the interactive OpenTrace console.
//
// It wires configuration, the local state database, the REST client and the
// client-side state managers (session guard, resource registry, delete
// gate, preferences) behind a REPL. A background watcher checks the
// backend's health and reports online/offline changes.
//
// Key features:
//   - Login / Logout / password change, with first-login enforcement
//   - Resources: list, select, add, edit, password-confirmed delete
//   - Campaigns, events and tags listing and deletion
//   - Dashboard, live feed and analytics explorer views that follow the
//     selected resource and poll in the background
//
// Every command belongs to a screen and is routed through the session
// guard before it runs. The REPL is started via App.Run(ctx), which blocks
// until the user exits.
package cli
