// Package gate implements the password confirmation step that precedes every
// irreversible delete.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
)

// GenericDenial is shown when a failed delete carries no backend detail.
const GenericDenial = "Invalid password or server-side denial"

var (
	ErrNotOpen   = errors.New("confirmation is not open")
	ErrNoDeleter = errors.New("no deleter for target kind")
)

// Kind is the entity a gate deletes.
type Kind string

const (
	KindResource Kind = "resource"
	KindCampaign Kind = "campaign"
	KindEvent    Kind = "event"
	KindTag      Kind = "tag"
	KindFunnel   Kind = "funnel"
)

// Target identifies what is being deleted. Label is display-only.
type Target struct {
	Kind  Kind
	ID    int64
	Label string
}

func (t Target) String() string {
	if t.Label == "" {
		return fmt.Sprintf("%s #%d", t.Kind, t.ID)
	}
	return fmt.Sprintf("%s #%d (%s)", t.Kind, t.ID, t.Label)
}

// Deleter performs the network delete for one kind.
type Deleter func(ctx context.Context, id int64, password string) error

// Gate holds at most one pending confirmation. The password is never
// pre-filled and is wiped on success and on cancel.
type Gate struct {
	deleters map[Kind]Deleter
	logger   logging.Logger

	mu       sync.Mutex
	open     bool
	target   Target
	password []byte
	message  string
}

func New(deleters map[Kind]Deleter, logger logging.Logger) *Gate {
	return &Gate{deleters: deleters, logger: logger.With("component", "gate")}
}

// Open starts a confirmation for t, replacing any pending one.
func (g *Gate) Open(t Target) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wipe()
	g.open = true
	g.target = t
	g.message = ""
}

// SetPassword stores a copy of p for the next Submit.
func (g *Gate) SetPassword(p []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return ErrNotOpen
	}
	g.wipe()
	g.password = append([]byte(nil), p...)
	return nil
}

// IsOpen reports whether a confirmation is pending.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Target returns the pending target.
func (g *Gate) Target() (Target, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target, g.open
}

// Message is the denial of the last failed Submit.
func (g *Gate) Message() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.message
}

// HasPassword reports whether a password has been entered.
func (g *Gate) HasPassword() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.password) > 0
}

// Submit sends the pending delete. On failure the gate stays open with
// Message set and the error is returned; on success it closes.
func (g *Gate) Submit(ctx context.Context) error {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return ErrNotOpen
	}
	t := g.target
	password := string(g.password)
	del, ok := g.deleters[t.Kind]
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDeleter, t.Kind)
	}

	err := del(ctx, t.ID, password)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.target != t || !g.open {
		// Cancelled or re-opened meanwhile.
		return err
	}
	if err != nil {
		g.message = denial(err)
		g.logger.Info(ctx, "delete denied", "target", t.String(), "reason", g.message)
		return err
	}
	g.logger.Info(ctx, "deleted", "target", t.String())
	g.close()
	return nil
}

// Cancel closes the gate without deleting.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.close()
}

func (g *Gate) close() {
	g.wipe()
	g.open = false
	g.target = Target{}
	g.message = ""
}

func (g *Gate) wipe() {
	common.WipeByteArray(g.password)
	g.password = nil
}

func denial(err error) string {
	if detail, ok := api.Detail(err); ok {
		return detail
	}
	return GenericDenial
}
