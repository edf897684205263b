package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/client/gate"
	"github.com/dmitrijs2005/opentrace-console/internal/client/session"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
)

var deleteCommands = map[gate.Kind]string{
	gate.KindResource: "delete",
	gate.KindCampaign: "delete-campaign",
	gate.KindEvent:    "delete-event",
	gate.KindTag:      "delete-tag",
	gate.KindFunnel:   "delete-funnel",
}

// Delete asks for the account password and removes the entity. A rejected
// password keeps the confirmation open and asks again; an empty answer
// cancels.
func (a *App) Delete(ctx context.Context, kind gate.Kind, args []string) error {
	if err := a.requireAdmin(ctx); err != nil {
		return err
	}
	id, err := parseID(deleteCommands[kind], args)
	if err != nil {
		return err
	}

	t := gate.Target{Kind: kind, ID: id}
	if kind == gate.KindResource {
		if r, ok := a.registry.Get(id); ok {
			t.Label = r.Name
		}
	}

	a.gate.Open(t)
	a.printLine(fmt.Sprintf("Deleting %s. This cannot be undone.", t))

	for a.gate.IsOpen() {
		pw, err := getPassword(a.out, "Password to confirm (empty to cancel)")
		if err != nil {
			a.gate.Cancel()
			return err
		}
		if len(pw) == 0 {
			a.gate.Cancel()
			a.printLine("Cancelled")
			return nil
		}

		err = a.gate.SetPassword(pw)
		common.WipeByteArray(pw)
		if err != nil {
			return err
		}

		if err := a.gate.Submit(ctx); err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				a.gate.Cancel()
				return err
			}
			if !a.gate.IsOpen() {
				return err
			}
			a.printLine(a.gate.Message())
			continue
		}
	}

	a.printLine(fmt.Sprintf("Deleted %s", t))
	if v, name := a.activeView(); kind == gate.KindFunnel && name == session.ViewFunnels {
		v.Refresh()
	}
	return nil
}
