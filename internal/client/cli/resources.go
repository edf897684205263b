package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/registry"
)

var errReadOnly = errors.New("demo accounts are read-only")

var resourceTypes = []string{"web", "bot", "app"}

// requireAdmin rejects write commands for demo accounts.
func (a *App) requireAdmin(ctx context.Context) error {
	s, _ := a.guard.Current(ctx)
	if !s.Admin() {
		return errReadOnly
	}
	return nil
}

func parseID(name string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError(name)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func (a *App) ensureLoaded(ctx context.Context) error {
	if a.registry.Loaded() {
		return nil
	}
	return a.registry.Load(ctx)
}

// Resources reloads and prints the resource list. The selected resource is
// marked with '*'.
func (a *App) Resources(ctx context.Context) error {
	if err := a.registry.Load(ctx); err != nil {
		return err
	}
	sel, _ := a.registry.Selected()
	a.write(renderResources(a.registry.Resources(), sel.ID))
	return nil
}

// Select makes the resource with the given id current for every view.
func (a *App) Select(ctx context.Context, args []string) error {
	id, err := parseID("select", args)
	if err != nil {
		return err
	}
	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := a.registry.Select(ctx, id); err != nil {
		if errors.Is(err, registry.ErrResourceNotFound) {
			return fmt.Errorf("no resource with id %d", id)
		}
		return err
	}
	r, _ := a.registry.Selected()
	a.printLine(fmt.Sprintf("Selected resource: %s", r.Name))
	return nil
}

// Add creates a resource. The tracking uid is generated.
func (a *App) Add(ctx context.Context) error {
	if err := a.requireAdmin(ctx); err != nil {
		return err
	}

	name, err := getSimpleText(a.reader, "Resource name", a.out)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	kind, err := getChoice(a.reader, "Resource type", resourceTypes, "web", a.out)
	if err != nil {
		return err
	}
	typ, err := models.ParseResourceType(kind)
	if err != nil {
		return err
	}

	var secret string
	switch typ {
	case models.ResourceTelegramBot:
		secret, err = getSimpleText(a.reader, "Bot token", a.out)
	case models.ResourceMobileApp:
		secret, err = getSimpleText(a.reader, "Bundle id", a.out)
	}
	if err != nil {
		return err
	}

	r, err := a.registry.Add(ctx, name, typ, secret)
	if err != nil {
		return err
	}
	a.printLine(fmt.Sprintf("Created %s #%d with tracking uid %s", r.Name, r.ID, r.UID))
	return nil
}

// Edit renames a resource and/or changes its status. Empty answers keep the
// current values. The uid never changes.
func (a *App) Edit(ctx context.Context, args []string) error {
	if err := a.requireAdmin(ctx); err != nil {
		return err
	}
	id, err := parseID("edit", args)
	if err != nil {
		return err
	}
	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}
	cur, ok := a.registry.Get(id)
	if !ok {
		return fmt.Errorf("no resource with id %d", id)
	}

	name, err := getSimpleText(a.reader, fmt.Sprintf("Name (empty keeps %q)", cur.Name), a.out)
	if err != nil {
		return err
	}
	status, err := getChoice(a.reader, "Status",
		[]string{string(models.StatusActive), string(models.StatusInactive)}, string(cur.Status), a.out)
	if err != nil {
		return err
	}

	var patch models.ResourcePatch
	if name != "" && name != cur.Name {
		patch.Name = &name
	}
	if st := models.ResourceStatus(status); st != cur.Status {
		patch.Status = &st
	}
	if patch.Name == nil && patch.Status == nil {
		a.printLine("Nothing to change")
		return nil
	}

	r, err := a.registry.Update(ctx, id, patch)
	if err != nil {
		return err
	}
	a.printLine(fmt.Sprintf("Updated %s #%d", r.Name, r.ID))
	return nil
}
