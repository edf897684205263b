package cli

import (
	"context"
	"fmt"
)

// Theme prints or sets the color theme.
func (a *App) Theme(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printLine("Theme: " + a.prefs.Theme(ctx))
		return nil
	}
	if len(args) > 1 {
		return usageError("theme")
	}
	if err := a.prefs.SetTheme(ctx, args[0]); err != nil {
		return err
	}
	a.printLine(fmt.Sprintf("Theme set to %s", args[0]))
	return nil
}

// Lang prints or sets the interface language.
func (a *App) Lang(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printLine("Language: " + a.prefs.Language(ctx))
		return nil
	}
	if len(args) > 1 {
		return usageError("lang")
	}
	if err := a.prefs.SetLanguage(ctx, args[0]); err != nil {
		return err
	}
	a.printLine(fmt.Sprintf("Language set to %s", args[0]))
	return nil
}
