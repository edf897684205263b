// Package prefs stores the console's UI preferences.
package prefs

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"

	DefaultTheme    = ThemeDark
	DefaultLanguage = "en"
)

var (
	Themes    = []string{ThemeDark, ThemeLight}
	Languages = []string{"en", "ua", "pl", "de"}
)

type Prefs struct {
	store storage.Store
}

func New(store storage.Store) *Prefs {
	return &Prefs{store: store}
}

func (p *Prefs) get(ctx context.Context, key, def string, allowed []string) string {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil || !ok || !slices.Contains(allowed, v) {
		return def
	}
	return v
}

func (p *Prefs) set(ctx context.Context, key, v string, allowed []string) error {
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("unsupported value %q, want one of %v", v, allowed)
	}
	if err := p.store.Set(ctx, key, v); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Theme returns the stored theme or dark.
func (p *Prefs) Theme(ctx context.Context) string {
	return p.get(ctx, common.KeyTheme, DefaultTheme, Themes)
}

func (p *Prefs) SetTheme(ctx context.Context, theme string) error {
	return p.set(ctx, common.KeyTheme, theme, Themes)
}

// Language returns the stored UI language or en.
func (p *Prefs) Language(ctx context.Context) string {
	return p.get(ctx, common.KeyLanguage, DefaultLanguage, Languages)
}

func (p *Prefs) SetLanguage(ctx context.Context, lang string) error {
	return p.set(ctx, common.KeyLanguage, lang, Languages)
}
