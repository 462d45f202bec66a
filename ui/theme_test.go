package ui

import (
	"testing"

	"fyne.io/fyne/v2/theme"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/present"
)

func TestNewThemeUsesStyle(t *testing.T) {
	for _, th := range model.Themes {
		t.Run(th.String(), func(t *testing.T) {
			style := present.StyleFor(th)
			got, ok := newTheme(th).(*queueTheme)
			if !ok {
				t.Fatalf("newTheme(%s) is not a queueTheme", th)
			}
			if got.Color(theme.ColorNameBackground, theme.VariantLight) != style.Background {
				t.Errorf("background does not come from the style")
			}
			if got.Color(theme.ColorNamePrimary, theme.VariantLight) != style.Primary {
				t.Errorf("primary does not come from the style")
			}
			if got.Size(theme.SizeNameInputRadius) != style.Radius {
				t.Errorf("input radius = %v, want %v", got.Size(theme.SizeNameInputRadius), style.Radius)
			}
			wantVariant := theme.VariantLight
			if style.Dark {
				wantVariant = theme.VariantDark
			}
			if got.variant != wantVariant {
				t.Errorf("variant = %v, want %v", got.variant, wantVariant)
			}
		})
	}
}

func TestNewThemeUnknownFallsBack(t *testing.T) {
	if _, ok := newTheme(model.Theme(42)).(*queueTheme); ok {
		t.Errorf("unknown theme should use the default fyne theme")
	}
}

func TestCardColor(t *testing.T) {
	style := present.StyleFor(model.ThemeModern)
	if cardColor(style, model.StatusOpen) != style.Card {
		t.Errorf("open card should use the card colour")
	}
	if cardColor(style, model.StatusClosed) != style.Card {
		t.Errorf("closed card should use the card colour")
	}
	if cardColor(style, model.StatusStarted) != style.CardStarted {
		t.Errorf("started card should use the started colour")
	}
}

func TestSelectedTheme(t *testing.T) {
	tests := map[string]model.Theme{
		"":          model.ThemeModern,
		"bogus":     model.ThemeModern,
		"Win98":     model.ThemeWin98,
		"ClassicQ3": model.ThemeClassicQ3,
		"Modern":    model.ThemeModern,
	}
	for name, want := range tests {
		if got := selectedTheme(name); got != want {
			t.Errorf("selectedTheme(%q) = %s, want %s", name, got, want)
		}
	}
}
