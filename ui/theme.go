package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/present"
)

// queueTheme paints fyne widgets with a present.Style and defers everything
// else to the default theme.
type queueTheme struct {
	style   present.Style
	variant fyne.ThemeVariant
}

var _ fyne.Theme = (*queueTheme)(nil)

// newTheme returns the fyne theme for t. Unknown themes get fyne's default.
func newTheme(t model.Theme) fyne.Theme {
	style := present.StyleFor(t)
	if style.IsZero() {
		return theme.DefaultTheme()
	}
	variant := theme.VariantLight
	if style.Dark {
		variant = theme.VariantDark
	}
	return &queueTheme{style: style, variant: variant}
}

func (t *queueTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return t.style.Background
	case theme.ColorNameForeground:
		return t.style.Foreground
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return t.style.Primary
	case theme.ColorNameButton:
		return t.style.Button
	case theme.ColorNameInputBackground, theme.ColorNameMenuBackground,
		theme.ColorNameOverlayBackground, theme.ColorNameHeaderBackground:
		return t.style.Card
	}
	return theme.DefaultTheme().Color(name, t.variant)
}

func (t *queueTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *queueTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *queueTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNameInputRadius, theme.SizeNameSelectionRadius:
		return t.style.Radius
	}
	return theme.DefaultTheme().Size(name)
}

// cardColor is the card background for a queue in status.
func cardColor(style present.Style, status model.Status) color.Color {
	if style.IsZero() {
		return theme.Color(theme.ColorNameInputBackground)
	}
	if status == model.StatusStarted {
		return style.CardStarted
	}
	return style.Card
}
