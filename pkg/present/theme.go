package present

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/NicolasHaas/rq/pkg/model"
)

// Style is the palette a renderer applies for a theme.
type Style struct {
	Name        string
	Dark        bool
	Background  color.Color
	Card        color.Color
	CardStarted color.Color
	Foreground  color.Color
	Primary     color.Color
	Button      color.Color
	// Radius is the corner rounding for cards and buttons, in points.
	Radius float32
}

// NoStyle is returned for a theme value outside the known set. Renderers
// fall back to their own defaults.
var NoStyle = Style{}

// IsZero reports whether s is NoStyle.
func (s Style) IsZero() bool {
	return s.Name == ""
}

var (
	win98Style = Style{
		Name:       "win98",
		Background: mustHex("#008080"),
		Card:       mustHex("#c0c0c0"),
		Foreground: mustHex("#000000"),
		Primary:    mustHex("#000080"),
		Button:     mustHex("#c0c0c0"),
		Radius:     0,
	}
	classicQ3Style = Style{
		Name:       "classicq3",
		Dark:       true,
		Background: mustHex("#1b1b1b"),
		Card:       mustHex("#3a2f1f"),
		Foreground: mustHex("#e8d8b0"),
		Primary:    mustHex("#c8102e"),
		Button:     mustHex("#5a4630"),
		Radius:     2,
	}
	modernStyle = Style{
		Name:       "modern",
		Background: mustHex("#f4f5f7"),
		Card:       mustHex("#ffffff"),
		Foreground: mustHex("#172b4d"),
		Primary:    mustHex("#0065ff"),
		Button:     mustHex("#ebecf0"),
		Radius:     8,
	}
)

func init() {
	for _, s := range []*Style{&win98Style, &classicQ3Style, &modernStyle} {
		s.CardStarted = blend(s.Card, s.Primary, 0.25)
	}
}

// StyleFor maps a theme to its style. Every known theme has an entry.
func StyleFor(t model.Theme) Style {
	switch t {
	case model.ThemeWin98:
		return win98Style
	case model.ThemeClassicQ3:
		return classicQ3Style
	case model.ThemeModern:
		return modernStyle
	default:
		return NoStyle
	}
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(fmt.Sprintf("present: bad colour %q: %v", s, err))
	}
	return c
}

func blend(a, b color.Color, t float64) color.Color {
	ca, _ := colorful.MakeColor(a)
	cb, _ := colorful.MakeColor(b)
	return ca.BlendLab(cb, t).Clamped()
}
