package model

import (
	"fmt"
	"strings"
)

// Theme selects the client's visual style. The set is closed.
type Theme int

const (
	ThemeWin98 Theme = iota
	ThemeClassicQ3
	ThemeModern
)

// Themes lists every theme in menu order.
var Themes = []Theme{ThemeWin98, ThemeClassicQ3, ThemeModern}

func (t Theme) String() string {
	switch t {
	case ThemeWin98:
		return "Win98"
	case ThemeClassicQ3:
		return "ClassicQ3"
	case ThemeModern:
		return "Modern"
	default:
		return "Unknown"
	}
}

// ParseTheme converts a theme name to a Theme.
func ParseTheme(s string) (Theme, error) {
	for _, t := range Themes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown theme %q", s)
}

func (t Theme) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Theme) UnmarshalText(text []byte) error {
	parsed, err := ParseTheme(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Settings is the local user's profile and display theme. It is always
// written as a whole record.
type Settings struct {
	FullName string   `json:"fullName" yaml:"full_name"`
	Username string   `json:"username" yaml:"username"`
	Email    string   `json:"email" yaml:"email"`
	Groups   []string `json:"groups" yaml:"groups"`
	Theme    Theme    `json:"theme" yaml:"theme"`
	HubURL   string   `json:"-" yaml:"hub_url,omitempty"`
}

// Identity is the user the settings describe.
func (s Settings) Identity() User {
	return User{Username: s.Username, FullName: s.FullName, Email: s.Email}
}

// ParseGroups splits a comma separated group list, dropping blanks.
func ParseGroups(s string) []string {
	var groups []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
