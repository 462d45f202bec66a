package present

import (
	"crypto/md5" //nolint:gosec // gravatar addresses images by md5 of the email
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/crypto/blake2b"

	"github.com/NicolasHaas/rq/pkg/model"
)

const (
	gravatarBase    = "https://www.gravatar.com/avatar/"
	fallbackAvatars = "https%3A%2F%2Fui-avatars.com%2Fapi%2F"
	avatarSize      = "128"

	avatarLightness = 0.6
)

var avatarSaturations = [...]float64{0.3, 0.45, 0.6}

// Avatar is a member or sender picture.
type Avatar struct {
	User  model.User
	URL   string
	Title string
}

// NewAvatar returns the avatar for u.
func NewAvatar(u model.User) Avatar {
	return Avatar{User: u, URL: GravatarURL(u), Title: u.FullName}
}

// GravatarURL addresses u's gravatar. Users without one fall back to an
// initials image tinted with AvatarColor.
func GravatarURL(u model.User) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(u.Email)))) //nolint:gosec // not used for security
	name := strings.Replace(u.FullName, " ", "+", 1)

	var b strings.Builder
	b.WriteString(gravatarBase)
	b.WriteString(hex.EncodeToString(sum[:]))
	b.WriteString("?d=")
	b.WriteString(fallbackAvatars)
	b.WriteByte('/')
	b.WriteString(encodeURIComponent(name))
	b.WriteByte('/')
	b.WriteString(avatarSize)
	b.WriteByte('/')
	b.WriteString(AvatarColor(u.FullName))
	return b.String()
}

// AvatarColor derives a stable hex colour (no leading '#') from s.
func AvatarColor(s string) string {
	sum := blake2b.Sum256([]byte(s))
	h := binary.BigEndian.Uint64(sum[:8])
	hue := float64(h % 359)
	sat := avatarSaturations[(h/360)%uint64(len(avatarSaturations))]
	return colorful.Hsl(hue, sat, avatarLightness).Clamped().Hex()[1:]
}

// encodeURIComponent escapes s the way browsers do for a URI component:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is percent-encoded.
func encodeURIComponent(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
