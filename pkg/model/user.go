package model

import (
	"errors"
	"strings"
)

var ErrUserHeader = errors.New("user header must be \"username;full name;email\"")
var ErrUsernameEmpty = errors.New("username must not be empty")

// User is an opaque identity triple. Two users are the same person only when
// all three fields are byte-for-byte equal.
type User struct {
	Username string `json:"username" yaml:"username"`
	FullName string `json:"fullName" yaml:"full_name"`
	Email    string `json:"email" yaml:"email"`
}

// IsZero reports whether no identity field is set.
func (u User) IsZero() bool {
	return u == User{}
}

// Header encodes the identity for the hub handshake.
func (u User) Header() string {
	return u.Username + ";" + u.FullName + ";" + u.Email
}

// ParseUserHeader decodes a handshake identity produced by User.Header.
// Full names and emails may be empty, the username may not.
func ParseUserHeader(s string) (User, error) {
	parts := strings.SplitN(s, ";", 3)
	if len(parts) != 3 {
		return User{}, ErrUserHeader
	}
	u := User{Username: parts[0], FullName: parts[1], Email: parts[2]}
	if strings.TrimSpace(u.Username) == "" {
		return User{}, ErrUsernameEmpty
	}
	return u, nil
}

// IsMember reports whether u appears in q's member list. No normalization is
// applied: changing the case of an email is a different user.
func IsMember(u User, q Queue) bool {
	for _, m := range q.Members {
		if m == u {
			return true
		}
	}
	return false
}
