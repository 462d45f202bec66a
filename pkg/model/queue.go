// Package model defines the domain types shared by the rq client and hub.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Status is the lifecycle state of a queue.
type Status int

const (
	StatusOpen Status = iota
	StatusStarted
	StatusClosed
)

const MaxQueueNameLength = 64

var ErrQueueNameEmpty = errors.New("queue name must not be empty")
var ErrQueueNameTooLong = fmt.Errorf("queue name must not exceed %d characters", MaxQueueNameLength)
var ErrUnknownStatus = errors.New("unknown queue status")

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusStarted:
		return "Started"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	return s >= StatusOpen && s <= StatusClosed
}

// ParseStatus converts a status name to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Open":
		return StatusOpen, nil
	case "Started":
		return StatusStarted, nil
	case "Closed":
		return StatusClosed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either the status name or the numeric form used by
// older hubs (0 Open, 1 Started, 2 Closed).
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseStatus(name)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownStatus, string(data))
	}
	if !Status(n).Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, n)
	}
	*s = Status(n)
	return nil
}

// Queue is a backend-owned waiting group. Everything except ID is replaced
// wholesale on every snapshot.
type Queue struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Status          Status    `json:"status"`
	Members         []User    `json:"members"`
	Messages        []Message `json:"messages"`
	RestrictToGroup string    `json:"restrictToGroup"`
}

// Clone returns a deep copy of q.
func (q Queue) Clone() Queue {
	out := q
	out.Members = append([]User(nil), q.Members...)
	out.Messages = append([]Message(nil), q.Messages...)
	return out
}

// ValidateQueueName checks a name for a new queue.
func ValidateQueueName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrQueueNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxQueueNameLength {
		return ErrQueueNameTooLong
	}
	return nil
}
