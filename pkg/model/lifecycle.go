package model

import (
	"errors"
	"fmt"
)

// Action is a user-facing queue command.
type Action int

const (
	ActionJoin Action = iota
	ActionLeave
	ActionStart
	ActionNag
	ActionReset
	ActionDelete
)

var ErrIllegalTransition = errors.New("illegal queue transition")

func (a Action) String() string {
	switch a {
	case ActionJoin:
		return "join"
	case ActionLeave:
		return "leave"
	case ActionStart:
		return "start"
	case ActionNag:
		return "nag"
	case ActionReset:
		return "reset"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Label is the button/menu caption for the action.
func (a Action) Label() string {
	switch a {
	case ActionJoin:
		return "Join Queue"
	case ActionLeave:
		return "Leave Queue"
	case ActionStart:
		return "Start Queue"
	case ActionNag:
		return "Nag Queue"
	case ActionReset:
		return "Reset Queue"
	case ActionDelete:
		return "Delete Queue"
	default:
		return "Unknown"
	}
}

// Offered returns the actions a client should present to u for q, in display
// order. It only reflects what the client is willing to send; the hub decides
// what actually happens.
//
//	Open:           Join|Leave, Start, Nag, Delete
//	Started/Closed: Leave (members only), Reset, Delete
func Offered(q Queue, u User) []Action {
	member := IsMember(u, q)
	actions := make([]Action, 0, 4)
	switch q.Status {
	case StatusOpen:
		if member {
			actions = append(actions, ActionLeave)
		} else {
			actions = append(actions, ActionJoin)
		}
		actions = append(actions, ActionStart, ActionNag)
	default:
		if member {
			actions = append(actions, ActionLeave)
		}
		actions = append(actions, ActionReset)
	}
	return append(actions, ActionDelete)
}

// Offers reports whether a is among Offered(q, u).
func Offers(q Queue, u User, a Action) bool {
	for _, o := range Offered(q, u) {
		if o == a {
			return true
		}
	}
	return false
}

// CanMessage gates the message composer. Status plays no part.
func CanMessage(q Queue, u User) bool {
	return IsMember(u, q)
}

// Transition returns the status a queue in from moves to when the hub applies
// a. Only status-changing actions are accepted. Deleting a closed queue
// removes it, which callers handle separately.
func Transition(from Status, a Action) (Status, error) {
	switch {
	case a == ActionStart && from == StatusOpen:
		return StatusStarted, nil
	case a == ActionReset && (from == StatusStarted || from == StatusClosed):
		return StatusOpen, nil
	case a == ActionDelete && (from == StatusOpen || from == StatusStarted):
		return StatusClosed, nil
	}
	return from, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, a, from)
}
