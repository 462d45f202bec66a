// Package present turns reconciled session state into renderable cards. It
// holds no state of its own; cards are recomposed on every redraw.
package present

import "github.com/NicolasHaas/rq/pkg/model"

// Status captions.
const (
	LabelStarted = "Started"
	LabelClosed  = "Closed"
	LabelJoined  = "Joined"
	LabelOpen    = "Open"
)

// MessageLine is one chat entry with its sender's avatar.
type MessageLine struct {
	Sender  Avatar
	Content string
}

// Card is the renderable form of one queue for one viewer.
type Card struct {
	ID              int64
	Name            string
	Status          model.Status
	StatusLabel     string
	Joined          bool
	Actions         []model.Action
	CanMessage      bool
	ImageURL        string
	RestrictToGroup string
	Members         []Avatar
	Messages        []MessageLine
}

// StatusLabel is the card caption: the lifecycle state once a queue has
// started, otherwise whether the viewer has joined.
func StatusLabel(q model.Queue, viewer model.User) string {
	switch q.Status {
	case model.StatusStarted:
		return LabelStarted
	case model.StatusClosed:
		return LabelClosed
	}
	if model.IsMember(viewer, q) {
		return LabelJoined
	}
	return LabelOpen
}

// Compose builds the card for q as seen by viewer.
func Compose(q model.Queue, viewer model.User) Card {
	c := Card{
		ID:              q.ID,
		Name:            q.Name,
		Status:          q.Status,
		StatusLabel:     StatusLabel(q, viewer),
		Joined:          model.IsMember(viewer, q),
		Actions:         model.Offered(q, viewer),
		CanMessage:      model.CanMessage(q, viewer),
		ImageURL:        HashtagImageURL(q.Name),
		RestrictToGroup: q.RestrictToGroup,
		Members:         make([]Avatar, 0, len(q.Members)),
		Messages:        make([]MessageLine, 0, len(q.Messages)),
	}
	for _, m := range q.Members {
		c.Members = append(c.Members, NewAvatar(m))
	}
	for _, m := range q.Messages {
		c.Messages = append(c.Messages, MessageLine{Sender: NewAvatar(m.Sender), Content: m.Content})
	}
	return c
}

// ComposeAll builds cards for queues in order.
func ComposeAll(queues []model.Queue, viewer model.User) []Card {
	cards := make([]Card, 0, len(queues))
	for _, q := range queues {
		cards = append(cards, Compose(q, viewer))
	}
	return cards
}
