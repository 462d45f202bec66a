package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MessageMaxBodyLength = 256

// MaxQueueMessages bounds a queue's chat history. Stores drop the oldest
// messages past it so a snapshot stays within one frame.
const MaxQueueMessages = 200

var ErrMessageBodyTooLong = fmt.Errorf("message body exceeds %d characters", MessageMaxBodyLength)
var ErrMessageBodyEmpty = errors.New("message body cannot be empty")

// Message is one entry of a queue's chat, kept in the order the hub sent it.
type Message struct {
	Content string `json:"content"`
	Sender  User   `json:"sender"`
}

// TrimHistory returns the newest MaxQueueMessages of msgs, sharing its
// backing array.
func TrimHistory(msgs []Message) []Message {
	if len(msgs) <= MaxQueueMessages {
		return msgs
	}
	return msgs[len(msgs)-MaxQueueMessages:]
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrMessageBodyEmpty
	} else if utf8.RuneCountInString(m.Content) > MessageMaxBodyLength {
		return ErrMessageBodyTooLong
	}

	return nil
}
