// Package store defines queue persistence for the rq hub and provides an
// in-memory implementation.
package store

import (
	"errors"

	"github.com/NicolasHaas/rq/pkg/model"
)

var ErrQueueNotFound = errors.New("queue not found")

// QueueStore persists queues, their members and their chat.
// Implementations include the in-memory MemoryStore and the SQLite store in
// package datastore.
type QueueStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// CreateQueue stores a new Open queue and returns it with its assigned ID.
	CreateQueue(name, restrictToGroup string) (model.Queue, error)

	// PutQueue stores a complete queue, as read from a seed file. A zero ID
	// is assigned; a non-zero ID replaces any queue with that ID.
	PutQueue(q model.Queue) (model.Queue, error)

	// GetQueue retrieves a queue by ID. Returns (nil, nil) if not found.
	GetQueue(id int64) (*model.Queue, error)

	// ListQueues returns all queues ordered by ID.
	ListQueues() ([]model.Queue, error)

	// SetStatus changes a queue's lifecycle state.
	SetStatus(id int64, status model.Status) error

	// AddMember appends u to the queue. Reports false if u was already a member.
	AddMember(id int64, u model.User) (bool, error)

	// RemoveMember removes u from the queue. Reports false if u was not a member.
	RemoveMember(id int64, u model.User) (bool, error)

	// AppendMessage adds a chat message at the end of the queue's history.
	AppendMessage(id int64, m model.Message) error

	// DeleteQueue removes a queue with its members and messages.
	DeleteQueue(id int64) error
}

// Compile-time check: *MemoryStore implements QueueStore.
var _ QueueStore = (*MemoryStore)(nil)
