package datastore

import (
	"context"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/store"
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the SQL persistence operations for queues. Store wraps a
// factory into a store.QueueStore, running multi-statement writes in a
// transaction.
type DataStore interface {
	QueueReadProvider
	QueueWriteProvider

	MemberWriteProvider
	MessageWriteProvider
}

// Compile-time checks.
var (
	_ DataProviderFactory = (*ProviderFactory)(nil)
	_ store.QueueStore    = (*Store)(nil)
)

type QueueReadProvider interface {
	GetQueue(id int64) (*model.Queue, error)
	ListQueues() ([]model.Queue, error)
}

type QueueWriteProvider interface {
	CreateQueue(name, restrictToGroup string) (model.Queue, error)
	InsertQueue(q model.Queue) (model.Queue, error)
	SetStatus(id int64, status model.Status) error
	DeleteQueue(id int64) error
}

type MemberWriteProvider interface {
	AddMember(id int64, u model.User) (bool, error)
	RemoveMember(id int64, u model.User) (bool, error)
}

type MessageWriteProvider interface {
	AppendMessage(id int64, m model.Message) error
}
