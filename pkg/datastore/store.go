package datastore

import (
	"context"
	"fmt"

	"github.com/NicolasHaas/rq/pkg/model"
)

// Store adapts a ProviderFactory to store.QueueStore.
type Store struct {
	f *ProviderFactory
}

// Open opens the SQLite database at dbPath as a queue store.
func Open(dbPath string) (*Store, error) {
	f, err := NewProviderFactory(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{f: f}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.f.Close()
}

func (s *Store) CreateQueue(name, restrictToGroup string) (model.Queue, error) {
	return s.f.NonTx().CreateQueue(name, restrictToGroup)
}

// PutQueue stores a complete queue in one transaction.
func (s *Store) PutQueue(q model.Queue) (model.Queue, error) {
	tx, err := s.f.Tx(context.Background())
	if err != nil {
		return model.Queue{}, fmt.Errorf("datastore: put queue: %w", err)
	}
	out, err := tx.InsertQueue(q)
	if err != nil {
		_ = tx.Rollback()
		return model.Queue{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Queue{}, fmt.Errorf("datastore: put queue: %w", err)
	}
	return out, nil
}

func (s *Store) GetQueue(id int64) (*model.Queue, error) {
	return s.f.NonTx().GetQueue(id)
}

func (s *Store) ListQueues() ([]model.Queue, error) {
	return s.f.NonTx().ListQueues()
}

func (s *Store) SetStatus(id int64, status model.Status) error {
	return s.f.NonTx().SetStatus(id, status)
}

func (s *Store) AddMember(id int64, u model.User) (bool, error) {
	return s.f.NonTx().AddMember(id, u)
}

func (s *Store) RemoveMember(id int64, u model.User) (bool, error) {
	return s.f.NonTx().RemoveMember(id, u)
}

func (s *Store) AppendMessage(id int64, m model.Message) error {
	return s.f.NonTx().AppendMessage(id, m)
}

func (s *Store) DeleteQueue(id int64) error {
	return s.f.NonTx().DeleteQueue(id)
}
