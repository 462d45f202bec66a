package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/NicolasHaas/rq/pkg/model"
)

// MemoryStore provides an in-memory QueueStore for tests and ephemeral hubs.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	nextQueueID int64
	queuesByID  map[int64]*model.Queue
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nextQueueID: 1,
		queuesByID:  make(map[int64]*model.Queue),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateQueue stores a new Open queue.
func (s *MemoryStore) CreateQueue(name, restrictToGroup string) (model.Queue, error) {
	if err := model.ValidateQueueName(name); err != nil {
		return model.Queue{}, fmt.Errorf("store: create queue: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q := &model.Queue{
		ID:              s.nextQueueID,
		Name:            name,
		Status:          model.StatusOpen,
		RestrictToGroup: restrictToGroup,
	}
	s.nextQueueID++
	s.queuesByID[q.ID] = q
	return q.Clone(), nil
}

// PutQueue stores a complete queue.
func (s *MemoryStore) PutQueue(q model.Queue) (model.Queue, error) {
	if err := model.ValidateQueueName(q.Name); err != nil {
		return model.Queue{}, fmt.Errorf("store: put queue: %w", err)
	}
	if !q.Status.Valid() {
		return model.Queue{}, fmt.Errorf("store: put queue: %w", model.ErrUnknownStatus)
	}
	for _, m := range q.Messages {
		if err := m.Validate(); err != nil {
			return model.Queue{}, fmt.Errorf("store: put queue: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == 0 {
		q.ID = s.nextQueueID
	}
	if q.ID >= s.nextQueueID {
		s.nextQueueID = q.ID + 1
	}
	q.Messages = model.TrimHistory(q.Messages)
	stored := q.Clone()
	s.queuesByID[q.ID] = &stored
	return stored.Clone(), nil
}

// GetQueue retrieves a queue by ID.
func (s *MemoryStore) GetQueue(id int64) (*model.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queuesByID[id]
	if !ok {
		return nil, nil
	}
	out := q.Clone()
	return &out, nil
}

// ListQueues returns all queues ordered by ID.
func (s *MemoryStore) ListQueues() ([]model.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queues := make([]model.Queue, 0, len(s.queuesByID))
	for _, q := range s.queuesByID {
		queues = append(queues, q.Clone())
	}
	sort.Slice(queues, func(i, j int) bool {
		return queues[i].ID < queues[j].ID
	})
	return queues, nil
}

// SetStatus changes a queue's lifecycle state.
func (s *MemoryStore) SetStatus(id int64, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("store: set status: %w", model.ErrUnknownStatus)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queuesByID[id]
	if !ok {
		return fmt.Errorf("store: set status: %w", ErrQueueNotFound)
	}
	q.Status = status
	return nil
}

// AddMember appends u to the queue's member list.
func (s *MemoryStore) AddMember(id int64, u model.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queuesByID[id]
	if !ok {
		return false, fmt.Errorf("store: add member: %w", ErrQueueNotFound)
	}
	if model.IsMember(u, *q) {
		return false, nil
	}
	q.Members = append(q.Members, u)
	return true, nil
}

// RemoveMember removes u from the queue's member list.
func (s *MemoryStore) RemoveMember(id int64, u model.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queuesByID[id]
	if !ok {
		return false, fmt.Errorf("store: remove member: %w", ErrQueueNotFound)
	}
	for i, m := range q.Members {
		if m == u {
			q.Members = append(q.Members[:i:i], q.Members[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// AppendMessage adds a chat message to the queue.
func (s *MemoryStore) AppendMessage(id int64, m model.Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queuesByID[id]
	if !ok {
		return fmt.Errorf("store: append message: %w", ErrQueueNotFound)
	}
	q.Messages = append(q.Messages, m)
	if len(q.Messages) > model.MaxQueueMessages {
		q.Messages = append([]model.Message(nil), model.TrimHistory(q.Messages)...)
	}
	return nil
}

// DeleteQueue removes a queue.
func (s *MemoryStore) DeleteQueue(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queuesByID, id)
	return nil
}
