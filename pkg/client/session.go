package client

import (
	"errors"
	"fmt"
	"sort"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/protocol"
)

var (
	ErrNilSnapshot = errors.New("client: nil snapshot")
	ErrNoIdentity  = errors.New("client: snapshot carries no current user")
)

// SessionState is the last snapshot the hub pushed, keyed by queue id, plus
// the identity the hub resolved for this client. It never holds local-only
// data and is only ever replaced wholesale.
type SessionState struct {
	Queues      map[int64]model.Queue
	CurrentUser model.User
	// Snapshots counts accepted snapshots.
	Snapshots int
}

// NewSessionState returns an empty state awaiting its first snapshot.
func NewSessionState() *SessionState {
	return &SessionState{Queues: make(map[int64]model.Queue)}
}

// Apply replaces the state with snap. Queues sharing an id keep the last
// occurrence. On error the state is left untouched.
func (s *SessionState) Apply(snap *protocol.Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	if snap.User == nil {
		return ErrNoIdentity
	}

	queues := make(map[int64]model.Queue, len(snap.Queues))
	for _, q := range snap.Queues {
		if !q.Status.Valid() {
			return fmt.Errorf("client: queue %d: %w: %d", q.ID, model.ErrUnknownStatus, int(q.Status))
		}
		queues[q.ID] = q.Clone()
	}

	s.Queues = queues
	s.CurrentUser = *snap.User
	s.Snapshots++
	return nil
}

// Queue returns the queue with id from the last snapshot.
func (s *SessionState) Queue(id int64) (model.Queue, bool) {
	q, ok := s.Queues[id]
	return q, ok
}

// Visible returns the snapshot's queues minus those in hidden, ordered by id.
// HiddenCount is the number of queues in the snapshot that hidden
// suppresses. Hidden ids absent from the snapshot are not counted.
func (s *SessionState) HiddenCount(hidden HiddenSet) int {
	n := 0
	for id := range hidden {
		if _, ok := s.Queues[id]; ok {
			n++
		}
	}
	return n
}

func (s *SessionState) Visible(hidden HiddenSet) []model.Queue {
	out := make([]model.Queue, 0, len(s.Queues))
	for id, q := range s.Queues {
		if hidden.Contains(id) {
			continue
		}
		out = append(out, q.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
