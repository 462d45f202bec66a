package ctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/model"
)

var (
	ErrTimeout      = errors.New("ctl: timed out waiting for the hub")
	ErrNoSuchQueue  = errors.New("ctl: no such queue")
	ErrNotOffered   = errors.New("ctl: action not offered")
	ErrNoUsername   = errors.New("ctl: no username configured, run 'rqctl settings set --username ...'")
	ErrEmptyMessage = errors.New("ctl: message is empty")
)

// session runs a client engine without a UI for the duration of one command.
type session struct {
	engine *client.Engine
	views  chan client.View
	cancel context.CancelFunc
	done   chan struct{}
	unsub  func()
}

// openSession connects with cfg and the settings in storage. Reconnects and
// periodic refreshes are disabled: a CLI invocation is a single attempt.
// onNotice, if set, receives hub notices on the engine loop.
func openSession(ctx context.Context, cfg client.Config, storage client.SettingsStorage, onNotice func(client.NoticeEvent)) (*session, error) {
	if storage.Load().Username == "" {
		return nil, ErrNoUsername
	}
	cfg.ReconnectDelay = 0
	cfg.RefreshInterval = 0

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		engine: client.NewEngine(cfg, storage),
		views:  make(chan client.View, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.engine.OnNotice = onNotice
	s.unsub = s.engine.Subscribe(func(v client.View) {
		select {
		case s.views <- v:
		default:
		}
	})
	go func() {
		defer close(s.done)
		_ = s.engine.Run(ctx)
	}()
	return s, nil
}

// synced waits for the first snapshot of the session.
func (s *session) synced(timeout time.Duration) (client.View, error) {
	deadline := time.After(timeout)
	for {
		select {
		case v := <-s.views:
			if v.Synced {
				return v, nil
			}
			if v.State == client.StateDisconnected && v.Err != nil {
				return v, v.Err
			}
		case <-deadline:
			return client.View{}, ErrTimeout
		}
	}
}

// Close flushes queued commands and disconnects.
func (s *session) Close() {
	s.unsub()
	s.cancel()
	<-s.done
}

// find returns queue id from v.
func find(v client.View, id int64) (model.Queue, error) {
	for _, q := range v.Queues {
		if q.ID == id {
			return q, nil
		}
	}
	return model.Queue{}, fmt.Errorf("%w: %d", ErrNoSuchQueue, id)
}

// checkOffered reports whether the current user may perform a on queue id.
func checkOffered(v client.View, id int64, a model.Action) (model.Queue, error) {
	q, err := find(v, id)
	if err != nil {
		return q, err
	}
	if !model.Offers(q, v.User, a) {
		return q, fmt.Errorf("%w: %s on %s (%s)", ErrNotOffered, a, q.Name, q.Status)
	}
	return q, nil
}
