package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/protocol"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

// State represents the client's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// View is everything a renderer needs for one frame. Subscribers share it and
// must treat it as read-only.
type View struct {
	Queues   []model.Queue // visible queues ordered by id
	Hidden   int           // snapshot queues currently hidden
	User     model.User
	Settings model.Settings
	State    State
	// Synced is set once a snapshot has been accepted this session.
	Synced bool
	// Err is the last connection error, cleared on connect.
	Err error
}

// NoticeEvent is a hub notice resolved against the current snapshot.
type NoticeEvent struct {
	Type    string
	QueueID int64
	// Queue is the queue as last seen, zero unless Known.
	Queue model.Queue
	Known bool
}

// Engine owns the client session. All state lives on a single event loop
// started by Run; public methods post work to it and never wait for the hub.
type Engine struct {
	cfg      Config
	storage  SettingsStorage
	dispatch *Dispatcher

	ops     chan func()
	stopped chan struct{}
	conn    atomic.Pointer[ControlClient]

	// postMu lets shutdown wait out posts in flight before draining ops.
	postMu sync.RWMutex
	closed bool

	// Owned by the loop.
	ctx      context.Context
	state    *SessionState
	hidden   HiddenSet
	settings model.Settings
	conState State
	lastErr  error
	gen      uint64
	retry    <-chan time.Time
	subs     map[uint64]func(View)
	nextSub  uint64

	// OnNotice is called on the loop for every accepted notice. Set before Run.
	OnNotice func(NoticeEvent)
}

// NewEngine creates an engine. Settings are loaded from storage immediately.
func NewEngine(cfg Config, storage SettingsStorage) *Engine {
	e := &Engine{
		cfg:      cfg,
		storage:  storage,
		ops:      make(chan func(), 256),
		stopped:  make(chan struct{}),
		state:    NewSessionState(),
		hidden:   make(HiddenSet),
		settings: storage.Load(),
		subs:     make(map[uint64]func(View)),
	}
	e.dispatch = NewDispatcher(e)
	return e
}

// Dispatcher returns the command dispatcher bound to this engine.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatch
}

// Send implements Sender over the current connection.
func (e *Engine) Send(cmd *pb.Command) error {
	c := e.conn.Load()
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(cmd)
}

// Run connects to the hub and processes events until ctx is cancelled. The
// connection is closed gracefully on return, flushing queued commands.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()
	e.ctx = ctx

	var refresh <-chan time.Time
	if e.cfg.RefreshInterval > 0 {
		t := time.NewTicker(e.cfg.RefreshInterval)
		defer t.Stop()
		refresh = t.C
	}

	e.dial()
	for {
		select {
		case <-ctx.Done():
			e.disconnect(true)
			return nil
		case fn := <-e.ops:
			fn()
		case <-refresh:
			if e.conState == StateConnected {
				e.dispatch.ListQueues()
			}
		case <-e.retry:
			e.retry = nil
			e.dial()
		}
	}
}

// Subscribe registers fn for every redraw and immediately delivers the
// current view. fn runs on the loop and must not block.
func (e *Engine) Subscribe(fn func(View)) (unsubscribe func()) {
	var id uint64
	e.post(func() {
		e.nextSub++
		id = e.nextSub
		e.subs[id] = fn
		fn(e.view())
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			e.post(func() { delete(e.subs, id) })
		})
	}
}

// Hide suppresses a queue for the rest of the session.
func (e *Engine) Hide(id int64) {
	e.post(func() {
		e.hidden.Hide(id)
		e.render()
	})
}

// RestoreAll brings back every hidden queue.
func (e *Engine) RestoreAll() {
	e.post(func() {
		e.hidden.RestoreAll()
		e.render()
	})
}

// Refresh requests a fresh snapshot.
func (e *Engine) Refresh() {
	e.dispatch.ListQueues()
}

// WriteSettings saves the whole settings record, updates the view and
// reconnects so the hub sees the new identity.
func (e *Engine) WriteSettings(s model.Settings) error {
	if err := e.storage.Save(s); err != nil {
		return fmt.Errorf("client: write settings: %w", err)
	}
	slog.Info("settings saved", "username", s.Username, "theme", s.Theme)
	e.post(func() {
		e.settings = s
		e.render()
		if e.ctx != nil && e.ctx.Err() == nil {
			e.disconnect(false)
			e.retry = nil
			e.dial()
		}
	})
	return nil
}

// post hands fn to the loop. It returns false once Run has exited.
func (e *Engine) post(fn func()) bool {
	e.postMu.RLock()
	defer e.postMu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.ops <- fn:
		return true
	case <-e.stopped:
		return false
	}
}

// shutdown refuses further posts and runs the ones already queued. Their
// generation is stale by now, so a connection dialed during shutdown is
// closed rather than leaked.
func (e *Engine) shutdown() {
	close(e.stopped)
	e.postMu.Lock()
	e.closed = true
	e.postMu.Unlock()
	for {
		select {
		case fn := <-e.ops:
			fn()
		default:
			return
		}
	}
}

func (e *Engine) hubURL() string {
	switch {
	case e.cfg.HubURL != "":
		return e.cfg.HubURL
	case e.settings.HubURL != "":
		return e.settings.HubURL
	default:
		return DefaultHubURL
	}
}

func (e *Engine) dial() {
	e.gen++
	gen := e.gen
	ctx := e.ctx
	hub := e.hubURL()
	user := e.settings.Identity()
	e.setState(StateConnecting)

	go func() {
		c, err := Dial(ctx, hub, user, e.cfg)
		if !e.post(func() { e.connected(gen, hub, c, err) }) && c != nil {
			_ = c.Close()
		}
	}()
}

func (e *Engine) connected(gen uint64, hub string, c *ControlClient, err error) {
	if gen != e.gen {
		if c != nil {
			_ = c.Close()
		}
		return
	}
	if err != nil {
		slog.Warn("connect failed", "hub", hub, "err", err)
		e.lastErr = err
		e.setState(StateDisconnected)
		e.scheduleRetry()
		return
	}

	c.SetPushHandler(func(p *protocol.Push) {
		e.post(func() { e.handlePush(gen, p) })
	})
	c.StartReceiving()
	e.conn.Store(c)
	e.lastErr = nil
	slog.Info("connected", "hub", hub, "user", e.settings.Username)
	e.setState(StateConnected)
	e.dispatch.ListQueues()

	go func() {
		<-c.Done()
		e.post(func() { e.lost(gen, c) })
	}()
}

func (e *Engine) lost(gen uint64, c *ControlClient) {
	if gen != e.gen {
		return
	}
	e.conn.CompareAndSwap(c, nil)
	_ = c.Close()
	slog.Warn("hub connection lost")
	e.lastErr = ErrConnectionGone
	e.setState(StateDisconnected)
	e.scheduleRetry()
}

// disconnect drops the current connection. With wait set the queued commands
// are flushed before returning.
func (e *Engine) disconnect(wait bool) {
	e.gen++
	c := e.conn.Swap(nil)
	if c == nil {
		return
	}
	if wait {
		_ = c.Close()
	} else {
		go c.Close()
	}
	e.conState = StateDisconnected
}

func (e *Engine) scheduleRetry() {
	if e.cfg.ReconnectDelay <= 0 {
		return
	}
	slog.Debug("reconnect scheduled", "in", e.cfg.ReconnectDelay)
	e.retry = time.After(e.cfg.ReconnectDelay)
}

func (e *Engine) handlePush(gen uint64, p *protocol.Push) {
	if gen != e.gen {
		return
	}
	switch {
	case p.Snapshot != nil:
		snap := *p.Snapshot
		if snap.User == nil {
			u := e.settings.Identity()
			snap.User = &u
		}
		if err := e.state.Apply(&snap); err != nil {
			slog.Warn("snapshot rejected", "err", err)
			return
		}
		slog.Debug("snapshot applied", "queues", len(snap.Queues))
		e.render()

	case p.Notice != nil:
		q, ok := e.state.Queue(p.Notice.QueueID)
		slog.Info("hub notice", "type", p.Notice.Type, "queue", p.Notice.QueueID)
		if e.OnNotice != nil {
			e.OnNotice(NoticeEvent{Type: p.Notice.Type, QueueID: p.Notice.QueueID, Queue: q, Known: ok})
		}
	}
}

func (e *Engine) setState(s State) {
	e.conState = s
	e.render()
}

func (e *Engine) view() View {
	return View{
		Queues:   e.state.Visible(e.hidden),
		Hidden:   e.state.HiddenCount(e.hidden),
		User:     e.state.CurrentUser,
		Settings: e.settings,
		State:    e.conState,
		Synced:   e.state.Snapshots > 0,
		Err:      e.lastErr,
	}
}

func (e *Engine) render() {
	if len(e.subs) == 0 {
		return
	}
	v := e.view()
	for _, fn := range e.subs {
		fn(v)
	}
}
