package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/rq/pkg/model"
)

const writeWait = 10 * time.Second

// Conn is one connected client. Pushes are queued on a bounded channel and
// written by the connection's writer goroutine.
type Conn struct {
	ID   string
	User model.User

	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// push queues a frame. It reports false if the connection is closed or its
// queue is full.
func (c *Conn) push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) writeLoop(pingInterval time.Duration) {
	var ping <-chan time.Time
	if pingInterval > 0 {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("push write failed", "conn", c.ID, "err", err)
				c.close()
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close says goodbye and closes the socket. Safe to call more than once.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.goodbye()
	})
}

// drop marks c closed at once and says goodbye in the background. The hub
// calls it with commands serialized, where a stuck peer must not block.
func (c *Conn) drop() {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.goodbye()
	})
}

func (c *Conn) goodbye() {
	if c.ws == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.ws.Close()
}

// Registry tracks live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn // conn ID -> conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Add registers a connection for user.
func (r *Registry) Add(user model.User, ws *websocket.Conn, buffer int) *Conn {
	c := &Conn{
		ID:   uuid.NewString(),
		User: user,
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	return c
}

// Remove removes a connection.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// All returns the live connections ordered by username, then ID.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	result := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		result = append(result, c)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].User.Username != result[j].User.Username {
			return result[i].User.Username < result[j].User.Username
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// CloseAll closes every live connection.
func (r *Registry) CloseAll() {
	for _, c := range r.All() {
		c.close()
	}
}
