// Package client implements the rq client: session state, the hidden-queue
// overlay, command dispatch and the websocket connection to the hub.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/protocol"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

// UserHeader carries the client identity in the websocket handshake.
const UserHeader = protocol.UserHeader

const writeWait = 10 * time.Second

var (
	ErrNotConnected   = errors.New("client: not connected")
	ErrSendQueueFull  = errors.New("client: send queue full")
	ErrConnectionGone = errors.New("client: connection closed")
)

// PushHandler is a callback for decoded hub pushes.
type PushHandler func(p *protocol.Push)

// ControlClient owns one websocket connection to the hub. Outbound frames go
// through a bounded queue drained by a writer goroutine; inbound frames are
// decoded and handed to the push handler. Frames that fail to decode are
// logged and dropped.
type ControlClient struct {
	conn    *websocket.Conn
	handler PushHandler

	out  chan []byte
	quit chan struct{}
	done chan struct{}

	pingInterval time.Duration
	readTimeout  time.Duration

	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

// Dial connects to the hub at hubURL as user.
func Dial(ctx context.Context, hubURL string, user model.User, cfg Config) (*ControlClient, error) {
	if _, err := url.Parse(hubURL); err != nil {
		return nil, fmt.Errorf("client: parse hub url: %w", err)
	}

	header := http.Header{}
	if !user.IsZero() {
		header.Set(UserHeader, user.Header())
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, hubURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: connect %s: %w (status %d)", hubURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: connect %s: %w", hubURL, err)
	}
	conn.SetReadLimit(protocol.MaxFrameSize)

	size := cfg.SendQueueSize
	if size <= 0 {
		size = 1
	}
	return &ControlClient{
		conn:         conn,
		out:          make(chan []byte, size),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		pingInterval: cfg.PingInterval,
		readTimeout:  cfg.ReadTimeout,
	}, nil
}

// SetPushHandler sets the callback for incoming pushes. Call before
// StartReceiving.
func (c *ControlClient) SetPushHandler(handler PushHandler) {
	c.handler = handler
}

// Send queues a command frame. It never blocks: a full queue or a closed
// connection refuses the command.
func (c *ControlClient) Send(cmd *pb.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	select {
	case <-c.quit:
		return ErrConnectionGone
	case <-c.done:
		return ErrConnectionGone
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// StartReceiving starts the reader and writer goroutines.
func (c *ControlClient) StartReceiving() {
	c.writerWG.Add(1)
	go c.writeLoop()
	go c.readLoop()
}

func (c *ControlClient) readLoop() {
	defer close(c.done)

	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || isClosing(c.quit) {
				slog.Debug("hub connection closed")
			} else {
				slog.Warn("hub read error", "err", err)
			}
			return
		}
		if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		p, err := protocol.DecodePush(data)
		if err != nil {
			slog.Warn("push rejected", "err", err)
			continue
		}
		if p.Legacy != "" {
			slog.Debug("legacy push upgraded", "event", p.Legacy)
		}
		if c.handler != nil {
			c.handler(p)
		}
	}
}

func (c *ControlClient) writeLoop() {
	defer c.writerWG.Done()

	var ping <-chan time.Time
	if c.pingInterval > 0 {
		t := time.NewTicker(c.pingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case data := <-c.out:
			if err := c.write(data); err != nil {
				slog.Warn("hub write error, command lost", "err", err)
				_ = c.conn.Close()
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		case <-c.quit:
			c.drain()
			return
		}
	}
}

// drain flushes frames queued before Close.
func (c *ControlClient) drain() {
	for {
		select {
		case data := <-c.out:
			if err := c.write(data); err != nil {
				slog.Warn("hub write error during close", "err", err)
				return
			}
		default:
			return
		}
	}
}

func (c *ControlClient) write(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close flushes queued commands, says goodbye and closes the connection.
func (c *ControlClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		c.writerWG.Wait()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

// Done returns a channel that's closed when the connection is lost.
func (c *ControlClient) Done() <-chan struct{} {
	return c.done
}

func isClosing(quit <-chan struct{}) bool {
	select {
	case <-quit:
		return true
	default:
		return false
	}
}
