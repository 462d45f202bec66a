package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/protocol"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
	"github.com/NicolasHaas/rq/pkg/store"
)

var (
	ErrNoIdentity = errors.New("hub: missing user identity")
	ErrNotMember  = errors.New("hub: sender is not a queue member")
)

var upgrader = websocket.Upgrader{
	// Desktop clients send no Origin worth checking.
	CheckOrigin: func(*http.Request) bool { return true },
}

// identify resolves the connecting user from the User header, falling back to
// the user query parameter.
func identify(r *http.Request) (model.User, error) {
	raw := r.Header.Get(protocol.UserHeader)
	if raw == "" {
		raw = r.URL.Query().Get(protocol.UserQuery)
	}
	if raw == "" {
		return model.User{}, ErrNoIdentity
	}
	return model.ParseUserHeader(raw)
}

// handleHub handles a single websocket connection lifecycle.
func (s *Server) handleHub(w http.ResponseWriter, r *http.Request) {
	user, err := identify(r)
	if err != nil {
		s.metrics.RejectedHandshakes.Add(1)
		slog.Warn("handshake rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := s.registry.Add(user, ws, s.cfg.SendBuffer)
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Info("client connected", "conn", c.ID, "user", user.Username, "remote", r.RemoteAddr)

	defer func() {
		s.registry.Remove(c.ID)
		c.close()
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
		slog.Info("client disconnected", "conn", c.ID, "user", user.Username)
	}()

	go c.writeLoop(s.cfg.PingInterval)

	ws.SetReadLimit(protocol.MaxFrameSize)
	if s.cfg.PongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		})
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("client read error", "conn", c.ID, "err", err)
			}
			return
		}
		if s.cfg.PongWait > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			s.metrics.CommandsInvalid.Add(1)
			slog.Warn("command rejected", "conn", c.ID, "err", err)
			continue
		}
		if err := s.apply(c, cmd); err != nil {
			s.metrics.CommandsInvalid.Add(1)
			slog.Warn("command ignored",
				"conn", c.ID, "user", user.Username,
				"command", cmd.Command, "seq", cmd.Seq, "err", err)
			continue
		}
		s.metrics.CommandsApplied.Add(1)
	}
}

// apply runs one decoded command for c. Every mutation is followed by a
// snapshot to every connection; notices go out after the snapshot so clients
// can resolve them.
func (s *Server) apply(c *Conn, cmd *pb.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var args pb.CommandArgs
	if cmd.Args != nil {
		args = *cmd.Args
	}
	var id int64
	if args.ID != nil {
		id = *args.ID
	}

	switch cmd.Command {
	case pb.CmdListQueues:
		return s.pushSnapshot(c)

	case pb.CmdCreateQueue:
		var group string
		if args.RestrictToGroup != nil {
			group = strings.TrimSpace(*args.RestrictToGroup)
		}
		q, err := s.store.CreateQueue(strings.TrimSpace(*args.Name), group)
		if err != nil {
			return err
		}
		s.metrics.QueuesCreated.Add(1)
		slog.Info("queue created", "queue", q.ID, "name", q.Name, "by", c.User.Username)
		if err := s.broadcastSnapshots(); err != nil {
			return err
		}
		s.broadcastNotice(pb.NoticeQueueCreated, q.ID)
		return nil

	case pb.CmdJoinQueue:
		added, err := s.store.AddMember(id, c.User)
		if err != nil || !added {
			return err
		}
		slog.Debug("queue joined", "queue", id, "user", c.User.Username)
		return s.broadcastSnapshots()

	case pb.CmdLeaveQueue:
		removed, err := s.store.RemoveMember(id, c.User)
		if err != nil || !removed {
			return err
		}
		slog.Debug("queue left", "queue", id, "user", c.User.Username)
		return s.broadcastSnapshots()

	case pb.CmdMessageQueue:
		q, err := s.queue(id)
		if err != nil {
			return err
		}
		if !model.IsMember(c.User, *q) {
			return ErrNotMember
		}
		msg := model.Message{Content: strings.TrimSpace(*args.Content), Sender: c.User}
		if err := s.store.AppendMessage(id, msg); err != nil {
			return err
		}
		s.metrics.ChatMessagesSent.Add(1)
		return s.broadcastSnapshots()

	case pb.CmdNagQueue:
		if _, err := s.queue(id); err != nil {
			return err
		}
		s.metrics.NagsSent.Add(1)
		slog.Info("queue nagged", "queue", id, "by", c.User.Username)
		s.broadcastNotice(pb.NoticeNag, id)
		return nil

	case pb.CmdStartQueue:
		return s.transition(c, id, model.ActionStart)
	case pb.CmdResetQueue:
		return s.transition(c, id, model.ActionReset)
	case pb.CmdDeleteQueue:
		return s.transition(c, id, model.ActionDelete)
	}
	return fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, cmd.Command)
}

// transition applies a status-changing action. Deleting a Closed queue
// removes it.
func (s *Server) transition(c *Conn, id int64, a model.Action) error {
	q, err := s.queue(id)
	if err != nil {
		return err
	}

	if a == model.ActionDelete && q.Status == model.StatusClosed {
		if err := s.store.DeleteQueue(id); err != nil {
			return err
		}
		s.metrics.QueuesDeleted.Add(1)
		slog.Info("queue removed", "queue", id, "by", c.User.Username)
		return s.broadcastSnapshots()
	}

	next, err := model.Transition(q.Status, a)
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(id, next); err != nil {
		return err
	}
	slog.Info("queue status changed", "queue", id, "from", q.Status, "to", next, "by", c.User.Username)
	if err := s.broadcastSnapshots(); err != nil {
		return err
	}
	s.broadcastNotice(pb.NoticeStatusChanged, id)
	return nil
}

func (s *Server) queue(id int64) (*model.Queue, error) {
	q, err := s.store.GetQueue(id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("hub: queue %d: %w", id, store.ErrQueueNotFound)
	}
	return q, nil
}

// pushSnapshot sends the current queues to c alone.
func (s *Server) pushSnapshot(c *Conn) error {
	queues, err := s.store.ListQueues()
	if err != nil {
		return fmt.Errorf("hub: list queues: %w", err)
	}
	return s.deliverSnapshot(c, queues)
}

// broadcastSnapshots sends the current queues to every connection, each
// carrying that connection's user.
func (s *Server) broadcastSnapshots() error {
	queues, err := s.store.ListQueues()
	if err != nil {
		return fmt.Errorf("hub: list queues: %w", err)
	}
	for _, c := range s.registry.All() {
		if err := s.deliverSnapshot(c, queues); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) deliverSnapshot(c *Conn, queues []model.Queue) error {
	data, err := encodeSnapshot(queues, c.User)
	if err != nil {
		return fmt.Errorf("hub: encode snapshot: %w", err)
	}
	s.metrics.SnapshotsPushed.Add(1)
	s.deliver(c, data)
	return nil
}

// encodeSnapshot encodes queues for user, halving every chat history until
// the frame fits. Only the oldest messages are left out.
func encodeSnapshot(queues []model.Queue, user model.User) ([]byte, error) {
	keep := model.MaxQueueMessages
	for {
		data, err := protocol.EncodeSnapshot(queues, user)
		if !errors.Is(err, protocol.ErrFrameTooLarge) || keep == 0 {
			return data, err
		}
		keep /= 2
		slog.Warn("snapshot too large, trimming chat history", "messages_per_queue", keep)
		queues = withHistory(queues, keep)
	}
}

// withHistory returns queues with at most keep messages each.
func withHistory(queues []model.Queue, keep int) []model.Queue {
	out := make([]model.Queue, len(queues))
	for i, q := range queues {
		if n := len(q.Messages); n > keep {
			q.Messages = q.Messages[n-keep:]
		}
		out[i] = q
	}
	return out
}

func (s *Server) broadcastNotice(typ string, id int64) {
	data, err := protocol.EncodeNotice(typ, id)
	if err != nil {
		slog.Error("encode notice", "type", typ, "err", err)
		return
	}
	for _, c := range s.registry.All() {
		s.metrics.NoticesPushed.Add(1)
		s.deliver(c, data)
	}
}

// deliver queues data on c. A connection that cannot keep up is closed; its
// client reconnects and lists queues again.
func (s *Server) deliver(c *Conn, data []byte) bool {
	if c.push(data) {
		return true
	}
	s.metrics.PushesDropped.Add(1)
	slog.Warn("push dropped, closing slow connection", "conn", c.ID, "user", c.User.Username)
	c.drop()
	return false
}
