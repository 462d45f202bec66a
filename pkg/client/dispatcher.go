package client

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/protocol"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

// Sender hands an encoded command to the transport. It must not block.
type Sender interface {
	Send(cmd *pb.Command) error
}

// Dispatcher turns user intents into one-way commands. Nothing is awaited:
// the outcome of a command is only visible on a later snapshot, and a command
// the transport refuses is logged and lost.
type Dispatcher struct {
	sender Sender
	seq    atomic.Uint64
}

// NewDispatcher creates a dispatcher writing to sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

func (d *Dispatcher) send(name string, args *pb.CommandArgs) {
	cmd := protocol.NewCommand(d.seq.Add(1), name, args)
	if err := d.sender.Send(cmd); err != nil {
		slog.Warn("command dropped", "command", name, "seq", cmd.Seq, "err", err)
		return
	}
	slog.Debug("command sent", "command", name, "seq", cmd.Seq)
}

// ListQueues asks the hub for a fresh snapshot.
func (d *Dispatcher) ListQueues() {
	d.send(pb.CmdListQueues, nil)
}

// Create asks for a new queue. The name is trimmed; an empty group means
// unrestricted.
func (d *Dispatcher) Create(name, restrictToGroup string) {
	name = strings.TrimSpace(name)
	restrictToGroup = strings.TrimSpace(restrictToGroup)
	d.send(pb.CmdCreateQueue, &pb.CommandArgs{Name: &name, RestrictToGroup: &restrictToGroup})
}

func (d *Dispatcher) Join(id int64)  { d.send(pb.CmdJoinQueue, protocol.IDArgs(id)) }
func (d *Dispatcher) Leave(id int64) { d.send(pb.CmdLeaveQueue, protocol.IDArgs(id)) }
func (d *Dispatcher) Start(id int64) { d.send(pb.CmdStartQueue, protocol.IDArgs(id)) }
func (d *Dispatcher) Nag(id int64)   { d.send(pb.CmdNagQueue, protocol.IDArgs(id)) }
func (d *Dispatcher) Reset(id int64) { d.send(pb.CmdResetQueue, protocol.IDArgs(id)) }

func (d *Dispatcher) Delete(id int64) { d.send(pb.CmdDeleteQueue, protocol.IDArgs(id)) }

// Message posts content to a queue's chat. Content is trimmed and dropped
// without sending if nothing is left; the return value reports whether a
// command was issued.
func (d *Dispatcher) Message(id int64, content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	d.send(pb.CmdMessageQueue, &pb.CommandArgs{ID: &id, Content: &content})
	return true
}

// Do issues the command behind a lifecycle action.
func (d *Dispatcher) Do(a model.Action, id int64) error {
	switch a {
	case model.ActionJoin:
		d.Join(id)
	case model.ActionLeave:
		d.Leave(id)
	case model.ActionStart:
		d.Start(id)
	case model.ActionNag:
		d.Nag(id)
	case model.ActionReset:
		d.Reset(id)
	case model.ActionDelete:
		d.Delete(id)
	default:
		return fmt.Errorf("client: unknown action %d", int(a))
	}
	return nil
}
