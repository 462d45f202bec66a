// Package protocol encodes rq commands and decodes hub pushes. Version 2 is
// the native schema; unversioned frames from the first client bridge are
// upgraded to it on decode.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/NicolasHaas/rq/pkg/model"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

// MaxFrameSize is the largest push or command frame accepted (1 MiB).
const MaxFrameSize = 1 << 20

// Handshake identity: the User header carries model.User.Header(). Hubs also
// accept the same value in the user query parameter.
const (
	UserHeader = "User"
	UserQuery  = "user"
)

var (
	ErrMalformed          = errors.New("protocol: malformed frame")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnknownCommand     = errors.New("protocol: unknown command")
	ErrFrameTooLarge      = errors.New("protocol: frame too large")
)

// Snapshot is a complete statement of server truth.
type Snapshot struct {
	Queues []model.Queue
	// User is the identity the hub resolved for this connection. Legacy
	// queues_updated frames carry none.
	User *model.User
}

// Notice is an informational push. It never changes state by itself.
type Notice struct {
	Type    string
	QueueID int64
}

// Push is a decoded server frame. Exactly one of Snapshot or Notice is set.
type Push struct {
	Snapshot *Snapshot
	Notice   *Notice
	// Legacy names the event the frame was upgraded from, empty for v2.
	Legacy string
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ----- Commands -----

// NewCommand builds a v2 command frame.
func NewCommand(seq uint64, name string, args *pb.CommandArgs) *pb.Command {
	return &pb.Command{V: pb.Version, Seq: seq, Command: name, Args: args}
}

// IDArgs returns arguments addressing a single queue.
func IDArgs(id int64) *pb.CommandArgs {
	return &pb.CommandArgs{ID: &id}
}

// EncodeCommand serializes a command frame.
func EncodeCommand(cmd *pb.Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal command: %w", err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: command is %d bytes", ErrFrameTooLarge, len(data))
	}
	return data, nil
}

// DecodeCommand parses and validates a command frame: the version must match,
// the command must be known and its required arguments present.
func DecodeCommand(data []byte) (*pb.Command, error) {
	if len(data) > MaxFrameSize {
		return nil, malformed("command too large: %d bytes", len(data))
	}
	cmd := &pb.Command{}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, malformed("unmarshal command: %v", err)
	}
	if cmd.V != pb.Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, cmd.V)
	}

	var args pb.CommandArgs
	if cmd.Args != nil {
		args = *cmd.Args
	}
	switch cmd.Command {
	case pb.CmdListQueues:
	case pb.CmdCreateQueue:
		if args.Name == nil {
			return nil, malformed("%s: missing name", cmd.Command)
		}
	case pb.CmdMessageQueue:
		if args.ID == nil || args.Content == nil {
			return nil, malformed("%s: missing id or content", cmd.Command)
		}
	case pb.CmdJoinQueue, pb.CmdLeaveQueue, pb.CmdStartQueue,
		pb.CmdNagQueue, pb.CmdResetQueue, pb.CmdDeleteQueue:
		if args.ID == nil {
			return nil, malformed("%s: missing id", cmd.Command)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return cmd, nil
}

// ----- Pushes -----

// EncodeSnapshot serializes a v2 snapshot push for a connection owned by user.
func EncodeSnapshot(queues []model.Queue, user model.User) ([]byte, error) {
	infos := make([]pb.QueueInfo, 0, len(queues))
	for _, q := range queues {
		infos = append(infos, QueueToInfo(q))
	}
	v := pb.Version
	u := UserToInfo(user)
	return encodePush(&pb.Push{V: &v, Kind: pb.KindSnapshot, Queues: &infos, User: &u})
}

// EncodeNotice serializes a v2 notice push.
func EncodeNotice(typ string, queueID int64) ([]byte, error) {
	v := pb.Version
	return encodePush(&pb.Push{V: &v, Kind: pb.KindNotice, Notice: &pb.Notice{Type: typ, QueueID: &queueID}})
}

func encodePush(p *pb.Push) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal push: %w", err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s push is %d bytes", ErrFrameTooLarge, p.Kind, len(data))
	}
	return data, nil
}

// DecodePush parses a server frame. Frames carrying "v" must be version 2.
// Frames carrying "event" instead are legacy and are upgraded. Anything else,
// or any frame missing a required field, is rejected with ErrMalformed.
func DecodePush(data []byte) (*Push, error) {
	if len(data) > MaxFrameSize {
		return nil, malformed("push too large: %d bytes", len(data))
	}
	var probe struct {
		V       *int            `json:"v"`
		Event   *string         `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, malformed("unmarshal push: %v", err)
	}

	switch {
	case probe.V != nil:
		if *probe.V != pb.Version {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *probe.V)
		}
		return decodeV2(data)
	case probe.Event != nil:
		return upgradeLegacy(*probe.Event, probe.Payload)
	default:
		return nil, malformed("missing version")
	}
}

func decodeV2(data []byte) (*Push, error) {
	p := &pb.Push{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, malformed("unmarshal push: %v", err)
	}

	switch p.Kind {
	case pb.KindSnapshot:
		if p.Queues == nil {
			return nil, malformed("snapshot: missing queues")
		}
		if p.User == nil {
			return nil, malformed("snapshot: missing user")
		}
		queues, err := queuesFromInfos(*p.Queues)
		if err != nil {
			return nil, err
		}
		user, err := userFromInfo(p.User)
		if err != nil {
			return nil, fmt.Errorf("%w (current user)", err)
		}
		return &Push{Snapshot: &Snapshot{Queues: queues, User: &user}}, nil

	case pb.KindNotice:
		if p.Notice == nil || p.Notice.QueueID == nil {
			return nil, malformed("notice: missing body or queue id")
		}
		switch p.Notice.Type {
		case pb.NoticeNag, pb.NoticeQueueCreated, pb.NoticeStatusChanged:
		default:
			return nil, malformed("notice: unknown type %q", p.Notice.Type)
		}
		return &Push{Notice: &Notice{Type: p.Notice.Type, QueueID: *p.Notice.QueueID}}, nil

	default:
		return nil, malformed("unknown kind %q", p.Kind)
	}
}

// upgradeLegacy converts queues_updated (a bare id->queue object or array)
// and data_updated ({queues, config|settings|currentUser}, or a bare map) to a
// v2 snapshot.
func upgradeLegacy(event string, payload json.RawMessage) (*Push, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, malformed("%s: missing payload", event)
	}

	switch event {
	case pb.EventQueuesUpdated:
		queues, err := legacyQueues(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		return &Push{Snapshot: &Snapshot{Queues: queues}, Legacy: event}, nil

	case pb.EventDataUpdated:
		var body struct {
			Queues      json.RawMessage    `json:"queues"`
			Config      *pb.LegacySettings `json:"config"`
			Settings    *pb.LegacySettings `json:"settings"`
			CurrentUser *pb.UserInfo       `json:"currentUser"`
		}
		// A bare map keyed by queue id has no "queues" member.
		if err := json.Unmarshal(payload, &body); err != nil || body.Queues == nil {
			queues, err := legacyQueues(payload)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", event, err)
			}
			return &Push{Snapshot: &Snapshot{Queues: queues}, Legacy: event}, nil
		}

		queues, err := legacyQueues(body.Queues)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		snap := &Snapshot{Queues: queues}

		cfg := body.Config
		if cfg == nil {
			cfg = body.Settings
		}
		// The config block only names the user. Local settings are read from
		// the settings file, never from a push.
		if cfg != nil {
			s, err := settingsFromLegacy(cfg)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", event, err)
			}
			u := s.Identity()
			snap.User = &u
		}
		if body.CurrentUser != nil {
			u, err := userFromInfo(body.CurrentUser)
			if err != nil {
				return nil, fmt.Errorf("%s: %w (current user)", event, err)
			}
			snap.User = &u
		}
		return &Push{Snapshot: snap, Legacy: event}, nil

	default:
		return nil, malformed("unknown legacy event %q", event)
	}
}

// legacyQueues accepts either a JSON array of queues or an object keyed by
// queue id. Object keys must match the queue's own id. Object entries are
// returned sorted by id.
func legacyQueues(raw json.RawMessage) ([]model.Queue, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var infos []pb.QueueInfo
		if err := json.Unmarshal(raw, &infos); err != nil {
			return nil, malformed("unmarshal queues: %v", err)
		}
		return queuesFromInfos(infos)
	}

	var byID map[string]pb.QueueInfo
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, malformed("unmarshal queues: %v", err)
	}
	if byID == nil {
		return nil, malformed("queues: null")
	}
	queues := make([]model.Queue, 0, len(byID))
	for key, info := range byID {
		q, err := queueFromInfo(info)
		if err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id != q.ID {
			return nil, malformed("queue key %q does not match id %d", key, q.ID)
		}
		queues = append(queues, q)
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].ID < queues[j].ID })
	return queues, nil
}

func settingsFromLegacy(ls *pb.LegacySettings) (model.Settings, error) {
	s := model.Settings{
		FullName: ls.FullName,
		Username: ls.Username,
		Email:    ls.Email,
		Groups:   ls.Groups,
	}
	if ls.Theme != "" {
		t, err := model.ParseTheme(ls.Theme)
		if err != nil {
			return model.Settings{}, malformed("config: %v", err)
		}
		s.Theme = t
	}
	return s, nil
}

// ----- Conversions -----

// UserToInfo converts a user to its wire form.
func UserToInfo(u model.User) pb.UserInfo {
	return pb.UserInfo{Username: &u.Username, FullName: &u.FullName, Email: &u.Email}
}

// QueueToInfo converts a queue to its wire form.
func QueueToInfo(q model.Queue) pb.QueueInfo {
	members := make([]pb.UserInfo, 0, len(q.Members))
	for _, m := range q.Members {
		members = append(members, UserToInfo(m))
	}
	messages := make([]pb.MessageInfo, 0, len(q.Messages))
	for _, m := range q.Messages {
		sender := UserToInfo(m.Sender)
		content := m.Content
		messages = append(messages, pb.MessageInfo{Content: &content, Sender: &sender})
	}
	status := q.Status
	return pb.QueueInfo{
		ID:              &q.ID,
		Name:            &q.Name,
		Status:          &status,
		Members:         &members,
		Messages:        &messages,
		RestrictToGroup: &q.RestrictToGroup,
	}
}

func userFromInfo(u *pb.UserInfo) (model.User, error) {
	if u == nil || u.Username == nil || u.FullName == nil || u.Email == nil {
		return model.User{}, malformed("user: missing identity field")
	}
	return model.User{Username: *u.Username, FullName: *u.FullName, Email: *u.Email}, nil
}

func queuesFromInfos(infos []pb.QueueInfo) ([]model.Queue, error) {
	queues := make([]model.Queue, 0, len(infos))
	for _, info := range infos {
		q, err := queueFromInfo(info)
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, nil
}

func queueFromInfo(info pb.QueueInfo) (model.Queue, error) {
	switch {
	case info.ID == nil:
		return model.Queue{}, malformed("queue: missing id")
	case info.Name == nil:
		return model.Queue{}, malformed("queue %d: missing name", *info.ID)
	case info.Status == nil:
		return model.Queue{}, malformed("queue %d: missing status", *info.ID)
	case info.Members == nil:
		return model.Queue{}, malformed("queue %d: missing members", *info.ID)
	case info.Messages == nil:
		return model.Queue{}, malformed("queue %d: missing messages", *info.ID)
	}

	q := model.Queue{
		ID:       *info.ID,
		Name:     *info.Name,
		Status:   *info.Status,
		Members:  make([]model.User, 0, len(*info.Members)),
		Messages: make([]model.Message, 0, len(*info.Messages)),
	}
	if info.RestrictToGroup != nil {
		q.RestrictToGroup = *info.RestrictToGroup
	}
	for i := range *info.Members {
		u, err := userFromInfo(&(*info.Members)[i])
		if err != nil {
			return model.Queue{}, fmt.Errorf("%w (queue %d member %d)", err, q.ID, i)
		}
		q.Members = append(q.Members, u)
	}
	for i, m := range *info.Messages {
		if m.Content == nil {
			return model.Queue{}, malformed("queue %d message %d: missing content", q.ID, i)
		}
		sender, err := userFromInfo(m.Sender)
		if err != nil {
			return model.Queue{}, fmt.Errorf("%w (queue %d message %d sender)", err, q.ID, i)
		}
		q.Messages = append(q.Messages, model.Message{Content: *m.Content, Sender: sender})
	}
	return q, nil
}
