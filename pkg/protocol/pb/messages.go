// Package pb holds the JSON wire structs exchanged between the rq client and
// hub. Fields the decoder must see are pointers so a missing field can be
// told apart from a zero value.
package pb

import "github.com/NicolasHaas/rq/pkg/model"

// Version is the only push/command schema version spoken natively.
const Version = 2

// Command names.
const (
	CmdListQueues   = "list_queues"
	CmdCreateQueue  = "create_queue"
	CmdJoinQueue    = "join_queue"
	CmdLeaveQueue   = "leave_queue"
	CmdMessageQueue = "message_queue"
	CmdStartQueue   = "start_queue"
	CmdNagQueue     = "nag_queue"
	CmdResetQueue   = "reset_queue"
	CmdDeleteQueue  = "delete_queue"
)

// Push kinds.
const (
	KindSnapshot = "snapshot"
	KindNotice   = "notice"
)

// Notice types.
const (
	NoticeNag           = "nag"
	NoticeQueueCreated  = "queue_created"
	NoticeStatusChanged = "status_changed"
)

// Legacy event names emitted by the first generation of the client bridge.
const (
	EventQueuesUpdated = "queues_updated"
	EventDataUpdated   = "data_updated"
)

// ----- Client -> hub -----

// Command is a one-way request. Seq is informational only; the hub never
// replies to a specific seq.
type Command struct {
	V       int          `json:"v"`
	Seq     uint64       `json:"seq"`
	Command string       `json:"command"`
	Args    *CommandArgs `json:"args,omitempty"`
}

type CommandArgs struct {
	ID              *int64  `json:"id,omitempty"`
	Name            *string `json:"name,omitempty"`
	RestrictToGroup *string `json:"restrictToGroup,omitempty"`
	Content         *string `json:"content,omitempty"`
}

// ----- Hub -> client -----

// Push is a v2 server frame. Exactly one of the kind-specific fields is set.
type Push struct {
	V      *int         `json:"v"`
	Kind   string       `json:"kind"`
	Queues *[]QueueInfo `json:"queues,omitempty"`
	User   *UserInfo    `json:"user,omitempty"`
	Notice *Notice      `json:"notice,omitempty"`
}

type Notice struct {
	Type    string `json:"type"`
	QueueID *int64 `json:"queueId"`
}

type UserInfo struct {
	Username *string `json:"username"`
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
}

type MessageInfo struct {
	Content *string   `json:"content"`
	Sender  *UserInfo `json:"sender"`
}

type QueueInfo struct {
	ID              *int64         `json:"id"`
	Name            *string        `json:"name"`
	Status          *model.Status  `json:"status"`
	Members         *[]UserInfo    `json:"members"`
	Messages        *[]MessageInfo `json:"messages"`
	RestrictToGroup *string        `json:"restrictToGroup,omitempty"`
}

// ----- Legacy -----

// LegacySettings is the settings record carried as "config" in data_updated.
type LegacySettings struct {
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
	Theme    string   `json:"theme"`
}
