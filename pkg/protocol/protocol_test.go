package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NicolasHaas/rq/pkg/model"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

var (
	alice = model.User{Username: "alice", FullName: "Alice Liddell", Email: "alice@example.com"}
	bob   = model.User{Username: "bob", FullName: "Bob", Email: "bob@example.com"}
)

const aliceJSON = `{"username":"alice","fullName":"Alice Liddell","email":"alice@example.com"}`

func TestSnapshotRoundTrip(t *testing.T) {
	queues := []model.Queue{
		{ID: 1, Name: "lunch #pizza", Status: model.StatusOpen, Members: []model.User{alice}},
		{
			ID: 2, Name: "deploy", Status: model.StatusStarted, RestrictToGroup: "ops",
			Members:  []model.User{alice, bob},
			Messages: []model.Message{{Content: "ready?", Sender: bob}, {Content: "ready?", Sender: bob}},
		},
	}

	data, err := EncodeSnapshot(queues, alice)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	p, err := DecodePush(data)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if p.Snapshot == nil || p.Notice != nil || p.Legacy != "" {
		t.Fatalf("DecodePush: expected v2 snapshot, got %+v", p)
	}
	if diff := cmp.Diff(queues, p.Snapshot.Queues, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("queues mismatch (-want +got):\n%s", diff)
	}
	if p.Snapshot.User == nil || *p.Snapshot.User != alice {
		t.Errorf("user = %+v, want %+v", p.Snapshot.User, alice)
	}
}

func TestDecodePushNotice(t *testing.T) {
	data, err := EncodeNotice(pb.NoticeNag, 9)
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}
	p, err := DecodePush(data)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if diff := cmp.Diff(&Notice{Type: pb.NoticeNag, QueueID: 9}, p.Notice); diff != "" {
		t.Errorf("notice mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePushRejects(t *testing.T) {
	queue := `{"id":1,"name":"q","status":"Open","members":[],"messages":[]}`
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"not json", `{`, ErrMalformed},
		{"array", `[]`, ErrMalformed},
		{"no version", `{"kind":"snapshot","queues":[],"user":` + aliceJSON + `}`, ErrMalformed},
		{"version 1", `{"v":1,"kind":"snapshot","queues":[],"user":` + aliceJSON + `}`, ErrUnsupportedVersion},
		{"version 3", `{"v":3,"kind":"snapshot","queues":[],"user":` + aliceJSON + `}`, ErrUnsupportedVersion},
		{"unknown kind", `{"v":2,"kind":"delta"}`, ErrMalformed},
		{"missing queues", `{"v":2,"kind":"snapshot","user":` + aliceJSON + `}`, ErrMalformed},
		{"null queues", `{"v":2,"kind":"snapshot","queues":null,"user":` + aliceJSON + `}`, ErrMalformed},
		{"missing user", `{"v":2,"kind":"snapshot","queues":[` + queue + `]}`, ErrMalformed},
		{"partial user", `{"v":2,"kind":"snapshot","queues":[],"user":{"username":"alice"}}`, ErrMalformed},
		{"queue missing id", `{"v":2,"kind":"snapshot","queues":[{"name":"q","status":"Open","members":[],"messages":[]}],"user":` + aliceJSON + `}`, ErrMalformed},
		{"queue missing members", `{"v":2,"kind":"snapshot","queues":[{"id":1,"name":"q","status":"Open","messages":[]}],"user":` + aliceJSON + `}`, ErrMalformed},
		{"queue bad status", `{"v":2,"kind":"snapshot","queues":[{"id":1,"name":"q","status":"Paused","members":[],"messages":[]}],"user":` + aliceJSON + `}`, ErrMalformed},
		{"message without sender", `{"v":2,"kind":"snapshot","queues":[{"id":1,"name":"q","status":"Open","members":[],"messages":[{"content":"hi"}]}],"user":` + aliceJSON + `}`, ErrMalformed},
		{"notice without id", `{"v":2,"kind":"notice","notice":{"type":"nag"}}`, ErrMalformed},
		{"notice unknown type", `{"v":2,"kind":"notice","notice":{"type":"poke","queueId":1}}`, ErrMalformed},
		{"unknown legacy event", `{"event":"settings_updated","payload":{}}`, ErrMalformed},
		{"legacy without payload", `{"event":"queues_updated"}`, ErrMalformed},
		{"legacy key mismatch", `{"event":"queues_updated","payload":{"2":` + queue + `}}`, ErrMalformed},
		{"legacy null queues", `{"event":"data_updated","payload":{"queues":null}}`, ErrMalformed},
		{"legacy bad theme", `{"event":"data_updated","payload":{"queues":{},"config":{"theme":"Vaporwave"}}}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePush([]byte(tt.input))
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodePush(%s) error = %v, want %v (push %+v)", tt.input, err, tt.want, p)
			}
		})
	}
}

func TestUpgradeLegacyQueuesUpdated(t *testing.T) {
	input := `{"event":"queues_updated","payload":{
		"7":{"id":7,"name":"b","status":1,"members":[` + aliceJSON + `],"messages":[],"restrictToGroup":null},
		"3":{"id":3,"name":"a","status":0,"members":[],"messages":[{"content":"hi","sender":` + aliceJSON + `}]}
	}}`

	p, err := DecodePush([]byte(input))
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if p.Legacy != pb.EventQueuesUpdated {
		t.Errorf("Legacy = %q, want %q", p.Legacy, pb.EventQueuesUpdated)
	}
	want := []model.Queue{
		{ID: 3, Name: "a", Status: model.StatusOpen, Messages: []model.Message{{Content: "hi", Sender: alice}}},
		{ID: 7, Name: "b", Status: model.StatusStarted, Members: []model.User{alice}},
	}
	if diff := cmp.Diff(want, p.Snapshot.Queues, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("queues mismatch (-want +got):\n%s", diff)
	}
	if p.Snapshot.User != nil {
		t.Errorf("queues_updated should not carry a user, got %+v", p.Snapshot.User)
	}
}

func TestUpgradeLegacyDataUpdated(t *testing.T) {
	input := `{"event":"data_updated","payload":{
		"queues":{"1":{"id":1,"name":"a","status":2,"members":[],"messages":[]}},
		"config":{"email":"alice@example.com","fullName":"Alice Liddell","username":"alice","groups":["devs"],"theme":"ClassicQ3"}
	}}`

	p, err := DecodePush([]byte(input))
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	snap := p.Snapshot
	if len(snap.Queues) != 1 || snap.Queues[0].Status != model.StatusClosed {
		t.Fatalf("queues = %+v", snap.Queues)
	}
	if snap.User == nil || *snap.User != alice {
		t.Errorf("user = %+v, want %+v", snap.User, alice)
	}
}

func TestUpgradeLegacyDataUpdatedBareMap(t *testing.T) {
	input := `{"event":"data_updated","payload":{"4":{"id":4,"name":"x","status":"Open","members":[],"messages":[]}}}`
	p, err := DecodePush([]byte(input))
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if len(p.Snapshot.Queues) != 1 || p.Snapshot.Queues[0].ID != 4 {
		t.Errorf("queues = %+v", p.Snapshot.Queues)
	}
	if p.Snapshot.User != nil {
		t.Errorf("bare map should carry no identity")
	}
}

func TestUpgradeLegacyArrayPayload(t *testing.T) {
	input := `{"event":"queues_updated","payload":[{"id":5,"name":"x","status":"Open","members":[],"messages":[]}]}`
	p, err := DecodePush([]byte(input))
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if len(p.Snapshot.Queues) != 1 || p.Snapshot.Queues[0].ID != 5 {
		t.Errorf("queues = %+v", p.Snapshot.Queues)
	}
}

func TestDecodePushTooLarge(t *testing.T) {
	data := []byte(`{"v":2,"kind":"snapshot","pad":"` + strings.Repeat("x", MaxFrameSize) + `"}`)
	if _, err := DecodePush(data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("DecodePush: expected ErrMalformed, got %v", err)
	}
}

func TestEncodeSnapshotTooLarge(t *testing.T) {
	q := model.Queue{ID: 1, Name: "lunch", Status: model.StatusOpen}
	for range MaxFrameSize / model.MessageMaxBodyLength {
		q.Messages = append(q.Messages, model.Message{Content: strings.Repeat("x", model.MessageMaxBodyLength), Sender: alice})
	}
	if _, err := EncodeSnapshot([]model.Queue{q}, alice); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("EncodeSnapshot: expected ErrFrameTooLarge, got %v", err)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	name, group, content := "lunch", "devs", "on my way"
	id := int64(3)

	tests := []struct {
		name string
		cmd  *pb.Command
	}{
		{"list", NewCommand(1, pb.CmdListQueues, nil)},
		{"create", NewCommand(2, pb.CmdCreateQueue, &pb.CommandArgs{Name: &name, RestrictToGroup: &group})},
		{"join", NewCommand(3, pb.CmdJoinQueue, IDArgs(3))},
		{"message", NewCommand(4, pb.CmdMessageQueue, &pb.CommandArgs{ID: &id, Content: &content})},
		{"delete", NewCommand(5, pb.CmdDeleteQueue, IDArgs(3))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeCommand(tt.cmd)
			if err != nil {
				t.Fatalf("EncodeCommand: %v", err)
			}
			got, err := DecodeCommand(data)
			if err != nil {
				t.Fatalf("DecodeCommand(%s): %v", data, err)
			}
			if diff := cmp.Diff(tt.cmd, got); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommandWireShape(t *testing.T) {
	data, err := EncodeCommand(NewCommand(7, pb.CmdJoinQueue, IDArgs(3)))
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	want := `{"v":2,"seq":7,"command":"join_queue","args":{"id":3}}`
	if string(data) != want {
		t.Errorf("EncodeCommand = %s, want %s", data, want)
	}
}

func TestDecodeCommandRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"bad json", `nope`, ErrMalformed},
		{"wrong version", `{"v":1,"command":"list_queues"}`, ErrUnsupportedVersion},
		{"unknown", `{"v":2,"command":"explode_queue","args":{"id":1}}`, ErrUnknownCommand},
		{"join without id", `{"v":2,"command":"join_queue"}`, ErrMalformed},
		{"message without content", `{"v":2,"command":"message_queue","args":{"id":1}}`, ErrMalformed},
		{"create without name", `{"v":2,"command":"create_queue","args":{}}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCommand([]byte(tt.input)); !errors.Is(err, tt.want) {
				t.Errorf("DecodeCommand(%s) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}
