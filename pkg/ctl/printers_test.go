package ctl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/present"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

func TestPrintQueues(t *testing.T) {
	bob := model.User{Username: "bob"}
	cards := present.ComposeAll([]model.Queue{
		{ID: 1, Name: "#lunch", Members: []model.User{alice, bob}},
		{ID: 2, Name: "deploy", Status: model.StatusStarted, RestrictToGroup: "ops",
			Messages: []model.Message{{Sender: bob, Content: "go"}}},
	}, alice)

	var buf bytes.Buffer
	PrintQueues(&buf, cards)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), buf.String())
	}
	for i, want := range [][]string{
		{"ID", "NAME", "STATUS", "MEMBERS", "MESSAGES", "GROUP"},
		{"1", "#lunch", "Joined", "alice, bob", "0"},
		{"2", "deploy", "Started", "1", "ops"},
	} {
		for _, w := range want {
			if !strings.Contains(lines[i], w) {
				t.Errorf("line %d %q missing %q", i, lines[i], w)
			}
		}
	}
}

func TestPrintQueuesEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintQueues(&buf, nil)
	if got := strings.TrimSpace(buf.String()); got != "no queues" {
		t.Errorf("got %q", got)
	}
}

func TestPrintQueueWithoutMessages(t *testing.T) {
	var buf bytes.Buffer
	PrintQueue(&buf, present.Compose(model.Queue{ID: 3, Name: "coffee"}, alice))
	out := buf.String()
	for _, want := range []string{"#3 coffee", "Open", "members", "-", "join, start, nag, delete"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "group") {
		t.Errorf("group row printed for an unrestricted queue:\n%s", out)
	}
}

func TestPrintNotice(t *testing.T) {
	lunch := model.Queue{ID: 4, Name: "#lunch", Status: model.StatusClosed}
	tests := []struct {
		n    client.NoticeEvent
		want string
	}{
		{client.NoticeEvent{Type: pb.NoticeNag, QueueID: 4, Queue: lunch, Known: true}, "nag: #lunch"},
		{client.NoticeEvent{Type: pb.NoticeNag, QueueID: 9}, "nag: #9"},
		{client.NoticeEvent{Type: pb.NoticeQueueCreated, QueueID: 4, Queue: lunch, Known: true}, "created: #lunch"},
		{client.NoticeEvent{Type: pb.NoticeStatusChanged, QueueID: 4, Queue: lunch, Known: true}, "#lunch: Closed"},
		{client.NoticeEvent{Type: pb.NoticeStatusChanged, QueueID: 5}, "#5: changed"},
		{client.NoticeEvent{Type: "other", QueueID: 5}, "other: #5"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		PrintNotice(&buf, tt.n)
		if got := strings.TrimSpace(buf.String()); got != tt.want {
			t.Errorf("PrintNotice(%+v) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
