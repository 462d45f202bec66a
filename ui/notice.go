package ui

import (
	"fmt"

	"github.com/NicolasHaas/rq/pkg/client"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

// noticeText returns the desktop notification for n. ok is false for notice
// types the client does not announce.
func noticeText(n client.NoticeEvent) (title, body string, ok bool) {
	name := fmt.Sprintf("Queue #%d", n.QueueID)
	if n.Known {
		name = n.Queue.Name
	}
	switch n.Type {
	case pb.NoticeNag:
		return "Nag: " + name, "Someone is waiting on " + name + ".", true
	case pb.NoticeQueueCreated:
		return "New queue", name + " was created.", true
	case pb.NoticeStatusChanged:
		if !n.Known {
			return "Queue updated", name + " changed status.", true
		}
		return name, name + " is now " + n.Queue.Status.String() + ".", true
	}
	return "", "", false
}
