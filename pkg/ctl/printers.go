package ctl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/present"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
)

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed)
	magenta = color.New(color.FgMagenta, color.Bold)
)

// PrintQueues writes one row per card.
func PrintQueues(w io.Writer, cards []present.Card) {
	if len(cards) == 0 {
		_, _ = faint.Fprintln(w, "no queues")
		return
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	tbl.AddRow(bold.Sprint("ID"), bold.Sprint("NAME"), bold.Sprint("STATUS"), bold.Sprint("MEMBERS"),
		bold.Sprint("MESSAGES"), bold.Sprint("GROUP"))
	for _, c := range cards {
		tbl.AddRow(c.ID, c.Name, statusColor(c).Sprint(c.StatusLabel), memberNames(c.Members),
			len(c.Messages), c.RestrictToGroup)
	}
	_, _ = fmt.Fprintln(w, tbl)
}

// PrintQueue writes one card in full: members, offered actions and chat.
func PrintQueue(w io.Writer, c present.Card) {
	_, _ = bold.Fprintf(w, "#%d %s", c.ID, c.Name)
	_, _ = fmt.Fprintf(w, "  %s\n", statusColor(c).Sprint(c.StatusLabel))

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.Wrap = true
	tbl.MaxColWidth = 60
	if c.RestrictToGroup != "" {
		tbl.AddRow(faint.Sprint("group"), c.RestrictToGroup)
	}
	tbl.AddRow(faint.Sprint("members"), orNone(memberNames(c.Members)))
	tbl.AddRow(faint.Sprint("actions"), orNone(actionNames(c.Actions)))
	_, _ = fmt.Fprintln(w, tbl)

	if len(c.Messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	chat := uitable.New()
	chat.Separator = "  "
	chat.Wrap = true
	chat.MaxColWidth = 60
	for _, m := range c.Messages {
		chat.AddRow(bold.Sprint(m.Sender.User.Username), m.Content)
	}
	_, _ = fmt.Fprintln(w, chat)
}

// PrintNotice writes a hub notice as one line.
func PrintNotice(w io.Writer, n client.NoticeEvent) {
	name := "#" + strconv.FormatInt(n.QueueID, 10)
	if n.Known {
		name = n.Queue.Name
	}
	switch n.Type {
	case pb.NoticeNag:
		_, _ = magenta.Fprintf(w, "nag: %s\n", name)
	case pb.NoticeQueueCreated:
		_, _ = green.Fprintf(w, "created: %s\n", name)
	case pb.NoticeStatusChanged:
		if n.Known {
			_, _ = yellow.Fprintf(w, "%s: %s\n", name, n.Queue.Status)
		} else {
			_, _ = yellow.Fprintf(w, "%s: changed\n", name)
		}
	default:
		_, _ = faint.Fprintf(w, "%s: %s\n", n.Type, name)
	}
}

// PrintSettings writes the settings record as a two column table.
func PrintSettings(w io.Writer, s model.Settings, path string) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(faint.Sprint("file"), path)
	tbl.AddRow(faint.Sprint("username"), orNone(s.Username))
	tbl.AddRow(faint.Sprint("full name"), orNone(s.FullName))
	tbl.AddRow(faint.Sprint("email"), orNone(s.Email))
	tbl.AddRow(faint.Sprint("groups"), orNone(strings.Join(s.Groups, ", ")))
	tbl.AddRow(faint.Sprint("theme"), s.Theme)
	tbl.AddRow(faint.Sprint("hub"), orNone(s.HubURL))
	_, _ = fmt.Fprintln(w, tbl)
}

// PrintOK confirms a command was handed to the hub.
func PrintOK(w io.Writer, format string, args ...any) {
	_, _ = green.Fprint(w, "ok ")
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

func statusColor(c present.Card) *color.Color {
	switch c.Status {
	case model.StatusStarted:
		return yellow
	case model.StatusClosed:
		return red
	}
	if c.Joined {
		return green
	}
	return faint
}

func memberNames(members []present.Avatar) string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.User.Username)
	}
	return strings.Join(names, ", ")
}

func actionNames(actions []model.Action) string {
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.String())
	}
	return strings.Join(names, ", ")
}

func orNone(s string) string {
	if s == "" {
		return faint.Sprint("-")
	}
	return s
}
