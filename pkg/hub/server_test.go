package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/protocol"
	pb "github.com/NicolasHaas/rq/pkg/protocol/pb"
	"github.com/NicolasHaas/rq/pkg/store"
)

const waitTimeout = 3 * time.Second

var (
	alice = model.User{Username: "alice", FullName: "Alice Liddell", Email: "alice@example.com"}
	bob   = model.User{Username: "bob", FullName: "Bob", Email: "bob@example.com"}
)

func newTestHub(t *testing.T) (*Server, string) {
	t.Helper()
	srv := New(DefaultConfig(), Dependencies{Store: store.NewMemory()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/hub"
}

type testClient struct {
	ws  *websocket.Conn
	seq uint64
}

// connect dials the hub as user and waits for the first snapshot, so the
// connection is registered for broadcasts when it returns.
func connect(t *testing.T, hubURL string, user model.User) *testClient {
	t.Helper()
	header := http.Header{}
	header.Set(protocol.UserHeader, user.Header())
	ws, _, err := websocket.DefaultDialer.Dial(hubURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	c := &testClient{ws: ws}
	c.send(t, pb.CmdListQueues, nil)
	c.snapshot(t)
	return c
}

func (c *testClient) send(t *testing.T, name string, args *pb.CommandArgs) {
	t.Helper()
	c.seq++
	data, err := protocol.EncodeCommand(protocol.NewCommand(c.seq, name, args))
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	c.raw(t, data)
}

func (c *testClient) raw(t *testing.T, data []byte) {
	t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *testClient) read(t *testing.T) *protocol.Push {
	t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		t.Fatalf("read push: %v", err)
	}
	p, err := protocol.DecodePush(data)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	return p
}

func (c *testClient) snapshot(t *testing.T) *protocol.Snapshot {
	t.Helper()
	p := c.read(t)
	if p.Snapshot == nil {
		t.Fatalf("expected snapshot, got notice %+v", p.Notice)
	}
	return p.Snapshot
}

func (c *testClient) notice(t *testing.T) *protocol.Notice {
	t.Helper()
	p := c.read(t)
	if p.Notice == nil {
		t.Fatalf("expected notice, got snapshot with %d queues", len(p.Snapshot.Queues))
	}
	return p.Notice
}

func idArgs(id int64) *pb.CommandArgs {
	return protocol.IDArgs(id)
}

func strArg(s string) *string { return &s }

func TestHandshakeIdentity(t *testing.T) {
	srv, hubURL := newTestHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(hubURL, nil)
	if err == nil {
		t.Fatal("dial without identity succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}

	header := http.Header{}
	header.Set(protocol.UserHeader, ";no username;x@example.com")
	if _, _, err := websocket.DefaultDialer.Dial(hubURL, header); err == nil {
		t.Fatal("dial with empty username succeeded")
	}
	if got := srv.Metrics().RejectedHandshakes.Load(); got != 2 {
		t.Errorf("RejectedHandshakes = %d, want 2", got)
	}

	ws, _, err := websocket.DefaultDialer.Dial(hubURL+"?user="+url.QueryEscape(bob.Header()), nil)
	if err != nil {
		t.Fatalf("dial with query identity: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	c := &testClient{ws: ws}
	c.send(t, pb.CmdListQueues, nil)
	snap := c.snapshot(t)
	if snap.User == nil || *snap.User != bob {
		t.Errorf("snapshot user = %+v, want %+v", snap.User, bob)
	}
}

func TestCreateBroadcastsSnapshotThenNotice(t *testing.T) {
	_, hubURL := newTestHub(t)
	a := connect(t, hubURL, alice)
	b := connect(t, hubURL, bob)

	a.send(t, pb.CmdCreateQueue, &pb.CommandArgs{Name: strArg("  lunch "), RestrictToGroup: strArg(" ops ")})

	want := []model.Queue{{ID: 1, Name: "lunch", Status: model.StatusOpen, RestrictToGroup: "ops"}}
	for _, tc := range []struct {
		c    *testClient
		user model.User
	}{{a, alice}, {b, bob}} {
		snap := tc.c.snapshot(t)
		if diff := cmp.Diff(want, snap.Queues, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s snapshot mismatch (-want +got):\n%s", tc.user.Username, diff)
		}
		if snap.User == nil || *snap.User != tc.user {
			t.Errorf("%s snapshot user = %+v", tc.user.Username, snap.User)
		}
		n := tc.c.notice(t)
		if diff := cmp.Diff(&protocol.Notice{Type: pb.NoticeQueueCreated, QueueID: 1}, n); diff != "" {
			t.Errorf("%s notice mismatch (-want +got):\n%s", tc.user.Username, diff)
		}
	}
}

func TestMembershipAndMessages(t *testing.T) {
	srv, hubURL := newTestHub(t)
	q, _ := srv.Store().CreateQueue("lunch", "")
	a := connect(t, hubURL, alice)
	b := connect(t, hubURL, bob)

	a.send(t, pb.CmdJoinQueue, idArgs(q.ID))
	for _, c := range []*testClient{a, b} {
		snap := c.snapshot(t)
		if diff := cmp.Diff([]model.User{alice}, snap.Queues[0].Members); diff != "" {
			t.Errorf("members mismatch (-want +got):\n%s", diff)
		}
	}

	// Joining twice changes nothing and pushes nothing.
	pushed := srv.Metrics().SnapshotsPushed.Load()
	a.send(t, pb.CmdJoinQueue, idArgs(q.ID))
	a.send(t, pb.CmdListQueues, nil)
	a.snapshot(t)
	if got := srv.Metrics().SnapshotsPushed.Load(); got != pushed+1 {
		t.Errorf("SnapshotsPushed = %d, want %d", got, pushed+1)
	}

	// A non-member cannot post.
	b.send(t, pb.CmdMessageQueue, &pb.CommandArgs{ID: &q.ID, Content: strArg("let me in")})
	b.send(t, pb.CmdListQueues, nil)
	if msgs := b.snapshot(t).Queues[0].Messages; len(msgs) != 0 {
		t.Errorf("non-member message stored: %+v", msgs)
	}
	if got := srv.Metrics().CommandsInvalid.Load(); got != 1 {
		t.Errorf("CommandsInvalid = %d, want 1", got)
	}

	a.send(t, pb.CmdMessageQueue, &pb.CommandArgs{ID: &q.ID, Content: strArg("  on my way ")})
	snap := a.snapshot(t)
	if diff := cmp.Diff([]model.Message{{Content: "on my way", Sender: alice}}, snap.Queues[0].Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	b.snapshot(t)

	a.send(t, pb.CmdLeaveQueue, idArgs(q.ID))
	if members := a.snapshot(t).Queues[0].Members; len(members) != 0 {
		t.Errorf("members after leave = %+v", members)
	}
}

func TestLifecycle(t *testing.T) {
	srv, hubURL := newTestHub(t)
	q, _ := srv.Store().CreateQueue("deploy", "")
	a := connect(t, hubURL, alice)

	expectStatus := func(want model.Status) {
		t.Helper()
		snap := a.snapshot(t)
		if len(snap.Queues) != 1 || snap.Queues[0].Status != want {
			t.Fatalf("queues = %+v, want one %s queue", snap.Queues, want)
		}
		if n := a.notice(t); n.Type != pb.NoticeStatusChanged || n.QueueID != q.ID {
			t.Fatalf("notice = %+v", n)
		}
	}

	a.send(t, pb.CmdStartQueue, idArgs(q.ID))
	expectStatus(model.StatusStarted)

	a.send(t, pb.CmdStartQueue, idArgs(q.ID)) // illegal, ignored
	a.send(t, pb.CmdDeleteQueue, idArgs(q.ID))
	expectStatus(model.StatusClosed)

	a.send(t, pb.CmdResetQueue, idArgs(q.ID))
	expectStatus(model.StatusOpen)

	a.send(t, pb.CmdDeleteQueue, idArgs(q.ID))
	expectStatus(model.StatusClosed)

	a.send(t, pb.CmdDeleteQueue, idArgs(q.ID))
	if snap := a.snapshot(t); len(snap.Queues) != 0 {
		t.Fatalf("queue not removed: %+v", snap.Queues)
	}

	m := srv.Metrics().Snapshot()
	if m.CommandsInvalid != 1 || m.QueuesDeleted != 1 {
		t.Errorf("metrics = %+v, want 1 invalid command and 1 deleted queue", m)
	}
}

func TestNagNotifiesEveryone(t *testing.T) {
	srv, hubURL := newTestHub(t)
	q, _ := srv.Store().CreateQueue("coffee", "")
	a := connect(t, hubURL, alice)
	b := connect(t, hubURL, bob)

	b.send(t, pb.CmdNagQueue, idArgs(99))
	b.send(t, pb.CmdNagQueue, idArgs(q.ID))
	for _, c := range []*testClient{a, b} {
		n := c.notice(t)
		if diff := cmp.Diff(&protocol.Notice{Type: pb.NoticeNag, QueueID: q.ID}, n); diff != "" {
			t.Errorf("notice mismatch (-want +got):\n%s", diff)
		}
	}
	if got := srv.Metrics().NagsSent.Load(); got != 1 {
		t.Errorf("NagsSent = %d, want 1", got)
	}
}

func TestBadFramesKeepConnection(t *testing.T) {
	srv, hubURL := newTestHub(t)
	a := connect(t, hubURL, alice)

	a.raw(t, []byte("not json"))
	a.raw(t, []byte(`{"v":1,"seq":1,"command":"list_queues"}`))
	a.raw(t, []byte(`{"v":2,"seq":2,"command":"fly_queue"}`))
	a.raw(t, []byte(`{"v":2,"seq":3,"command":"join_queue"}`))
	a.send(t, pb.CmdCreateQueue, &pb.CommandArgs{Name: strArg("   ")})

	a.send(t, pb.CmdListQueues, nil)
	if snap := a.snapshot(t); len(snap.Queues) != 0 {
		t.Errorf("queues = %+v, want none", snap.Queues)
	}
	if got := srv.Metrics().CommandsInvalid.Load(); got != 5 {
		t.Errorf("CommandsInvalid = %d, want 5", got)
	}
}

func TestLongHistoriesStillFitOneFrame(t *testing.T) {
	srv, hubURL := newTestHub(t)
	const queues = 20
	total := model.MaxQueueMessages + 20
	pad := strings.Repeat("x", model.MessageMaxBodyLength-8)
	for range queues {
		q, err := srv.Store().CreateQueue("lunch", "")
		if err != nil {
			t.Fatal(err)
		}
		for i := range total {
			m := model.Message{Content: strconv.Itoa(i) + " " + pad, Sender: alice}
			if err := srv.Store().AppendMessage(q.ID, m); err != nil {
				t.Fatalf("AppendMessage %d: %v", i, err)
			}
		}
	}

	c := connect(t, hubURL, alice)
	c.send(t, pb.CmdListQueues, nil)
	snap := c.snapshot(t)
	if len(snap.Queues) != queues {
		t.Fatalf("snapshot has %d queues, want %d", len(snap.Queues), queues)
	}
	last := strconv.Itoa(total-1) + " " + pad
	for _, q := range snap.Queues {
		n := len(q.Messages)
		if n == 0 || n > model.MaxQueueMessages {
			t.Fatalf("queue %d carries %d messages", q.ID, n)
		}
		if q.Messages[n-1].Content != last {
			t.Errorf("queue %d lost its newest message", q.ID)
		}
	}
}

func TestWithHistoryKeepsNewest(t *testing.T) {
	msgs := []model.Message{{Content: "a", Sender: alice}, {Content: "b", Sender: bob}, {Content: "c", Sender: alice}}
	in := []model.Queue{{ID: 1, Messages: msgs}, {ID: 2}}
	got := withHistory(in, 2)
	want := []model.Queue{{ID: 1, Messages: msgs[1:]}, {ID: 2}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("withHistory mismatch (-want +got):\n%s", diff)
	}
	if len(in[0].Messages) != 3 {
		t.Errorf("withHistory modified its input")
	}
}

func TestSlowConnectionIsDropped(t *testing.T) {
	closed := make(chan struct{})
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				close(closed)
				return
			}
		}
	}))
	t.Cleanup(peer.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(peer.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// No writer runs for this connection, so its one-slot queue stays full.
	srv := New(DefaultConfig(), Dependencies{})
	c := srv.Registry().Add(alice, ws, 1)
	if !srv.deliver(c, []byte("first")) {
		t.Fatal("deliver failed on an empty queue")
	}
	if srv.deliver(c, []byte("overflow")) {
		t.Fatal("deliver succeeded on a full queue")
	}
	if got := srv.Metrics().PushesDropped.Load(); got != 1 {
		t.Errorf("PushesDropped = %d, want 1", got)
	}

	select {
	case <-c.done:
	default:
		t.Error("slow connection not closed")
	}
	select {
	case <-closed:
	case <-time.After(waitTimeout):
		t.Error("peer never saw the connection close")
	}
}

type memSettings struct {
	mu sync.Mutex
	s  model.Settings
}

func (m *memSettings) Load() model.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

func (m *memSettings) Save(s model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func TestClientEngineAgainstHub(t *testing.T) {
	_, hubURL := newTestHub(t)

	cfg := client.DefaultConfig()
	cfg.HubURL = hubURL
	cfg.RefreshInterval = 0
	settings := &memSettings{s: model.Settings{Username: alice.Username, FullName: alice.FullName, Email: alice.Email}}
	engine := client.NewEngine(cfg, settings)

	views := make(chan client.View, 256)
	notices := make(chan client.NoticeEvent, 8)
	engine.OnNotice = func(n client.NoticeEvent) { notices <- n }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	unsubscribe := engine.Subscribe(func(v client.View) { views <- v })
	defer unsubscribe()

	waitFor := func(desc string, ok func(client.View) bool) client.View {
		t.Helper()
		timeout := time.After(waitTimeout)
		for {
			select {
			case v := <-views:
				if ok(v) {
					return v
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", desc)
			}
		}
	}

	waitFor("first snapshot", func(v client.View) bool { return v.Synced })
	engine.Dispatcher().Create("standup", "")
	v := waitFor("created queue", func(v client.View) bool { return len(v.Queues) == 1 })
	id := v.Queues[0].ID

	select {
	case n := <-notices:
		if n.Type != pb.NoticeQueueCreated || !n.Known || n.Queue.Name != "standup" {
			t.Errorf("notice = %+v", n)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for queue_created notice")
	}

	engine.Dispatcher().Join(id)
	v = waitFor("membership", func(v client.View) bool {
		return len(v.Queues) == 1 && model.IsMember(alice, v.Queues[0])
	})
	if !model.Offers(v.Queues[0], v.User, model.ActionLeave) {
		t.Errorf("member not offered Leave: %v", model.Offered(v.Queues[0], v.User))
	}
	if v.User != alice {
		t.Errorf("view user = %+v, want %+v", v.User, alice)
	}

	if !engine.Dispatcher().Message(id, "hello") {
		t.Fatal("Message reported nothing sent")
	}
	waitFor("message", func(v client.View) bool {
		return len(v.Queues) == 1 && len(v.Queues[0].Messages) == 1
	})
}

func TestMetricsHandler(t *testing.T) {
	srv := New(DefaultConfig(), Dependencies{})
	if _, err := srv.Store().CreateQueue("lunch", ""); err != nil {
		t.Fatal(err)
	}
	srv.Metrics().CommandsApplied.Add(3)
	srv.Registry().Add(alice, nil, 1)

	rec := httptest.NewRecorder()
	srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, line := range []string{
		"# TYPE rq_commands_applied_total counter",
		"rq_commands_applied_total 3",
		"rq_connections_active 1",
		"rq_queues 1",
	} {
		if !strings.Contains(body, line+"\n") {
			t.Errorf("metrics output missing %q", line)
		}
	}

	rec = httptest.NewRecorder()
	srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestApplyUnknownQueue(t *testing.T) {
	srv := New(DefaultConfig(), Dependencies{})
	c := &Conn{ID: "test", User: alice, send: make(chan []byte, 4), done: make(chan struct{})}
	for _, name := range []string{pb.CmdStartQueue, pb.CmdMessageQueue, pb.CmdNagQueue} {
		cmd := protocol.NewCommand(1, name, &pb.CommandArgs{ID: new(int64), Content: strArg("x")})
		if err := srv.apply(c, cmd); !errors.Is(err, store.ErrQueueNotFound) {
			t.Errorf("%s on missing queue: %v", name, err)
		}
	}
}
