package hub

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/store"
)

const seedYAML = `
queues:
  - name: lunch
  - id: 5
    name: standup
    status: Started
    restrict_to_group: team
    members:
      - username: alice
        full_name: Alice Liddell
        email: alice@example.com
      - username: bob
    messages:
      - content: starting now
        sender:
          username: alice
          full_name: Alice Liddell
          email: alice@example.com
  - name: broken
    status: Paused
`

func TestImportQueuesFromYAML(t *testing.T) {
	st := store.NewMemory()
	if err := ImportQueuesFromYAML([]byte(seedYAML), st); err != nil {
		t.Fatalf("ImportQueuesFromYAML: %v", err)
	}
	// A second import must not duplicate name-only entries.
	if err := ImportQueuesFromYAML([]byte(seedYAML), st); err != nil {
		t.Fatalf("ImportQueuesFromYAML again: %v", err)
	}

	got, err := st.ListQueues()
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Queue{
		{ID: 1, Name: "lunch", Status: model.StatusOpen},
		{
			ID:              5,
			Name:            "standup",
			Status:          model.StatusStarted,
			RestrictToGroup: "team",
			Members:         []model.User{alice, {Username: "bob"}},
			Messages:        []model.Message{{Content: "starting now", Sender: alice}},
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("queues mismatch (-want +got):\n%s", diff)
	}
}

func TestImportQueuesRejectsBadYAML(t *testing.T) {
	if err := ImportQueuesFromYAML([]byte("queues: [oops"), store.NewMemory()); err == nil {
		t.Error("expected parse error")
	}
	if err := LoadQueuesFromYAML(filepath.Join(t.TempDir(), "missing.yaml"), store.NewMemory()); err == nil {
		t.Error("expected read error")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := store.NewMemory()
	if err := ImportQueuesFromYAML([]byte(seedYAML), src); err != nil {
		t.Fatal(err)
	}
	if err := src.SetStatus(1, model.StatusClosed); err != nil {
		t.Fatal(err)
	}

	data, err := ExportQueuesYAML(src)
	if err != nil {
		t.Fatalf("ExportQueuesYAML: %v", err)
	}
	path := filepath.Join(t.TempDir(), "queues.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	dst := store.NewMemory()
	if err := LoadQueuesFromYAML(path, dst); err != nil {
		t.Fatalf("LoadQueuesFromYAML: %v", err)
	}

	want, _ := src.ListQueues()
	got, _ := dst.ListQueues()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s\nexported:\n%s", diff, data)
	}
}
