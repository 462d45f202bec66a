package hub

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/store"
)

// UserYAML represents a member or message sender in YAML config.
type UserYAML struct {
	Username string `yaml:"username"`
	FullName string `yaml:"full_name,omitempty"`
	Email    string `yaml:"email,omitempty"`
}

// MessageYAML represents one queue chat message.
type MessageYAML struct {
	Content string   `yaml:"content"`
	Sender  UserYAML `yaml:"sender"`
}

// QueueYAML represents a queue in YAML config. A zero ID creates the queue
// unless one with the same name already exists; a non-zero ID replaces it.
type QueueYAML struct {
	ID              int64         `yaml:"id,omitempty"`
	Name            string        `yaml:"name"`
	Status          string        `yaml:"status,omitempty"` // Open (default), Started or Closed
	RestrictToGroup string        `yaml:"restrict_to_group,omitempty"`
	Members         []UserYAML    `yaml:"members,omitempty"`
	Messages        []MessageYAML `yaml:"messages,omitempty"`
}

// QueuesConfig is the top-level YAML config for queues.
type QueuesConfig struct {
	Queues []QueueYAML `yaml:"queues"`
}

// LoadQueuesFromYAML reads a queues YAML file and stores its queues.
func LoadQueuesFromYAML(path string, st store.QueueStore) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read queues config: %w", err)
	}
	return ImportQueuesFromYAML(data, st)
}

// ImportQueuesFromYAML parses YAML data and creates or replaces queues in the
// store. A bad entry is logged and skipped.
func ImportQueuesFromYAML(data []byte, st store.QueueStore) error {
	var cfg QueuesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse queues config: %w", err)
	}

	existing, err := st.ListQueues()
	if err != nil {
		return fmt.Errorf("list queues: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, q := range existing {
		names[q.Name] = true
	}

	imported := 0
	for _, entry := range cfg.Queues {
		if entry.ID == 0 && names[entry.Name] {
			slog.Debug("queue already exists, skipping", "name", entry.Name)
			continue
		}
		q, err := entry.toQueue()
		if err != nil {
			slog.Error("invalid queue in config", "name", entry.Name, "err", err)
			continue
		}
		if _, err := st.PutQueue(q); err != nil {
			slog.Error("failed to store queue from config", "name", entry.Name, "err", err)
			continue
		}
		names[entry.Name] = true
		imported++
	}

	slog.Info("imported queues from YAML", "count", imported)
	return nil
}

func (y QueueYAML) toQueue() (model.Queue, error) {
	status := model.StatusOpen
	if s := strings.TrimSpace(y.Status); s != "" {
		parsed, err := model.ParseStatus(s)
		if err != nil {
			return model.Queue{}, err
		}
		status = parsed
	}
	q := model.Queue{
		ID:              y.ID,
		Name:            y.Name,
		Status:          status,
		RestrictToGroup: y.RestrictToGroup,
	}
	for _, u := range y.Members {
		q.Members = append(q.Members, u.toUser())
	}
	for _, m := range y.Messages {
		q.Messages = append(q.Messages, model.Message{Content: m.Content, Sender: m.Sender.toUser()})
	}
	return q, nil
}

func (y UserYAML) toUser() model.User {
	return model.User{Username: y.Username, FullName: y.FullName, Email: y.Email}
}

func userYAML(u model.User) UserYAML {
	return UserYAML{Username: u.Username, FullName: u.FullName, Email: u.Email}
}

// ExportQueuesYAML exports all queues as YAML, IDs included.
func ExportQueuesYAML(st store.QueueStore) ([]byte, error) {
	queues, err := st.ListQueues()
	if err != nil {
		return nil, err
	}

	cfg := QueuesConfig{Queues: make([]QueueYAML, 0, len(queues))}
	for _, q := range queues {
		entry := QueueYAML{
			ID:              q.ID,
			Name:            q.Name,
			Status:          q.Status.String(),
			RestrictToGroup: q.RestrictToGroup,
		}
		for _, u := range q.Members {
			entry.Members = append(entry.Members, userYAML(u))
		}
		for _, m := range q.Messages {
			entry.Messages = append(entry.Messages, MessageYAML{Content: m.Content, Sender: userYAML(m.Sender)})
		}
		cfg.Queues = append(cfg.Queues, entry)
	}
	return yaml.Marshal(&cfg)
}
