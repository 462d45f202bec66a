// Package datastore implements SQLite persistence for rq hub queues.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/store"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory hands out providers over one SQLite database.
type ProviderFactory struct {
	DB *sql.DB
}

func (sf ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB: sf.DB,
		},
	}
}

func (sf ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB: tx,
		},
		tx: tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	DB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	DB.SetMaxOpenConns(1)

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := DB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &ProviderFactory{DB: DB}
	if err := s.migrate(); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *ProviderFactory) Close() error {
	return s.DB.Close()
}

func (s *ProviderFactory) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS queues (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		name              TEXT    NOT NULL CHECK(length(name) > 0 AND length(name) <= 64),
		status            INTEGER NOT NULL DEFAULT 0 CHECK(status >= 0 AND status <= 2),
		restrict_to_group TEXT    NOT NULL DEFAULT '',
		created_at        TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS members (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		queue_id  INTEGER NOT NULL REFERENCES queues(id) ON DELETE CASCADE,
		username  TEXT    NOT NULL,
		full_name TEXT    NOT NULL DEFAULT '',
		email     TEXT    NOT NULL DEFAULT '',
		joined_at TEXT    NOT NULL DEFAULT (datetime('now')),
		UNIQUE(queue_id, username, full_name, email)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		queue_id         INTEGER NOT NULL REFERENCES queues(id) ON DELETE CASCADE,
		content          TEXT    NOT NULL,
		sender_username  TEXT    NOT NULL DEFAULT '',
		sender_full_name TEXT    NOT NULL DEFAULT '',
		sender_email     TEXT    NOT NULL DEFAULT '',
		created_at       TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS members_queue ON members(queue_id)",
				"CREATE INDEX IF NOT EXISTS messages_queue ON messages(queue_id)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
		slog.Debug("schema migrated", "version", m.version)
	}
	return nil
}

func (s *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

// ---- Queues ----

// CreateQueue inserts a new Open queue and returns it with the assigned ID.
func (s *baseProvider) CreateQueue(name, restrictToGroup string) (model.Queue, error) {
	if err := model.ValidateQueueName(name); err != nil {
		return model.Queue{}, fmt.Errorf("datastore: create queue: %w", err)
	}
	res, err := s.ExecContext(context.Background(),
		"INSERT INTO queues (name, status, restrict_to_group) VALUES (?, ?, ?)",
		name, int(model.StatusOpen), restrictToGroup)
	if err != nil {
		return model.Queue{}, fmt.Errorf("datastore: create queue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Queue{}, fmt.Errorf("datastore: create queue: %w", err)
	}
	return model.Queue{
		ID:              id,
		Name:            name,
		Status:          model.StatusOpen,
		RestrictToGroup: restrictToGroup,
	}, nil
}

// InsertQueue writes a complete queue with its members and messages,
// replacing any queue with the same non-zero ID. Run it inside a transaction.
func (s *baseProvider) InsertQueue(q model.Queue) (model.Queue, error) {
	if err := model.ValidateQueueName(q.Name); err != nil {
		return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
	}
	if !q.Status.Valid() {
		return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", model.ErrUnknownStatus)
	}
	ctx := context.Background()

	if q.ID != 0 {
		if _, err := s.ExecContext(ctx, "DELETE FROM queues WHERE id = ?", q.ID); err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
		if _, err := s.ExecContext(ctx,
			"INSERT INTO queues (id, name, status, restrict_to_group) VALUES (?, ?, ?, ?)",
			q.ID, q.Name, int(q.Status), q.RestrictToGroup); err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
	} else {
		res, err := s.ExecContext(ctx,
			"INSERT INTO queues (name, status, restrict_to_group) VALUES (?, ?, ?)",
			q.Name, int(q.Status), q.RestrictToGroup)
		if err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
		if q.ID, err = res.LastInsertId(); err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
	}

	out := model.Queue{ID: q.ID, Name: q.Name, Status: q.Status, RestrictToGroup: q.RestrictToGroup}
	for _, u := range q.Members {
		added, err := s.insertMember(ctx, q.ID, u)
		if err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
		if added {
			out.Members = append(out.Members, u)
		}
	}
	for _, m := range q.Messages {
		if err := m.Validate(); err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
	}
	for _, m := range model.TrimHistory(q.Messages) {
		if err := s.insertMessage(ctx, q.ID, m); err != nil {
			return model.Queue{}, fmt.Errorf("datastore: insert queue: %w", err)
		}
		out.Messages = append(out.Messages, m)
	}
	return out, nil
}

// GetQueue retrieves a queue with its members and messages. Returns (nil, nil)
// if not found.
func (s *baseProvider) GetQueue(id int64) (*model.Queue, error) {
	ctx := context.Background()
	q := &model.Queue{}
	var status int
	err := s.QueryRowContext(ctx,
		"SELECT id, name, status, restrict_to_group FROM queues WHERE id = ?", id).
		Scan(&q.ID, &q.Name, &status, &q.RestrictToGroup)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get queue: %w", err)
	}
	q.Status = model.Status(status)

	members, err := s.members(ctx, "WHERE queue_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("datastore: get queue: %w", err)
	}
	messages, err := s.messages(ctx, "WHERE queue_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("datastore: get queue: %w", err)
	}
	q.Members = members[id]
	q.Messages = messages[id]
	return q, nil
}

// ListQueues returns all queues ordered by ID.
func (s *baseProvider) ListQueues() ([]model.Queue, error) {
	ctx := context.Background()
	rows, err := s.QueryContext(ctx, "SELECT id, name, status, restrict_to_group FROM queues ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list queues: %w", err)
	}
	var queues []model.Queue
	for rows.Next() {
		var q model.Queue
		var status int
		if err := rows.Scan(&q.ID, &q.Name, &status, &q.RestrictToGroup); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("datastore: list queues: %w", err)
		}
		q.Status = model.Status(status)
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("datastore: list queues: %w", err)
	}
	_ = rows.Close()

	members, err := s.members(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("datastore: list queues: %w", err)
	}
	messages, err := s.messages(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("datastore: list queues: %w", err)
	}
	for i := range queues {
		queues[i].Members = members[queues[i].ID]
		queues[i].Messages = messages[queues[i].ID]
	}
	return queues, nil
}

// SetStatus changes a queue's lifecycle state.
func (s *baseProvider) SetStatus(id int64, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("datastore: set status: %w", model.ErrUnknownStatus)
	}
	res, err := s.ExecContext(context.Background(), "UPDATE queues SET status = ? WHERE id = ?", int(status), id)
	if err != nil {
		return fmt.Errorf("datastore: set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("datastore: set status: %w", store.ErrQueueNotFound)
	}
	return nil
}

// DeleteQueue removes a queue. Members and messages go with it.
func (s *baseProvider) DeleteQueue(id int64) error {
	if _, err := s.ExecContext(context.Background(), "DELETE FROM queues WHERE id = ?", id); err != nil {
		return fmt.Errorf("datastore: delete queue: %w", err)
	}
	return nil
}

// ---- Members ----

// AddMember appends u to the queue. Reports false if u was already a member.
func (s *baseProvider) AddMember(id int64, u model.User) (bool, error) {
	ctx := context.Background()
	if err := s.requireQueue(ctx, id); err != nil {
		return false, fmt.Errorf("datastore: add member: %w", err)
	}
	added, err := s.insertMember(ctx, id, u)
	if err != nil {
		return false, fmt.Errorf("datastore: add member: %w", err)
	}
	return added, nil
}

// RemoveMember removes u from the queue. Reports false if u was not a member.
func (s *baseProvider) RemoveMember(id int64, u model.User) (bool, error) {
	ctx := context.Background()
	if err := s.requireQueue(ctx, id); err != nil {
		return false, fmt.Errorf("datastore: remove member: %w", err)
	}
	res, err := s.ExecContext(ctx,
		"DELETE FROM members WHERE queue_id = ? AND username = ? AND full_name = ? AND email = ?",
		id, u.Username, u.FullName, u.Email)
	if err != nil {
		return false, fmt.Errorf("datastore: remove member: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *baseProvider) insertMember(ctx context.Context, id int64, u model.User) (bool, error) {
	res, err := s.ExecContext(ctx,
		"INSERT OR IGNORE INTO members (queue_id, username, full_name, email) VALUES (?, ?, ?, ?)",
		id, u.Username, u.FullName, u.Email)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *baseProvider) members(ctx context.Context, where string, args ...any) (map[int64][]model.User, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT queue_id, username, full_name, email FROM members "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]model.User)
	for rows.Next() {
		var queueID int64
		var u model.User
		if err := rows.Scan(&queueID, &u.Username, &u.FullName, &u.Email); err != nil {
			return nil, err
		}
		out[queueID] = append(out[queueID], u)
	}
	return out, rows.Err()
}

// ---- Messages ----

// AppendMessage adds a chat message at the end of the queue's history.
func (s *baseProvider) AppendMessage(id int64, m model.Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("datastore: append message: %w", err)
	}
	ctx := context.Background()
	if err := s.requireQueue(ctx, id); err != nil {
		return fmt.Errorf("datastore: append message: %w", err)
	}
	if err := s.insertMessage(ctx, id, m); err != nil {
		return fmt.Errorf("datastore: append message: %w", err)
	}
	if err := s.pruneMessages(ctx, id); err != nil {
		return fmt.Errorf("datastore: append message: %w", err)
	}
	return nil
}

// pruneMessages keeps the newest model.MaxQueueMessages of a queue's chat.
func (s *baseProvider) pruneMessages(ctx context.Context, id int64) error {
	_, err := s.ExecContext(ctx,
		`DELETE FROM messages WHERE queue_id = ? AND id NOT IN
			(SELECT id FROM messages WHERE queue_id = ? ORDER BY id DESC LIMIT ?)`,
		id, id, model.MaxQueueMessages)
	return err
}

func (s *baseProvider) insertMessage(ctx context.Context, id int64, m model.Message) error {
	_, err := s.ExecContext(ctx,
		"INSERT INTO messages (queue_id, content, sender_username, sender_full_name, sender_email) VALUES (?, ?, ?, ?, ?)",
		id, m.Content, m.Sender.Username, m.Sender.FullName, m.Sender.Email)
	return err
}

func (s *baseProvider) messages(ctx context.Context, where string, args ...any) (map[int64][]model.Message, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT queue_id, content, sender_username, sender_full_name, sender_email FROM messages "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]model.Message)
	for rows.Next() {
		var queueID int64
		var m model.Message
		if err := rows.Scan(&queueID, &m.Content, &m.Sender.Username, &m.Sender.FullName, &m.Sender.Email); err != nil {
			return nil, err
		}
		out[queueID] = append(out[queueID], m)
	}
	return out, rows.Err()
}

func (s *baseProvider) requireQueue(ctx context.Context, id int64) error {
	var one int
	err := s.QueryRowContext(ctx, "SELECT 1 FROM queues WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrQueueNotFound
	}
	return err
}
