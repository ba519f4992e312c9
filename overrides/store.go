// Package overrides persists per-task user intent across sessions. Each
// override kind is independently addressable; records survive restart and
// follow last-write-wins when two writers race on the same key, which is a
// documented limitation rather than a bug. Overrides are advisory: they only
// shape the projected view and are superseded naturally once a later
// snapshot encodes the same state.
package overrides

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"boardsync/domain"
)

// Kind scopes a key to one override namespace.
type Kind string

const (
	KindTask          Kind = "task"           // domain.TaskOverride per task id
	KindOrder         Kind = "order"          // []string of task ids per project/column
	KindLocalTask     Kind = "local-task"     // domain.LocalTask per task id
	KindReminder      Kind = "reminder"       // reminder timestamp per task id
	KindIdea          Kind = "idea"           // locally captured ideas per id
	KindChangeRequest Kind = "change-request" // cached submissions per id
)

// Store is the SQLite-backed override store.
type Store struct {
	db *sql.DB

	mu   sync.Mutex
	subs []chan struct{}
}

// Open opens (and if needed creates) the store at path. Use ":memory:" for
// an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open override store: %w", err)
	}
	// A single connection sidesteps table-lock errors from concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init override store: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS overrides (
	kind       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (kind, key)
);`

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value (JSON-encoded) under (kind, key).
func (s *Store) Set(ctx context.Context, kind Kind, key string, value any) error {
	data, err := sonic.ConfigStd.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode override %s/%s: %w", kind, key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO overrides (kind, key, value, updated_at) VALUES (?, ?, ?, ?)`,
		string(kind), key, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write override %s/%s: %w", kind, key, err)
	}
	s.notify()
	return nil
}

// Get loads the value under (kind, key) into out. The second return is false
// when no record exists.
func (s *Store) Get(ctx context.Context, kind Kind, key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM overrides WHERE kind = ? AND key = ?`, string(kind), key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read override %s/%s: %w", kind, key, err)
	}
	if err := sonic.ConfigStd.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode override %s/%s: %w", kind, key, err)
	}
	return true, nil
}

// Delete removes the record under (kind, key). Deleting an absent key is not
// an error.
func (s *Store) Delete(ctx context.Context, kind Kind, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM overrides WHERE kind = ? AND key = ?`, string(kind), key)
	if err != nil {
		return fmt.Errorf("delete override %s/%s: %w", kind, key, err)
	}
	s.notify()
	return nil
}

type record struct {
	key   string
	value string
}

// listKind returns every record of one kind, key-ordered by the query.
func (s *Store) listKind(ctx context.Context, kind Kind) ([]record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM overrides WHERE kind = ? ORDER BY key`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list overrides %s: %w", kind, err)
	}
	defer rows.Close()
	var out []record
	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.key, &rec.value); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetTaskOverride merges intent into the task's single override record.
// Non-nil fields of the update replace the stored ones; a resulting zero
// record is deleted.
func (s *Store) SetTaskOverride(ctx context.Context, taskID string, update domain.TaskOverride) error {
	var current domain.TaskOverride
	if _, err := s.Get(ctx, KindTask, taskID, &current); err != nil {
		return err
	}
	if update.Placement != nil {
		current.Placement = update.Placement
	}
	if update.Completed != nil {
		current.Completed = update.Completed
	}
	if !update.Patch.IsZero() {
		current.Patch = mergePatch(current.Patch, update.Patch)
	}
	if current.IsZero() {
		return s.Delete(ctx, KindTask, taskID)
	}
	return s.Set(ctx, KindTask, taskID, current)
}

func mergePatch(base, update domain.TaskPatch) domain.TaskPatch {
	if update.Title != nil {
		base.Title = update.Title
	}
	if update.Description != nil {
		base.Description = update.Description
	}
	if update.Priority != nil {
		base.Priority = update.Priority
	}
	if update.Tags != nil {
		base.Tags = update.Tags
	}
	if update.Assignee != nil {
		base.Assignee = update.Assignee
	}
	if update.DueDate != nil {
		base.DueDate = update.DueDate
	}
	if update.Subtasks != nil {
		base.Subtasks = update.Subtasks
	}
	return base
}

// SetOrder persists a manual ordering for one column of one project.
func (s *Store) SetOrder(ctx context.Context, key domain.OrderKey, taskIDs []string) error {
	return s.Set(ctx, KindOrder, orderKeyString(key), taskIDs)
}

// AddLocalTask records a locally created task awaiting its first snapshot.
func (s *Store) AddLocalTask(ctx context.Context, lt domain.LocalTask) error {
	return s.Set(ctx, KindLocalTask, lt.Task.ID, lt)
}

func orderKeyString(key domain.OrderKey) string {
	return key.ProjectID + "/" + string(key.Column)
}

func parseOrderKey(s string) (domain.OrderKey, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return domain.OrderKey{ProjectID: s[:i], Column: domain.Column(s[i+1:])}, true
		}
	}
	return domain.OrderKey{}, false
}

// Snapshot loads every override for one reconciler pass.
func (s *Store) Snapshot(ctx context.Context) (domain.Overrides, error) {
	ov := domain.Overrides{
		Tasks: map[string]domain.TaskOverride{},
		Order: map[domain.OrderKey][]string{},
	}

	tasks, err := s.listKind(ctx, KindTask)
	if err != nil {
		return ov, err
	}
	for _, rec := range tasks {
		var t domain.TaskOverride
		if err := sonic.ConfigStd.Unmarshal([]byte(rec.value), &t); err != nil {
			return ov, fmt.Errorf("decode task override %s: %w", rec.key, err)
		}
		ov.Tasks[rec.key] = t
	}

	orders, err := s.listKind(ctx, KindOrder)
	if err != nil {
		return ov, err
	}
	for _, rec := range orders {
		parsed, ok := parseOrderKey(rec.key)
		if !ok {
			continue
		}
		var ids []string
		if err := sonic.ConfigStd.Unmarshal([]byte(rec.value), &ids); err != nil {
			return ov, fmt.Errorf("decode order override %s: %w", rec.key, err)
		}
		ov.Order[parsed] = ids
	}

	locals, err := s.listKind(ctx, KindLocalTask)
	if err != nil {
		return ov, err
	}
	// listKind is key-ordered, so local tasks appear in a stable order.
	for _, rec := range locals {
		var lt domain.LocalTask
		if err := sonic.ConfigStd.Unmarshal([]byte(rec.value), &lt); err != nil {
			return ov, fmt.Errorf("decode local task %s: %w", rec.key, err)
		}
		ov.LocalTasks = append(ov.LocalTasks, lt)
	}
	return ov, nil
}

// Subscribe returns a channel that receives a signal after every write, so
// sibling views re-project without waiting for the next remote snapshot.
func (s *Store) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
