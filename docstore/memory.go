package docstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"boardsync/domain"
)

// Memory is an in-process store. It backs handler tests and ad-hoc local
// runs; revisions are a monotonic counter.
type Memory struct {
	mu       sync.Mutex
	content  []byte
	revision int
	puts     int
}

// NewMemory creates a store seeded with the given content.
func NewMemory(content []byte) *Memory {
	if content == nil {
		content = []byte("{}")
	}
	return &Memory{content: content, revision: 1}
}

func (m *Memory) Get(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.content))
	copy(out, m.content)
	return Snapshot{Content: out, Revision: strconv.Itoa(m.revision)}, nil
}

func (m *Memory) Put(ctx context.Context, content []byte, revision, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revision != strconv.Itoa(m.revision) {
		return fmt.Errorf("revision %s superseded by %d: %w", revision, m.revision, domain.ErrConflict)
	}
	m.content = make([]byte, len(content))
	copy(m.content, content)
	m.revision++
	m.puts++
	return nil
}

// Puts reports how many writes committed, for tests asserting write counts.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
