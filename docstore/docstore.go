// Package docstore provides access to the shared status document. Every
// backend exposes the same contract: reads return the document content with
// an opaque revision token, and writes must present the token from the read
// they are based on. A write against a superseded token fails with
// domain.ErrConflict; the store never merges.
package docstore

import (
	"context"

	"boardsync/domain"
)

// Snapshot is one read of the document: raw JSON content plus the revision
// token required to write the next version.
type Snapshot struct {
	Content  []byte
	Revision string
}

// Store is the optimistic-concurrency document store contract.
type Store interface {
	// Get reads the current document and its revision token.
	Get(ctx context.Context) (Snapshot, error)
	// Put writes content on top of the given revision. The message describes
	// the change for backends that keep history. Returns domain.ErrConflict
	// when revision is no longer current.
	Put(ctx context.Context, content []byte, revision, message string) error
}

// Decode parses snapshot content into a document.
func Decode(snap Snapshot) (*domain.Document, error) {
	return parseDocument(snap.Content)
}
