// Package history stores conversation transcripts so the command orchestrator
// can carry context across turns. Two implementations exist: an in-memory
// ring suitable for single-instance deployments and tests, and a
// PostgreSQL-backed store for durable multi-session history.
package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is a single conversation turn.
type Entry struct {
	// SessionID groups turns belonging to one conversation.
	SessionID string

	// Role is one of "user", "assistant", or "tool".
	Role string

	// Content is the turn's text. For tool turns this is the tool result.
	Content string

	// ToolName is set for tool turns.
	ToolName string

	// CreatedAt is when the turn was recorded.
	CreatedAt time.Time
}

// Store persists conversation turns. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append records a turn. A zero CreatedAt is stamped with the current time.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit of the newest turns for sessionID in
	// chronological order (oldest first). limit <= 0 returns all turns.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Clear removes all turns for sessionID.
	Clear(ctx context.Context, sessionID string) error
}

// maxEntriesPerSession bounds in-memory growth per session.
const maxEntriesPerSession = 200

// MemStore is an in-memory Store. The zero value is not usable; construct
// with NewMemStore.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory history store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]Entry)}
}

// Append implements Store.
func (s *MemStore) Append(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.sessions[e.SessionID], e)
	if len(entries) > maxEntriesPerSession {
		entries = entries[len(entries)-maxEntriesPerSession:]
	}
	s.sessions[e.SessionID] = entries
	return nil
}

// Recent implements Store.
func (s *MemStore) Recent(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	out := make([]Entry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Clear implements Store.
func (s *MemStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
