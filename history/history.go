// Package history keeps a bounded, in-memory conversation window per channel.
//
// History is deliberately not persisted: a process restart starts every
// conversation fresh. Profiles carry the durable state instead.
package history

import "sync"

// Turn is one conversation entry. Role is "user" or "model".
type Turn struct {
	Role string
	Text string
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Buffer is a per-key bounded turn list. Keys are conversation scopes
// (one per Discord channel); all users in a channel share one window.
// Safe for concurrent use; each channel agent is the only writer for
// its own key, so per-key turn ordering is the agent's send order.
type Buffer struct {
	mu     sync.Mutex
	window int
	turns  map[string][]Turn
}

// New creates a Buffer that keeps at most window turns per key.
// A window below 2 is raised to 2 so eviction can always drop a full
// (user, model) pair.
func New(window int) *Buffer {
	if window < 2 {
		window = 2
	}
	return &Buffer{
		window: window,
		turns:  make(map[string][]Turn),
	}
}

// Append adds a turn to the end of the key's list, creating the list if
// absent, then evicts from the front in increments of two until the list
// fits the window. Pair eviction keeps the head of the window on a user
// turn, so the model never sees a reply without its question.
func (b *Buffer) Append(key, role, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := append(b.turns[key], Turn{Role: role, Text: text})
	for len(list) > b.window {
		drop := 2
		if drop > len(list) {
			drop = len(list)
		}
		list = list[drop:]
	}
	b.turns[key] = list
}

// Get returns the key's turns oldest-first, or an empty slice for an
// unseen key. The returned slice is a copy; callers may extend it freely.
func (b *Buffer) Get(key string) []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.turns[key]
	out := make([]Turn, len(list))
	copy(out, list)
	return out
}

// Clear removes the key entirely. A later Append starts a fresh list;
// evicted turns never come back.
func (b *Buffer) Clear(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.turns, key)
}

// Len returns the number of turns stored for key.
func (b *Buffer) Len(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns[key])
}
