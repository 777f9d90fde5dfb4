// Package history implements the bounded undo/redo snapshot stack kept
// per table block.
package history

import (
	"encoding/json"
	"sync"
)

// Limit is the maximum number of retained snapshots; the oldest entry is
// evicted on overflow.
const Limit = 50

// Stack holds full-content snapshots with a cursor. The zero value is
// not usable; seed with New. Safe for concurrent use.
type Stack struct {
	mu        sync.Mutex
	snapshots []json.RawMessage
	cursor    int
}

// New seeds the stack with the block's content as it was on first touch.
func New(initial json.RawMessage) *Stack {
	return &Stack{snapshots: []json.RawMessage{cloneRaw(initial)}}
}

// Push records a new snapshot, truncating any redo branch beyond the
// cursor first.
func (s *Stack) Push(snapshot json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots[:s.cursor+1], cloneRaw(snapshot))
	if len(s.snapshots) > Limit {
		s.snapshots = s.snapshots[len(s.snapshots)-Limit:]
	}
	s.cursor = len(s.snapshots) - 1
}

// Undo moves the cursor back and returns the snapshot there. ok is false
// at the bottom of the stack.
func (s *Stack) Undo() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == 0 {
		return nil, false
	}
	s.cursor--
	return cloneRaw(s.snapshots[s.cursor]), true
}

// Redo moves the cursor forward and returns the snapshot there. ok is
// false at the top of the stack.
func (s *Stack) Redo() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.snapshots)-1 {
		return nil, false
	}
	s.cursor++
	return cloneRaw(s.snapshots[s.cursor]), true
}

// Cursor returns the current cursor position, for reverting a failed
// undo/redo write.
func (s *Stack) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SetCursor rewinds the cursor to a previously observed position.
func (s *Stack) SetCursor(c int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c < 0 || c >= len(s.snapshots) {
		return
	}
	s.cursor = c
}

// Len reports the number of retained snapshots.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
