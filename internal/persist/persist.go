// Package persist coalesces rapid content mutations for a block into the
// minimum number of store writes without dropping the final state.
package persist

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// WriteFunc issues one whole-content replace for a block.
type WriteFunc func(ctx context.Context, blockID string, content json.RawMessage) error

const writeTimeout = 10 * time.Second

// Manager owns one coalescing session per block. Each recorded mutation
// replaces the session's pending content, cancels any pending timer and
// arms a new one; on fire the latest content is written once.
type Manager struct {
	write WriteFunc

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	timer   *time.Timer
	pending json.RawMessage
	// failed retains the last unflushed content after a write error so a
	// manual Flush can retry it. There is no automatic retry.
	failed bool
}

func NewManager(write WriteFunc) *Manager {
	return &Manager{
		write:    write,
		sessions: make(map[string]*session),
	}
}

// Record stores content as the block's pending state and (re)arms the
// debounce timer. The previous pending state, if any, is superseded:
// whole-document replace makes "latest wins" the merge.
func (m *Manager) Record(blockID string, content json.RawMessage, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[blockID]
	if !ok {
		sess = &session{}
		m.sessions[blockID] = sess
	}
	sess.pending = append(json.RawMessage(nil), content...)
	sess.failed = false
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = time.AfterFunc(window, func() {
		m.flush(blockID)
	})
}

// Flush writes the block's pending content immediately, if any. Used on
// explicit saves and at shutdown.
func (m *Manager) Flush(blockID string) error {
	return m.flush(blockID)
}

func (m *Manager) flush(blockID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[blockID]
	if !ok || sess.pending == nil {
		m.mu.Unlock()
		return nil
	}
	content := sess.pending
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := m.write(ctx, blockID, content); err != nil {
		log.Printf("persist: flush block %s: %v", blockID, err)
		m.mu.Lock()
		// Keep the optimistic content for a manual retry unless a newer
		// mutation already replaced it.
		if cur, ok := m.sessions[blockID]; ok && sameRaw(cur.pending, content) {
			cur.failed = true
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if cur, ok := m.sessions[blockID]; ok && sameRaw(cur.pending, content) {
		cur.pending = nil
	}
	m.mu.Unlock()
	return nil
}

// Pending returns the unflushed content for a block, if any. A second
// return of true with failed content signals a write that needs a manual
// retry.
func (m *Manager) Pending(blockID string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[blockID]
	if !ok || sess.pending == nil {
		return nil, false
	}
	return append(json.RawMessage(nil), sess.pending...), sess.failed
}

// CloseBlock tears down the block's session, cancelling any pending
// timer. A write already in flight completes; its result is dropped.
func (m *Manager) CloseBlock(blockID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[blockID]; ok {
		if sess.timer != nil {
			sess.timer.Stop()
		}
		delete(m.sessions, blockID)
	}
}

// Close cancels every pending timer without flushing.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.timer != nil {
			sess.timer.Stop()
		}
		delete(m.sessions, id)
	}
}

func sameRaw(a, b json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
