// Package revlog keeps a durable, per-tab revision history of block
// content as git commits: one repository per tab, one tab.json snapshot
// per revision. It complements the bounded in-memory undo stack with
// named history that survives restarts.
package revlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"tessera/api/internal/store"
)

const snapshotFile = "tab.json"

// Snapshot is the committed state of a tab: its metadata and every block
// with content.
type Snapshot struct {
	Tab    store.Tab     `json:"tab"`
	Blocks []store.Block `json:"blocks"`
}

// Revision describes one commit in a tab's history.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records a snapshot of the tab, creating the repository on first
// use. Returns the new revision.
func (s *Service) Commit(tabID string, snapshot Snapshot, author, message string) (Revision, error) {
	lock := s.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(tabID)
	if err != nil {
		return Revision{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Revision{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return Revision{}, fmt.Errorf("git add snapshot: %w", err)
	}

	if author == "" {
		author = "tessera"
	}
	if message == "" {
		message = "Snapshot"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: "tessera@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), nil
}

// History lists revisions newest first, up to limit (0 = all).
func (s *Service) History(tabID string, limit int) ([]Revision, error) {
	lock := s.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(tabID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []Revision{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return []Revision{}, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetSnapshot loads the snapshot committed at hash.
func (s *Service) GetSnapshot(tabID, hash string) (Snapshot, error) {
	lock := s.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(tabID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *Service) openOrInit(tabID string) (*git.Repository, error) {
	path := s.repoPath(tabID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(tabID string) string {
	return filepath.Join(s.baseDir, tabID)
}

func (s *Service) tabLock(tabID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[tabID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[tabID] = lock
	return lock
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
