package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tessera/api/internal/block"
	"tessera/api/internal/board"
	"tessera/api/internal/export"
	"tessera/api/internal/revlog"
	"tessera/api/internal/search"
	"tessera/api/internal/store"
)

// fakeStore is an in-memory dataStore. The service flows under test
// (undo/redo, autosave, restore) need real state behind the calls, so
// the fake keeps it instead of stubbing per method.
type fakeStore struct {
	mu       sync.Mutex
	pingErr  error
	projects map[string]store.Project
	tabs     map[string]store.Tab
	blocks   map[string]store.Block
	tasks    map[string][]block.Task
	props    map[string]block.Properties
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: map[string]store.Project{},
		tabs:     map[string]store.Tab{},
		blocks:   map[string]store.Block{},
		tasks:    map[string][]block.Task{},
		props:    map[string]block.Properties{},
	}
}

func (f *fakeStore) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeStore) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeStore) ListProjects(context.Context) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakeStore) GetProject(_ context.Context, id string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) InsertProject(_ context.Context, p store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateProject(_ context.Context, id, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Name, p.Description, p.UpdatedAt = name, description, time.Now()
	f.projects[id] = p
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.projects, id)
	for tabID, tab := range f.tabs {
		if tab.ProjectID == id {
			delete(f.tabs, tabID)
		}
	}
	return nil
}

func (f *fakeStore) ListTabs(_ context.Context, projectID string) ([]store.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Tab{}
	for _, tab := range f.tabs {
		if tab.ProjectID == projectID {
			out = append(out, tab)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakeStore) GetTab(_ context.Context, id string) (store.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[id]
	if !ok {
		return store.Tab{}, store.ErrNotFound
	}
	return tab, nil
}

func (f *fakeStore) InsertTab(_ context.Context, tab store.Tab) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	tab.CreatedAt, tab.UpdatedAt = now, now
	f.tabs[tab.ID] = tab
	return nil
}

func (f *fakeStore) UpdateTab(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[id]
	if !ok {
		return store.ErrNotFound
	}
	tab.Name, tab.UpdatedAt = name, time.Now()
	f.tabs[id] = tab
	return nil
}

func (f *fakeStore) DeleteTab(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.tabs, id)
	for blockID, b := range f.blocks {
		if b.TabID == id {
			delete(f.blocks, blockID)
		}
	}
	return nil
}

func (f *fakeStore) ListBlocks(_ context.Context, tabID string) ([]store.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Block{}
	for _, b := range f.blocks {
		if b.TabID == tabID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakeStore) GetBlock(_ context.Context, id string) (store.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[id]
	if !ok {
		return store.Block{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) InsertBlock(_ context.Context, b store.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.UpdatedAt = time.Now()
	f.blocks[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBlockContent(_ context.Context, blockID string, content json.RawMessage, expectedVersion *int64) (store.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[blockID]
	if !ok {
		return store.Block{}, store.ErrNotFound
	}
	if expectedVersion != nil && *expectedVersion != b.Version {
		return store.Block{}, store.ErrVersionConflict
	}
	b.Content = append(json.RawMessage(nil), content...)
	b.Version++
	b.UpdatedAt = time.Now()
	f.blocks[blockID] = b
	return b, nil
}

func (f *fakeStore) DeleteBlock(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blocks[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.blocks, id)
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ReorderBlocks(_ context.Context, tabID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		b, ok := f.blocks[id]
		if !ok || b.TabID != tabID {
			continue
		}
		b.SortOrder = i
		f.blocks[id] = b
	}
	return nil
}

func (f *fakeStore) ListTasks(_ context.Context, blockID string) ([]block.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]block.Task(nil), f.tasks[blockID]...), nil
}

func (f *fakeStore) GetTask(_ context.Context, blockID, taskID string) (block.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks[blockID] {
		if t.ID == taskID {
			return t, nil
		}
	}
	return block.Task{}, store.ErrNotFound
}

func (f *fakeStore) InsertTask(_ context.Context, blockID string, task block.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[blockID] = append(f.tasks[blockID], task)
	return nil
}

func (f *fakeStore) UpdateTask(_ context.Context, blockID string, task block.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks[blockID] {
		if t.ID == task.ID {
			f.tasks[blockID][i] = task
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteTask(_ context.Context, blockID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tasks[blockID][:0]
	for _, t := range f.tasks[blockID] {
		if t.ID != taskID {
			kept = append(kept, t)
		}
	}
	f.tasks[blockID] = kept
	return nil
}

func propsKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

func (f *fakeStore) GetProperties(_ context.Context, entityType, entityID string) (block.Properties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props[propsKey(entityType, entityID)], nil
}

func (f *fakeStore) ListTaskProperties(_ context.Context, blockID string) (map[string]block.Properties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]block.Properties{}
	for _, t := range f.tasks[blockID] {
		if rec, ok := f.props[propsKey("task", t.ID)]; ok {
			out[t.ID] = rec
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertProperties(_ context.Context, entityType, entityID string, updates store.PropertyUpdates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.props[propsKey(entityType, entityID)]
	if updates.Status != nil {
		rec.Status = *updates.Status
	}
	if updates.Priority != nil {
		rec.Priority = *updates.Priority
	}
	if updates.AssigneeID != nil {
		rec.AssigneeID = *updates.AssigneeID
	}
	if updates.DueDate != nil {
		rec.DueDate = *updates.DueDate
	}
	if updates.Tags != nil {
		rec.Tags = append([]string(nil), (*updates.Tags)...)
	}
	f.props[propsKey(entityType, entityID)] = rec
	return nil
}

func (f *fakeStore) storedContent(blockID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.blocks[blockID].Content)
}

func (f *fakeStore) blockCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks)
}

func (f *fakeStore) taskProps(taskID string) block.Properties {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props[propsKey("task", taskID)]
}

// --- helpers ---

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	svc := NewService(fs, Options{
		Revisions: revlog.New(t.TempDir()),
		Exporter:  export.NewService(fs),
		Debounce:  Debounce{Table: 15 * time.Millisecond, Text: 15 * time.Millisecond, Embed: 15 * time.Millisecond},
	})
	t.Cleanup(svc.Close)
	return svc, fs
}

func seedTab(t *testing.T, svc *Service) store.Tab {
	t.Helper()
	ctx := context.Background()
	project, err := svc.CreateProject(ctx, "Alpha", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tab, err := svc.CreateTab(ctx, project.ID, "Main")
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	return tab
}

func seedBlock(t *testing.T, svc *Service, blockType string) store.Block {
	t.Helper()
	tab := seedTab(t, svc)
	blk, err := svc.CreateBlock(context.Background(), tab.ID, blockType)
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	return blk
}

func wantDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError %d %s, got %v", status, code, err)
	}
	if de.Status != status || de.Code != code {
		t.Fatalf("got %d %s, want %d %s", de.Status, de.Code, status, code)
	}
	return de
}

func waitForStore(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// --- blocks ---

func TestCreateBlockSeedsDefaultContent(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "table")

	if blk.Version != 1 {
		t.Fatalf("new block version %d, want 1", blk.Version)
	}
	var content block.TableContent
	if err := json.Unmarshal(blk.Content, &content); err != nil {
		t.Fatalf("default content not a table document: %v", err)
	}
	if content.Rows < 1 || content.Cols < 1 {
		t.Fatalf("empty default table: %dx%d", content.Rows, content.Cols)
	}
}

func TestCreateBlockRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService(t)
	tab := seedTab(t, svc)
	_, err := svc.CreateBlock(context.Background(), tab.ID, "widget")
	wantDomainError(t, err, 422, "UNKNOWN_BLOCK_TYPE")
}

func TestUpdateBlockContentVersionConflict(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "text")
	ctx := context.Background()

	v1 := int64(1)
	updated, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"title":"","text":"first"}`), &v1)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version %d, want 2", updated.Version)
	}

	stale := int64(1)
	_, err = svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"title":"","text":"second"}`), &stale)
	de := wantDomainError(t, err, 409, "CONFLICT")

	details, ok := de.Details.(map[string]any)
	if !ok {
		t.Fatalf("conflict details missing: %#v", de.Details)
	}
	server, ok := details["server"].(store.Block)
	if !ok {
		t.Fatalf("conflict must carry the server copy: %#v", details)
	}
	if server.Version != 2 || !strings.Contains(string(server.Content), "first") {
		t.Fatalf("server copy wrong: v%d %s", server.Version, server.Content)
	}
}

func TestUpdateBlockContentLastWriteWinsWithoutVersion(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "text")
	ctx := context.Background()

	if _, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"text":"a"}`), nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"text":"b"}`), nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 3 {
		t.Fatalf("version %d, want 3", updated.Version)
	}
}

func TestUpdateBlockContentRejectsInvalidJSON(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "text")
	_, err := svc.UpdateBlockContent(context.Background(), blk.ID, json.RawMessage(`{"text":`), nil)
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestAutosaveOverlaysReadsThenFlushes(t *testing.T) {
	svc, fs := newTestService(t)
	blk := seedBlock(t, svc, "text")
	ctx := context.Background()

	draft := `{"title":"","text":"draft"}`
	res, err := svc.Autosave(ctx, blk.ID, json.RawMessage(draft))
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if res["scheduled"] != true {
		t.Fatalf("not scheduled: %v", res)
	}
	if res["windowMs"] != int64(15) {
		t.Fatalf("window %v, want 15ms", res["windowMs"])
	}

	// Reads see the pending content before the write lands.
	got, err := svc.GetBlock(ctx, blk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Content) != draft {
		t.Fatalf("pending content not visible: %s", got.Content)
	}

	waitForStore(t, func() bool { return fs.storedContent(blk.ID) == draft })
}

func TestUndoRedoWalkHistory(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "text")
	ctx := context.Background()

	c0 := string(blk.Content)
	c1 := `{"title":"","text":"one"}`
	c2 := `{"title":"","text":"two"}`
	if _, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(c1), nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(c2), nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.Undo(ctx, blk.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if string(got.Content) != c1 {
		t.Fatalf("undo landed on %s, want %s", got.Content, c1)
	}
	got, err = svc.Undo(ctx, blk.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if string(got.Content) != c0 {
		t.Fatalf("undo landed on %s, want seed", got.Content)
	}
	_, err = svc.Undo(ctx, blk.ID)
	wantDomainError(t, err, 409, "NOTHING_TO_UNDO")

	got, err = svc.Redo(ctx, blk.ID)
	if err != nil {
		t.Fatalf("redo: %v", err)
	}
	if string(got.Content) != c1 {
		t.Fatalf("redo landed on %s, want %s", got.Content, c1)
	}
}

// --- table operations ---

func TestApplyTableOp(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "table")
	ctx := context.Background()

	var before block.TableContent
	if err := json.Unmarshal(blk.Content, &before); err != nil {
		t.Fatalf("decode: %v", err)
	}

	updated, err := svc.ApplyTableOp(ctx, blk.ID, "add-row", TableOpInput{})
	if err != nil {
		t.Fatalf("add-row: %v", err)
	}
	var after block.TableContent
	if err := json.Unmarshal(updated.Content, &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if after.Rows != before.Rows+1 {
		t.Fatalf("rows %d, want %d", after.Rows, before.Rows+1)
	}

	_, err = svc.ApplyTableOp(ctx, blk.ID, "set-cell", TableOpInput{Row: 99, Col: 0, Value: "x"})
	wantDomainError(t, err, 422, "VALIDATION_ERROR")

	_, err = svc.ApplyTableOp(ctx, blk.ID, "transpose", TableOpInput{})
	wantDomainError(t, err, 422, "UNKNOWN_TABLE_OP")
}

func TestTableOpOnWrongBlockType(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "text")
	_, err := svc.ApplyTableOp(context.Background(), blk.ID, "add-row", TableOpInput{})
	wantDomainError(t, err, 422, "WRONG_BLOCK_TYPE")
}

// --- tasks and board ---

func TestTaskLifecycleAndBoard(t *testing.T) {
	svc, fs := newTestService(t)
	blk := seedBlock(t, svc, "tasks")
	ctx := context.Background()

	t1, err := svc.CreateTask(ctx, blk.ID, "write docs")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	t2, err := svc.CreateTask(ctx, blk.ID, "ship")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	view, err := svc.Board(ctx, blk.ID, "")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if view["groupBy"] != "status" {
		t.Fatalf("default groupBy %v", view["groupBy"])
	}
	todo := columnByKey(t, view["columns"].([]board.Column), "todo")
	if len(todo.TaskIDs) != 2 || todo.TaskIDs[0] != t1.ID || todo.TaskIDs[1] != t2.ID {
		t.Fatalf("todo column %v", todo.TaskIDs)
	}

	moved, err := svc.BoardMove(ctx, blk.ID, board.Drop{
		TaskID:       t1.ID,
		GroupBy:      "status",
		SourceColumn: "todo",
		TargetColumn: "done",
	})
	if err != nil {
		t.Fatalf("board move: %v", err)
	}
	if got := fs.taskProps(t1.ID).Status; got != "done" {
		t.Fatalf("cross-column move must mutate status, got %q", got)
	}
	done := columnByKey(t, moved["columns"].([]board.Column), "done")
	if len(done.TaskIDs) != 1 || done.TaskIDs[0] != t1.ID {
		t.Fatalf("done column %v", done.TaskIDs)
	}

	pri := "high"
	if _, err := svc.UpdateTask(ctx, blk.ID, t2.ID, TaskPatch{Priority: &pri}); err != nil {
		t.Fatalf("update task: %v", err)
	}
	if got := fs.taskProps(t2.ID).Priority; got != "high" {
		t.Fatalf("patch must mirror into properties, got %q", got)
	}

	if err := svc.DeleteTask(ctx, blk.ID, t1.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	_, content, err := svc.taskContent(ctx, blk.ID)
	if err != nil {
		t.Fatalf("task content: %v", err)
	}
	if len(content.Order) != 1 || content.Order[0] != t2.ID {
		t.Fatalf("order after delete %v", content.Order)
	}
}

func columnByKey(t *testing.T, columns []board.Column, key string) board.Column {
	t.Helper()
	for _, c := range columns {
		if c.Key == key {
			return c
		}
	}
	t.Fatalf("no column %q in %v", key, columns)
	return board.Column{}
}

func TestBoardRejectsUnknownGroupBy(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "tasks")
	_, err := svc.Board(context.Background(), blk.ID, "color")
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

// --- temp ids ---

func TestTempIDsAreClientOnly(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	got, err := svc.UpdateBlockContent(ctx, "temp-123", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("temp update: %v", err)
	}
	if got.Version != 0 {
		t.Fatalf("temp write must not version: %d", got.Version)
	}
	if _, err := svc.GetBlock(ctx, "temp-123"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("temp read should be not found, got %v", err)
	}
	if err := svc.DeleteBlock(ctx, "temp-456"); err != nil {
		t.Fatalf("temp delete: %v", err)
	}
	res, err := svc.Autosave(ctx, "temp-123", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("temp autosave: %v", err)
	}
	if res["scheduled"] != false {
		t.Fatalf("temp autosave must not schedule: %v", res)
	}
	task, err := svc.CreateTask(ctx, "temp-123", "later")
	if err != nil {
		t.Fatalf("temp task: %v", err)
	}
	if !strings.HasPrefix(task.ID, "temp-task") {
		t.Fatalf("task on temp block should be client-only: %q", task.ID)
	}
	if fs.blockCount() != 0 {
		t.Fatalf("temp operations must not touch the store: %d blocks", fs.blockCount())
	}
}

// --- revisions ---

func TestRevisionCommitAndRestore(t *testing.T) {
	svc, fs := newTestService(t)
	tab := seedTab(t, svc)
	ctx := context.Background()

	blk, err := svc.CreateBlock(ctx, tab.ID, "text")
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	if _, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"title":"","text":"v1"}`), nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	rev, err := svc.CommitRevision(ctx, tab.ID, "ana", "checkpoint")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"title":"","text":"v2"}`), nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.CreateBlock(ctx, tab.ID, "text"); err != nil {
		t.Fatalf("create block: %v", err)
	}

	blocks, err := svc.RestoreRevision(ctx, tab.ID, rev.Hash, "ana")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("restore kept %d blocks, want 1", len(blocks))
	}
	if !strings.Contains(string(blocks[0].Content), "v1") {
		t.Fatalf("restored content %s", blocks[0].Content)
	}
	if fs.blockCount() != 1 {
		t.Fatalf("block added after the checkpoint must be gone: %d", fs.blockCount())
	}

	revisions, err := svc.ListRevisions(ctx, tab.ID, 0)
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected checkpoint plus restore, got %d", len(revisions))
	}
	if revisions[0].Message != "Restore "+rev.Hash {
		t.Fatalf("newest revision %q", revisions[0].Message)
	}
}

// --- export ---

func TestExportTabHTML(t *testing.T) {
	svc, _ := newTestService(t)
	tab := seedTab(t, svc)
	ctx := context.Background()

	blk, err := svc.CreateBlock(ctx, tab.ID, "text")
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	if _, err := svc.UpdateBlockContent(ctx, blk.ID, json.RawMessage(`{"title":"","text":"hello export"}`), nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	result, err := svc.ExportTab(ctx, tab.ID, export.FormatHTML)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(result.MimeType, "text/html") {
		t.Fatalf("mime %q", result.MimeType)
	}
	if !strings.HasSuffix(result.Filename, ".html") {
		t.Fatalf("filename %q", result.Filename)
	}
	if !strings.Contains(string(result.Data), "hello export") {
		t.Fatal("rendered output missing block text")
	}

	_, err = svc.ExportTab(ctx, tab.ID, export.Format("xml"))
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

// --- optional collaborators ---

func TestFilesUnavailableWithoutStorage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListFiles(context.Background(), "blk_x")
	wantDomainError(t, err, 503, "FILES_UNAVAILABLE")
}

func TestSearchWithoutBackendIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Search(context.Background(), search.Query{Text: "plan"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(res.Results))
	}
}

func TestConcurrentTableOpsKeepHistoryWalkable(t *testing.T) {
	svc, _ := newTestService(t)
	blk := seedBlock(t, svc, "table")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyTableOp(ctx, blk.ID, "add-row", TableOpInput{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("table op: %v", err)
	}

	// The shared stack must still walk down to the seed and stop there.
	sawBottom := false
	for i := 0; i < 20 && !sawBottom; i++ {
		if _, err := svc.Undo(ctx, blk.ID); err != nil {
			wantDomainError(t, err, 409, "NOTHING_TO_UNDO")
			sawBottom = true
		}
	}
	if !sawBottom {
		t.Fatal("undo never reached the seed")
	}
}

func TestExportTabIncludesStoredTasks(t *testing.T) {
	svc, _ := newTestService(t)
	tab := seedTab(t, svc)
	ctx := context.Background()

	blk, err := svc.CreateBlock(ctx, tab.ID, "tasks")
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	if _, err := svc.CreateTask(ctx, blk.ID, "ship the release"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	result, err := svc.ExportTab(ctx, tab.ID, export.FormatHTML)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(string(result.Data), "ship the release") {
		t.Fatal("task stored in the tasks table missing from the export")
	}
}
