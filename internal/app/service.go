package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"tessera/api/internal/block"
	"tessera/api/internal/board"
	"tessera/api/internal/cache"
	"tessera/api/internal/export"
	"tessera/api/internal/files"
	"tessera/api/internal/history"
	"tessera/api/internal/persist"
	"tessera/api/internal/revlog"
	"tessera/api/internal/search"
	"tessera/api/internal/store"
	"tessera/api/internal/table"
	"tessera/api/internal/timeline"
	"tessera/api/internal/util"
)

var allowedGroupBy = map[string]struct{}{
	"status":   {},
	"priority": {},
	"assignee": {},
	"tags":     {},
	"dueDate":  {},
}

type dataStore interface {
	Ping(context.Context) error

	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	UpdateProject(ctx context.Context, projectID, name, description string) error
	DeleteProject(context.Context, string) error

	ListTabs(context.Context, string) ([]store.Tab, error)
	GetTab(context.Context, string) (store.Tab, error)
	InsertTab(context.Context, store.Tab) error
	UpdateTab(ctx context.Context, tabID, name string) error
	DeleteTab(context.Context, string) error

	ListBlocks(context.Context, string) ([]store.Block, error)
	GetBlock(context.Context, string) (store.Block, error)
	InsertBlock(context.Context, store.Block) error
	UpdateBlockContent(ctx context.Context, blockID string, content json.RawMessage, expectedVersion *int64) (store.Block, error)
	DeleteBlock(context.Context, string) error
	ReorderBlocks(ctx context.Context, tabID string, ids []string) error

	ListTasks(context.Context, string) ([]block.Task, error)
	GetTask(ctx context.Context, blockID, taskID string) (block.Task, error)
	InsertTask(ctx context.Context, blockID string, task block.Task) error
	UpdateTask(ctx context.Context, blockID string, task block.Task) error
	DeleteTask(ctx context.Context, blockID, taskID string) error
	GetProperties(ctx context.Context, entityType, entityID string) (block.Properties, error)
	ListTaskProperties(ctx context.Context, blockID string) (map[string]block.Properties, error)
	UpsertProperties(ctx context.Context, entityType, entityID string, updates store.PropertyUpdates) error
}

// Debounce holds the autosave coalescing window per content class.
type Debounce struct {
	Table time.Duration
	Text  time.Duration
	Embed time.Duration
}

// Options carries the optional collaborators. Nil fields disable the
// feature; the corresponding endpoints answer 503.
type Options struct {
	Cache     *cache.BlockCache
	Search    *search.Service
	Files     *files.Service
	Revisions *revlog.Service
	Exporter  *export.Service
	Debounce  Debounce
}

type Service struct {
	store     dataStore
	cache     *cache.BlockCache
	search    *search.Service
	files     *files.Service
	revisions *revlog.Service
	exporter  *export.Service
	persister *persist.Manager
	debounce  Debounce

	historyMu sync.Mutex
	histories map[string]*history.Stack
}

func NewService(st dataStore, opts Options) *Service {
	s := &Service{
		store:     st,
		cache:     opts.Cache,
		search:    opts.Search,
		files:     opts.Files,
		revisions: opts.Revisions,
		exporter:  opts.Exporter,
		debounce:  opts.Debounce,
		histories: make(map[string]*history.Stack),
	}
	s.persister = persist.NewManager(func(ctx context.Context, blockID string, content json.RawMessage) error {
		updated, err := st.UpdateBlockContent(ctx, blockID, content, nil)
		if err != nil {
			return err
		}
		if s.cache != nil {
			s.cache.Set(ctx, updated)
		}
		return nil
	})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingCache reports cache connectivity; nil when no cache is configured.
func (s *Service) PingCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Service) CacheConfigured() bool {
	return s.cache != nil
}

// Close flushes pending autosaves.
func (s *Service) Close() {
	s.persister.Close()
}

// --- projects ---

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) CreateProject(ctx context.Context, name, description string) (store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Project{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project name is required", nil)
	}
	existing, err := s.store.ListProjects(ctx)
	if err != nil {
		return store.Project{}, err
	}
	item := store.Project{
		ID:          util.NewID("prj"),
		Name:        name,
		Description: description,
		SortOrder:   len(existing),
	}
	if err := s.store.InsertProject(ctx, item); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProject(ctx, item.ID)
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tabs, err := s.store.ListTabs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": project, "tabs": tabs}, nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID, name, description string) (store.Project, error) {
	if strings.TrimSpace(name) == "" {
		return store.Project{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project name is required", nil)
	}
	if err := s.store.UpdateProject(ctx, projectID, strings.TrimSpace(name), description); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProject(ctx, projectID)
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	return s.store.DeleteProject(ctx, projectID)
}

// --- tabs ---

func (s *Service) ListTabs(ctx context.Context, projectID string) ([]store.Tab, error) {
	return s.store.ListTabs(ctx, projectID)
}

func (s *Service) CreateTab(ctx context.Context, projectID, name string) (store.Tab, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Tab{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tab name is required", nil)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return store.Tab{}, err
	}
	existing, err := s.store.ListTabs(ctx, projectID)
	if err != nil {
		return store.Tab{}, err
	}
	item := store.Tab{
		ID:        util.NewID("tab"),
		ProjectID: projectID,
		Name:      name,
		SortOrder: len(existing),
	}
	if err := s.store.InsertTab(ctx, item); err != nil {
		return store.Tab{}, err
	}
	return s.store.GetTab(ctx, item.ID)
}

func (s *Service) UpdateTab(ctx context.Context, tabID, name string) (store.Tab, error) {
	if strings.TrimSpace(name) == "" {
		return store.Tab{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tab name is required", nil)
	}
	if err := s.store.UpdateTab(ctx, tabID, strings.TrimSpace(name)); err != nil {
		return store.Tab{}, err
	}
	return s.store.GetTab(ctx, tabID)
}

func (s *Service) DeleteTab(ctx context.Context, tabID string) error {
	blocks, err := s.store.ListBlocks(ctx, tabID)
	if err == nil {
		for _, b := range blocks {
			s.persister.CloseBlock(b.ID)
			s.dropHistory(b.ID)
			if s.cache != nil {
				s.cache.Invalidate(ctx, b.ID)
			}
			if s.search != nil {
				s.search.DeleteBlock(b.ID)
			}
		}
	}
	return s.store.DeleteTab(ctx, tabID)
}

// --- blocks ---

func (s *Service) ListBlocks(ctx context.Context, tabID string) ([]store.Block, error) {
	blocks, err := s.store.ListBlocks(ctx, tabID)
	if err != nil {
		return nil, err
	}
	// Reads see pending autosave content before it lands in the store.
	for i := range blocks {
		if pending, _ := s.persister.Pending(blocks[i].ID); pending != nil {
			blocks[i].Content = pending
		}
	}
	return blocks, nil
}

func (s *Service) CreateBlock(ctx context.Context, tabID, blockType string) (store.Block, error) {
	t := block.Type(blockType)
	if !block.KnownType(t) {
		return store.Block{}, domainError(http.StatusUnprocessableEntity, "UNKNOWN_BLOCK_TYPE", fmt.Sprintf("unknown block type %q", blockType), nil)
	}
	if _, err := s.store.GetTab(ctx, tabID); err != nil {
		return store.Block{}, err
	}
	existing, err := s.store.ListBlocks(ctx, tabID)
	if err != nil {
		return store.Block{}, err
	}
	item := store.Block{
		ID:        util.NewID("blk"),
		TabID:     tabID,
		Type:      blockType,
		Content:   block.DefaultContent(t),
		SortOrder: len(existing),
		Version:   1,
	}
	if err := s.store.InsertBlock(ctx, item); err != nil {
		return store.Block{}, err
	}
	created, err := s.store.GetBlock(ctx, item.ID)
	if err != nil {
		return store.Block{}, err
	}
	s.stackFor(created.ID, created.Content)
	s.indexBlock(ctx, created)
	return created, nil
}

// GetBlock serves from the cache when possible and overlays pending
// autosave content so readers never see stale state behind the window.
func (s *Service) GetBlock(ctx context.Context, blockID string) (store.Block, error) {
	if block.IsTempID(blockID) {
		return store.Block{}, store.ErrNotFound
	}
	var blk store.Block
	found := false
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, blockID); ok {
			blk = cached
			found = true
		}
	}
	if !found {
		loaded, err := s.store.GetBlock(ctx, blockID)
		if err != nil {
			return store.Block{}, err
		}
		blk = loaded
		if s.cache != nil {
			s.cache.Set(ctx, blk)
		}
	}
	if pending, _ := s.persister.Pending(blockID); pending != nil {
		blk.Content = pending
	}
	return blk, nil
}

// UpdateBlockContent replaces the content document. When
// expectedVersion is set and no longer matches, the request fails with
// a conflict carrying the server copy; absent, last write wins.
func (s *Service) UpdateBlockContent(ctx context.Context, blockID string, content json.RawMessage, expectedVersion *int64) (store.Block, error) {
	if block.IsTempID(blockID) {
		return store.Block{ID: blockID, Content: content, Version: 0}, nil
	}
	if !json.Valid(content) {
		return store.Block{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content must be a JSON document", nil)
	}
	current, err := s.store.GetBlock(ctx, blockID)
	if err != nil {
		return store.Block{}, err
	}
	// An explicit write supersedes any scheduled autosave.
	s.persister.CloseBlock(blockID)

	updated, err := s.store.UpdateBlockContent(ctx, blockID, content, expectedVersion)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			server, getErr := s.store.GetBlock(ctx, blockID)
			if getErr != nil {
				return store.Block{}, getErr
			}
			return store.Block{}, domainError(http.StatusConflict, "CONFLICT", "block was modified by another writer", map[string]any{"server": server})
		}
		return store.Block{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, updated)
	}
	s.stackFor(blockID, current.Content).Push(updated.Content)
	s.indexBlock(ctx, updated)
	return updated, nil
}

// Autosave records an edit for debounced persistence. The write lands
// after the content class's quiet window; further edits within the
// window replace the pending content and reset the timer.
func (s *Service) Autosave(ctx context.Context, blockID string, content json.RawMessage) (map[string]any, error) {
	if block.IsTempID(blockID) {
		return map[string]any{"scheduled": false, "temp": true}, nil
	}
	if !json.Valid(content) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content must be a JSON document", nil)
	}
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	window := s.window(block.Type(blk.Type))
	s.stackFor(blockID, blk.Content).Push(content)
	s.persister.Record(blockID, content, window)
	return map[string]any{"scheduled": true, "windowMs": window.Milliseconds()}, nil
}

func (s *Service) DeleteBlock(ctx context.Context, blockID string) error {
	if block.IsTempID(blockID) {
		return nil
	}
	s.persister.CloseBlock(blockID)
	s.dropHistory(blockID)
	if err := s.store.DeleteBlock(ctx, blockID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, blockID)
	}
	if s.search != nil {
		s.search.DeleteBlock(blockID)
	}
	return nil
}

func (s *Service) ReorderBlocks(ctx context.Context, tabID string, ids []string) ([]store.Block, error) {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if !block.IsTempID(id) {
			kept = append(kept, id)
		}
	}
	if err := s.store.ReorderBlocks(ctx, tabID, kept); err != nil {
		return nil, err
	}
	return s.ListBlocks(ctx, tabID)
}

func (s *Service) window(t block.Type) time.Duration {
	switch t {
	case block.TypeTable, block.TypeTasks, block.TypeTimeline:
		return s.debounce.Table
	case block.TypeEmbed, block.TypeImage, block.TypeFile, block.TypeShopify:
		return s.debounce.Embed
	default:
		return s.debounce.Text
	}
}

// --- history ---

func (s *Service) stackFor(blockID string, seed json.RawMessage) *history.Stack {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	st, ok := s.histories[blockID]
	if !ok {
		st = history.New(seed)
		s.histories[blockID] = st
	}
	return st
}

func (s *Service) dropHistory(blockID string) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	delete(s.histories, blockID)
}

func (s *Service) Undo(ctx context.Context, blockID string) (store.Block, error) {
	return s.timeTravel(ctx, blockID, true)
}

func (s *Service) Redo(ctx context.Context, blockID string) (store.Block, error) {
	return s.timeTravel(ctx, blockID, false)
}

// timeTravel moves the history cursor and persists the snapshot it
// lands on. A failed write puts the cursor back so the stack stays in
// step with the store.
func (s *Service) timeTravel(ctx context.Context, blockID string, backward bool) (store.Block, error) {
	if block.IsTempID(blockID) {
		return store.Block{}, store.ErrNotFound
	}
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return store.Block{}, err
	}
	st := s.stackFor(blockID, blk.Content)
	before := st.Cursor()

	var snapshot json.RawMessage
	var ok bool
	if backward {
		snapshot, ok = st.Undo()
	} else {
		snapshot, ok = st.Redo()
	}
	if !ok {
		code := "NOTHING_TO_UNDO"
		if !backward {
			code = "NOTHING_TO_REDO"
		}
		return store.Block{}, domainError(http.StatusConflict, code, "history exhausted", nil)
	}

	s.persister.CloseBlock(blockID)
	updated, err := s.store.UpdateBlockContent(ctx, blockID, snapshot, nil)
	if err != nil {
		st.SetCursor(before)
		return store.Block{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, updated)
	}
	s.indexBlock(ctx, updated)
	return updated, nil
}

// --- table operations ---

// TableOpInput carries the parameters of a structural table edit; the
// op decides which fields matter.
type TableOpInput struct {
	Index int    `json:"index"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Value string `json:"value"`
	Width int    `json:"width"`
}

func (s *Service) ApplyTableOp(ctx context.Context, blockID, op string, input TableOpInput) (store.Block, error) {
	blk, content, err := s.tableContent(ctx, blockID)
	if err != nil {
		return store.Block{}, err
	}

	switch op {
	case "add-row":
		table.AddRow(content)
	case "insert-row":
		err = table.InsertRow(content, input.Index)
	case "delete-row":
		err = table.DeleteRow(content, input.Index)
	case "add-column":
		table.AddColumn(content)
	case "delete-column":
		err = table.DeleteColumn(content, input.Index)
	case "set-cell":
		err = table.SetCell(content, input.Row, input.Col, input.Value)
	case "set-column-width":
		err = table.SetColumnWidth(content, input.Col, input.Width)
	default:
		return store.Block{}, domainError(http.StatusUnprocessableEntity, "UNKNOWN_TABLE_OP", fmt.Sprintf("unknown table operation %q", op), nil)
	}
	if err != nil {
		return store.Block{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return store.Block{}, fmt.Errorf("marshal table content: %w", err)
	}
	if block.IsTempID(blockID) {
		blk.Content = raw
		return blk, nil
	}
	return s.saveContent(ctx, blk, raw)
}

func (s *Service) TableViewOf(ctx context.Context, blockID string) (table.TableView, error) {
	_, content, err := s.tableContent(ctx, blockID)
	if err != nil {
		return table.TableView{}, err
	}
	return table.ComputeView(content), nil
}

func (s *Service) tableContent(ctx context.Context, blockID string) (store.Block, *block.TableContent, error) {
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return store.Block{}, nil, err
	}
	if block.Type(blk.Type) != block.TypeTable {
		return store.Block{}, nil, domainError(http.StatusUnprocessableEntity, "WRONG_BLOCK_TYPE", "block is not a table", nil)
	}
	var content block.TableContent
	if err := json.Unmarshal(blk.Content, &content); err != nil {
		return store.Block{}, nil, fmt.Errorf("decode table content: %w", err)
	}
	return blk, &content, nil
}

// saveContent is the common write path for server-computed edits:
// history push, store write, cache refresh, search reindex.
func (s *Service) saveContent(ctx context.Context, blk store.Block, content json.RawMessage) (store.Block, error) {
	s.persister.CloseBlock(blk.ID)
	updated, err := s.store.UpdateBlockContent(ctx, blk.ID, content, nil)
	if err != nil {
		return store.Block{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, updated)
	}
	s.stackFor(blk.ID, blk.Content).Push(updated.Content)
	s.indexBlock(ctx, updated)
	return updated, nil
}

// --- tasks and board ---

// TaskPatch is a partial task update; nil fields are left untouched.
type TaskPatch struct {
	Text        *string   `json:"text"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Assignees   *[]string `json:"assignees"`
	DueDate     *string   `json:"dueDate"`
	Tags        *[]string `json:"tags"`
	Description *string   `json:"description"`
}

func (s *Service) CreateTask(ctx context.Context, blockID, text string) (block.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return block.Task{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "task text is required", nil)
	}
	task := block.Task{Text: text, Status: board.StatusTodo}
	if block.IsTempID(blockID) {
		task.ID = util.NewID("temp-task")
		return task, nil
	}

	blk, content, err := s.taskContent(ctx, blockID)
	if err != nil {
		return block.Task{}, err
	}
	task.ID = util.NewID("task")
	if err := s.store.InsertTask(ctx, blockID, task); err != nil {
		return block.Task{}, err
	}
	status := task.Status
	if err := s.store.UpsertProperties(ctx, "task", task.ID, store.PropertyUpdates{Status: &status}); err != nil {
		return block.Task{}, err
	}

	content.Order = append(content.Order, task.ID)
	raw, err := json.Marshal(content)
	if err != nil {
		return block.Task{}, fmt.Errorf("marshal task content: %w", err)
	}
	if _, err := s.saveContent(ctx, blk, raw); err != nil {
		return block.Task{}, err
	}
	s.indexTask(ctx, blk, task)
	return task, nil
}

func (s *Service) UpdateTask(ctx context.Context, blockID, taskID string, patch TaskPatch) (block.Task, error) {
	if block.IsTempID(blockID) || block.IsTempID(taskID) {
		return block.Task{ID: taskID}, nil
	}
	task, err := s.store.GetTask(ctx, blockID, taskID)
	if err != nil {
		return block.Task{}, err
	}
	applyTaskPatch(&task, patch)
	if strings.TrimSpace(task.Text) == "" {
		return block.Task{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "task text is required", nil)
	}
	if err := s.store.UpdateTask(ctx, blockID, task); err != nil {
		return block.Task{}, err
	}
	// Board-relevant fields are mirrored into the universal-properties
	// record, which is authoritative for grouping.
	updates := store.PropertyUpdates{
		Status:   patch.Status,
		Priority: patch.Priority,
		DueDate:  patch.DueDate,
		Tags:     patch.Tags,
	}
	if patch.Assignees != nil {
		assignee := ""
		if len(*patch.Assignees) > 0 {
			assignee = (*patch.Assignees)[0]
		}
		updates.AssigneeID = &assignee
	}
	if updates != (store.PropertyUpdates{}) {
		if err := s.store.UpsertProperties(ctx, "task", taskID, updates); err != nil {
			return block.Task{}, err
		}
	}
	if blk, err := s.GetBlock(ctx, blockID); err == nil {
		s.indexTask(ctx, blk, task)
	}
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, blockID, taskID string) error {
	if block.IsTempID(blockID) || block.IsTempID(taskID) {
		return nil
	}
	if err := s.store.DeleteTask(ctx, blockID, taskID); err != nil {
		return err
	}
	blk, content, err := s.taskContent(ctx, blockID)
	if err == nil {
		kept := content.Order[:0]
		for _, id := range content.Order {
			if id != taskID {
				kept = append(kept, id)
			}
		}
		content.Order = kept
		if raw, marshalErr := json.Marshal(content); marshalErr == nil {
			_, _ = s.saveContent(ctx, blk, raw)
		}
	}
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	return nil
}

func (s *Service) ReorderTasks(ctx context.Context, blockID string, order []string) (map[string]any, error) {
	if block.IsTempID(blockID) {
		return map[string]any{"order": order}, nil
	}
	blk, content, err := s.taskContent(ctx, blockID)
	if err != nil {
		return nil, err
	}
	content.Order = order
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal task content: %w", err)
	}
	if _, err := s.saveContent(ctx, blk, raw); err != nil {
		return nil, err
	}
	return map[string]any{"order": order}, nil
}

// Board returns the grouped column view for a task block. Derived
// groupings are recomputed per request.
func (s *Service) Board(ctx context.Context, blockID, groupBy string) (map[string]any, error) {
	if groupBy == "" {
		groupBy = "status"
	}
	if _, ok := allowedGroupBy[groupBy]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown groupBy %q", groupBy), nil)
	}
	tasks, records, order, err := s.boardState(ctx, blockID)
	if err != nil {
		return nil, err
	}
	columns := board.Group(tasks, records, order, groupBy, time.Now())
	return map[string]any{"groupBy": groupBy, "columns": columns}, nil
}

// BoardMove applies one drag/drop: reorder within the flat order plus,
// for a cross-column move, the property mutation the target column
// implies.
func (s *Service) BoardMove(ctx context.Context, blockID string, drop board.Drop) (map[string]any, error) {
	if drop.GroupBy == "" {
		drop.GroupBy = "status"
	}
	if _, ok := allowedGroupBy[drop.GroupBy]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown groupBy %q", drop.GroupBy), nil)
	}
	tasks, records, order, err := s.boardState(ctx, blockID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	columns := board.Group(tasks, records, order, drop.GroupBy, now)
	result, err := board.ApplyDrop(order, columns, drop, now)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_DROP", err.Error(), nil)
	}

	blk, content, err := s.taskContent(ctx, blockID)
	if err != nil {
		return nil, err
	}
	content.Order = result.Order
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal task content: %w", err)
	}
	if _, err := s.saveContent(ctx, blk, raw); err != nil {
		return nil, err
	}

	if result.Mutation != nil && !block.IsTempID(drop.TaskID) {
		updates := dropUpdates(drop.GroupBy, result)
		if err := s.store.UpsertProperties(ctx, "task", drop.TaskID, updates); err != nil {
			return nil, err
		}
	}

	tasks, records, order, err = s.boardState(ctx, blockID)
	if err != nil {
		return nil, err
	}
	columns = board.Group(tasks, records, order, drop.GroupBy, now)
	return map[string]any{"groupBy": drop.GroupBy, "order": result.Order, "columns": columns}, nil
}

func dropUpdates(groupBy string, result board.DropResult) store.PropertyUpdates {
	m := result.Mutation
	var updates store.PropertyUpdates
	switch groupBy {
	case "status":
		updates.Status = &m.Status
	case "priority":
		updates.Priority = &m.Priority
	case "assignee":
		updates.AssigneeID = &m.AssigneeID
	case "tags":
		tags := m.Tags
		if tags == nil {
			tags = []string{}
		}
		updates.Tags = &tags
	case "dueDate":
		due := m.DueDate
		if result.ClearDueDate {
			due = ""
		}
		updates.DueDate = &due
	}
	return updates
}

func (s *Service) boardState(ctx context.Context, blockID string) ([]block.Task, map[string]block.Properties, []string, error) {
	_, content, err := s.taskContent(ctx, blockID)
	if err != nil {
		return nil, nil, nil, err
	}
	tasks, err := s.store.ListTasks(ctx, blockID)
	if err != nil {
		return nil, nil, nil, err
	}
	records, err := s.store.ListTaskProperties(ctx, blockID)
	if err != nil {
		return nil, nil, nil, err
	}
	return tasks, records, content.Order, nil
}

func (s *Service) taskContent(ctx context.Context, blockID string) (store.Block, *block.TaskContent, error) {
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return store.Block{}, nil, err
	}
	if block.Type(blk.Type) != block.TypeTasks {
		return store.Block{}, nil, domainError(http.StatusUnprocessableEntity, "WRONG_BLOCK_TYPE", "block is not a task list", nil)
	}
	var content block.TaskContent
	if err := json.Unmarshal(blk.Content, &content); err != nil {
		return store.Block{}, nil, fmt.Errorf("decode task content: %w", err)
	}
	if content.Order == nil {
		content.Order = []string{}
	}
	return blk, &content, nil
}

// --- properties ---

var allowedEntityTypes = map[string]struct{}{
	"task":  {},
	"block": {},
}

func (s *Service) UpsertEntityProperties(ctx context.Context, entityType, entityID string, updates store.PropertyUpdates) (block.Properties, error) {
	if _, ok := allowedEntityTypes[entityType]; !ok {
		return block.Properties{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown entity type %q", entityType), nil)
	}
	if block.IsTempID(entityID) {
		return block.Properties{}, nil
	}
	if err := s.store.UpsertProperties(ctx, entityType, entityID, updates); err != nil {
		return block.Properties{}, err
	}
	return s.store.GetProperties(ctx, entityType, entityID)
}

// --- timeline ---

func (s *Service) Timeline(ctx context.Context, blockID string) (map[string]any, error) {
	_, content, err := s.timelineContent(ctx, blockID)
	if err != nil {
		return nil, err
	}
	schedule, err := timeline.Compute(content)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "DEPENDENCY_CYCLE", err.Error(), nil)
	}
	return map[string]any{"content": content, "schedule": schedule}, nil
}

func (s *Service) AutoSchedule(ctx context.Context, blockID string) (map[string]any, error) {
	blk, content, err := s.timelineContent(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if err := timeline.AutoSchedule(content); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "DEPENDENCY_CYCLE", err.Error(), nil)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal timeline content: %w", err)
	}
	if !block.IsTempID(blockID) {
		if _, err := s.saveContent(ctx, blk, raw); err != nil {
			return nil, err
		}
	}
	schedule, err := timeline.Compute(content)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "DEPENDENCY_CYCLE", err.Error(), nil)
	}
	return map[string]any{"content": content, "schedule": schedule}, nil
}

func (s *Service) timelineContent(ctx context.Context, blockID string) (store.Block, *block.TimelineContent, error) {
	blk, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return store.Block{}, nil, err
	}
	if block.Type(blk.Type) != block.TypeTimeline {
		return store.Block{}, nil, domainError(http.StatusUnprocessableEntity, "WRONG_BLOCK_TYPE", "block is not a timeline", nil)
	}
	var content block.TimelineContent
	if err := json.Unmarshal(blk.Content, &content); err != nil {
		return store.Block{}, nil, fmt.Errorf("decode timeline content: %w", err)
	}
	return blk, &content, nil
}

// --- files ---

func (s *Service) AttachFile(ctx context.Context, blockID, name, contentType string, size int64, r io.Reader) (store.FileRecord, error) {
	if s.files == nil {
		return store.FileRecord{}, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "object storage not configured", nil)
	}
	if block.IsTempID(blockID) {
		return store.FileRecord{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "save the block before attaching files", nil)
	}
	if _, err := s.store.GetBlock(ctx, blockID); err != nil {
		return store.FileRecord{}, err
	}
	return s.files.Attach(ctx, blockID, name, contentType, size, r)
}

func (s *Service) ListFiles(ctx context.Context, blockID string) ([]store.FileRecord, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "object storage not configured", nil)
	}
	return s.files.List(ctx, blockID)
}

func (s *Service) FileURL(ctx context.Context, fileID string) (map[string]any, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "object storage not configured", nil)
	}
	url, err := s.files.SignedURL(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

func (s *Service) DetachFile(ctx context.Context, blockID, fileID string) error {
	if s.files == nil {
		return domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "object storage not configured", nil)
	}
	return s.files.Detach(ctx, blockID, fileID)
}

// --- search ---

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "query text is required", nil)
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) indexBlock(ctx context.Context, blk store.Block) {
	if s.search == nil {
		return
	}
	tab, err := s.store.GetTab(ctx, blk.TabID)
	if err != nil {
		return
	}
	s.search.IndexBlock(search.BlockRecord{
		ID:        blk.ID,
		TabID:     blk.TabID,
		ProjectID: tab.ProjectID,
		BlockType: blk.Type,
		Title:     contentTitle(blk.Content),
		Text:      flattenText(blk.Content),
	})
}

func (s *Service) indexTask(ctx context.Context, blk store.Block, task block.Task) {
	if s.search == nil {
		return
	}
	tab, err := s.store.GetTab(ctx, blk.TabID)
	if err != nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:        task.ID,
		BlockID:   blk.ID,
		TabID:     blk.TabID,
		ProjectID: tab.ProjectID,
		Text:      task.Text,
		Status:    task.Status,
	})
}

// --- revisions ---

func (s *Service) CommitRevision(ctx context.Context, tabID, author, message string) (revlog.Revision, error) {
	if s.revisions == nil {
		return revlog.Revision{}, domainError(http.StatusServiceUnavailable, "REVISIONS_UNAVAILABLE", "revision log not configured", nil)
	}
	snapshot, err := s.tabSnapshot(ctx, tabID)
	if err != nil {
		return revlog.Revision{}, err
	}
	return s.revisions.Commit(tabID, snapshot, author, message)
}

func (s *Service) ListRevisions(ctx context.Context, tabID string, limit int) ([]revlog.Revision, error) {
	if s.revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REVISIONS_UNAVAILABLE", "revision log not configured", nil)
	}
	if _, err := s.store.GetTab(ctx, tabID); err != nil {
		return nil, err
	}
	return s.revisions.History(tabID, limit)
}

func (s *Service) GetRevision(ctx context.Context, tabID, hash string) (revlog.Snapshot, error) {
	if s.revisions == nil {
		return revlog.Snapshot{}, domainError(http.StatusServiceUnavailable, "REVISIONS_UNAVAILABLE", "revision log not configured", nil)
	}
	return s.revisions.GetSnapshot(tabID, hash)
}

// RestoreRevision replaces the tab's blocks with the snapshot at hash,
// then records the restore itself as a new revision.
func (s *Service) RestoreRevision(ctx context.Context, tabID, hash, author string) ([]store.Block, error) {
	if s.revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REVISIONS_UNAVAILABLE", "revision log not configured", nil)
	}
	snapshot, err := s.revisions.GetSnapshot(tabID, hash)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListBlocks(ctx, tabID)
	if err != nil {
		return nil, err
	}
	existingByID := make(map[string]store.Block, len(existing))
	for _, b := range existing {
		existingByID[b.ID] = b
	}

	order := make([]string, 0, len(snapshot.Blocks))
	inSnapshot := make(map[string]bool, len(snapshot.Blocks))
	for i, b := range snapshot.Blocks {
		inSnapshot[b.ID] = true
		order = append(order, b.ID)
		if _, ok := existingByID[b.ID]; ok {
			if _, err := s.store.UpdateBlockContent(ctx, b.ID, b.Content, nil); err != nil {
				return nil, err
			}
		} else {
			item := b
			item.TabID = tabID
			item.SortOrder = i
			item.Version = 1
			if err := s.store.InsertBlock(ctx, item); err != nil {
				return nil, err
			}
		}
		s.persister.CloseBlock(b.ID)
		s.dropHistory(b.ID)
		if s.cache != nil {
			s.cache.Invalidate(ctx, b.ID)
		}
	}
	for _, b := range existing {
		if !inSnapshot[b.ID] {
			if err := s.DeleteBlock(ctx, b.ID); err != nil {
				return nil, err
			}
		}
	}
	if err := s.store.ReorderBlocks(ctx, tabID, order); err != nil {
		return nil, err
	}

	if _, err := s.CommitRevision(ctx, tabID, author, "Restore "+hash); err != nil {
		return nil, err
	}
	return s.ListBlocks(ctx, tabID)
}

func (s *Service) tabSnapshot(ctx context.Context, tabID string) (revlog.Snapshot, error) {
	tab, err := s.store.GetTab(ctx, tabID)
	if err != nil {
		return revlog.Snapshot{}, err
	}
	blocks, err := s.ListBlocks(ctx, tabID)
	if err != nil {
		return revlog.Snapshot{}, err
	}
	return revlog.Snapshot{Tab: tab, Blocks: blocks}, nil
}

// --- export ---

func (s *Service) ExportTab(ctx context.Context, tabID string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export not configured", nil)
	}
	switch format {
	case export.FormatHTML, export.FormatPDF, export.FormatDOCX:
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'html', 'pdf' or 'docx'", nil)
	}
	return s.exporter.Export(ctx, export.Request{TabID: tabID, Format: format})
}

// --- helpers ---

func applyTaskPatch(task *block.Task, patch TaskPatch) {
	if patch.Text != nil {
		task.Text = strings.TrimSpace(*patch.Text)
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Assignees != nil {
		task.Assignees = *patch.Assignees
	}
	if patch.DueDate != nil {
		task.DueDate = *patch.DueDate
	}
	if patch.Tags != nil {
		task.Tags = *patch.Tags
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
}

func contentTitle(raw json.RawMessage) string {
	var doc struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return doc.Title
}

// flattenText collects every string value in the content document, in
// deterministic key order, capped for the index.
func flattenText(raw json.RawMessage) string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var parts []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				parts = append(parts, t)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(doc)
	joined := strings.Join(parts, " ")
	if len(joined) > 2000 {
		joined = joined[:2000]
	}
	return joined
}
