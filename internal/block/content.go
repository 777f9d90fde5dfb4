// Package block defines the typed content shapes layered on top of a
// block's free-form JSON content document.
package block

import (
	"encoding/json"
	"strings"
)

// Type selects which content shape and renderer applies to a block.
type Type string

const (
	TypeText     Type = "text"
	TypeTasks    Type = "tasks"
	TypeTable    Type = "table"
	TypeTimeline Type = "timeline"
	TypeFile     Type = "file"
	TypeImage    Type = "image"
	TypeEmbed    Type = "embed"
	TypeShopify  Type = "shopify"
)

// IsTempID reports whether an id denotes an unsaved, client-only entity.
// Operations addressed to temp ids never touch the store.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, "temp-")
}

// variant describes one block type: how to build its default content and
// whether the server understands its content shape beyond raw JSON.
type variant struct {
	defaultContent func() any
	structured     bool
}

// registry is the single dispatch point over block types. Adding a block
// type means adding one entry here.
var registry = map[Type]variant{
	TypeText:     {defaultContent: func() any { return map[string]any{"text": ""} }},
	TypeTasks:    {defaultContent: func() any { return &TaskContent{Order: []string{}} }, structured: true},
	TypeTable:    {defaultContent: func() any { return DefaultTable() }, structured: true},
	TypeTimeline: {defaultContent: func() any { return &TimelineContent{Events: []TimelineEvent{}, Dependencies: []Dependency{}} }, structured: true},
	TypeFile:     {defaultContent: func() any { return map[string]any{"fileIds": []string{}} }},
	TypeImage:    {defaultContent: func() any { return map[string]any{"url": "", "caption": ""} }},
	TypeEmbed:    {defaultContent: func() any { return map[string]any{"url": ""} }},
	TypeShopify:  {defaultContent: func() any { return map[string]any{} }},
}

// KnownType reports whether t is a supported block type.
func KnownType(t Type) bool {
	_, ok := registry[t]
	return ok
}

// DefaultContent returns the initial content document for a new block of
// type t, marshaled to JSON. Unknown types get an empty object.
func DefaultContent(t Type) json.RawMessage {
	v, ok := registry[t]
	if !ok {
		return json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(v.defaultContent())
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// TableContent is the content document of a table block. Cells is
// row-major and includes the header row at index 0.
type TableContent struct {
	Title        string         `json:"title"`
	Rows         int            `json:"rows"`
	Cols         int            `json:"cols"`
	Cells        [][]string     `json:"cells"`
	ColumnWidths []int          `json:"columnWidths"`
	Columns      []ColumnConfig `json:"columns"`
	Filters      []Filter       `json:"filters"`
	Sort         *SortSpec      `json:"sort"`
}

// ColumnConfig describes cell semantics for one table column.
type ColumnConfig struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"` // text, number, date, checkbox, select
	Options []string `json:"options,omitempty"`
	Formula string   `json:"formula,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// Filter is one per-column predicate; all filters on a table are ANDed.
type Filter struct {
	Column   int    `json:"column"`
	Operator string `json:"operator"` // contains, equals, greater, less
	Value    string `json:"value"`
}

type SortSpec struct {
	Column    int    `json:"column"`
	Direction string `json:"direction"` // asc, desc
}

const (
	DefaultTableRows   = 3
	DefaultTableCols   = 3
	DefaultColumnWidth = 160
	defaultColumnType  = "text"
	columnNamePrefix   = "Column "
)

// DefaultTable returns a new 3x3 table with empty cells and text columns.
func DefaultTable() *TableContent {
	t := &TableContent{
		Rows:    DefaultTableRows,
		Cols:    DefaultTableCols,
		Filters: []Filter{},
	}
	Normalize(t)
	return t
}

// TaskContent is the content document of a task-list block. Order is the
// flat, authoritative ordering of task ids across all board columns.
type TaskContent struct {
	Title string   `json:"title"`
	Order []string `json:"order"`
}

// Task carries the legacy inline fields kept for backward compatibility
// and for temp tasks that have no universal-properties record yet.
type Task struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Status      string      `json:"status"`
	Priority    string      `json:"priority,omitempty"`
	Assignees   []string    `json:"assignees,omitempty"`
	DueDate     string      `json:"dueDate,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Description string      `json:"description,omitempty"`
	Subtasks    []Subtask   `json:"subtasks,omitempty"`
	Comments    []Comment   `json:"comments,omitempty"`
	Recurring   *Recurrence `json:"recurring,omitempty"`
}

type Subtask struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

type Recurrence struct {
	Frequency string `json:"frequency"` // daily, weekly, monthly
	Interval  int    `json:"interval"`
}

// Properties is the universal property record for a task, the
// authoritative source once the task is persisted.
type Properties struct {
	Status     string   `json:"status,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	AssigneeID string   `json:"assignee_id,omitempty"`
	DueDate    string   `json:"due_date,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// TimelineContent is the content document of a timeline block.
type TimelineContent struct {
	Title        string          `json:"title"`
	Events       []TimelineEvent `json:"events"`
	Dependencies []Dependency    `json:"dependencies"`
}

// TimelineEvent dates are ISO "2006-01-02" strings. A milestone has
// zero duration: Start == End.
type TimelineEvent struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Color         string `json:"color,omitempty"`
	Status        string `json:"status,omitempty"`
	Assignee      string `json:"assignee,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Progress      *int   `json:"progress,omitempty"`
	IsMilestone   bool   `json:"isMilestone,omitempty"`
	BaselineStart string `json:"baselineStart,omitempty"`
	BaselineEnd   string `json:"baselineEnd,omitempty"`
}

const (
	DepFinishToStart  = "finish-to-start"
	DepStartToStart   = "start-to-start"
	DepFinishToFinish = "finish-to-finish"
	DepStartToFinish  = "start-to-finish"
)

type Dependency struct {
	FromEventID string `json:"fromEventId"`
	ToEventID   string `json:"toEventId"`
	Type        string `json:"type"`
}
