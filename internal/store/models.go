package store

import (
	"encoding/json"
	"time"
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Tab struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Block is one content unit on a tab. Content is the free-form JSON
// document whose shape depends on Type. Version increments on every
// content write and backs the optimistic-concurrency check.
type Block struct {
	ID        string          `json:"id"`
	TabID     string          `json:"tabId"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	SortOrder int             `json:"sortOrder"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// FileRecord is attachment metadata; the bytes live in object storage
// under ObjectKey.
type FileRecord struct {
	ID          string    `json:"id"`
	BlockID     string    `json:"blockId"`
	Name        string    `json:"name"`
	ObjectKey   string    `json:"objectKey"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PropertyUpdates is a partial upsert of a universal-properties record.
// Nil fields are left untouched.
type PropertyUpdates struct {
	Status     *string   `json:"status,omitempty"`
	Priority   *string   `json:"priority,omitempty"`
	AssigneeID *string   `json:"assignee_id,omitempty"`
	DueDate    *string   `json:"due_date,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
}

// SearchHit is one row of the Postgres fallback search.
type SearchHit struct {
	Kind      string    `json:"kind"` // block or task
	ID        string    `json:"id"`
	BlockID   string    `json:"blockId"`
	TabID     string    `json:"tabId"`
	ProjectID string    `json:"projectId"`
	BlockType string    `json:"blockType"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"updatedAt"`
}
