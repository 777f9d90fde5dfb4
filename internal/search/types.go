// Package search provides workspace search over blocks and tasks,
// backed by Meilisearch with a Postgres ILIKE fallback.
package search

type ResultType = string

const (
	ResultBlock ResultType = "block"
	ResultTask  ResultType = "task"
)

type Query struct {
	Text            string
	FilterType      ResultType
	FilterProjectID string
	Limit           int
	Offset          int
}

type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	BlockID   string     `json:"blockId"`
	TabID     string     `json:"tabId"`
	ProjectID string     `json:"projectId"`
	BlockType string     `json:"blockType,omitempty"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// BlockRecord is the indexed projection of a block: its title plus the
// flattened text of its content document.
type BlockRecord struct {
	ID        string `json:"id"`
	TabID     string `json:"tabId"`
	ProjectID string `json:"projectId"`
	BlockType string `json:"blockType"`
	Title     string `json:"title"`
	Text      string `json:"text"`
}

// TaskRecord is the indexed projection of one task item.
type TaskRecord struct {
	ID        string `json:"id"`
	BlockID   string `json:"blockId"`
	TabID     string `json:"tabId"`
	ProjectID string `json:"projectId"`
	Text      string `json:"text"`
	Status    string `json:"status"`
}
