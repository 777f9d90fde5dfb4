package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgSearch is the fallback backend: ILIKE scans over block content and
// task text. Good enough for small workspaces when Meilisearch is down.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + q.Text + "%"

	results := make([]Result, 0)

	if q.FilterType == "" || q.FilterType == ResultBlock {
		rows, err := p.db.QueryContext(ctx, `
			SELECT b.id, b.tab_id, t.project_id, b.type,
			       COALESCE(b.content->>'title', ''),
			       LEFT(b.content::text, 200)
			FROM blocks b
			JOIN tabs t ON t.id = b.tab_id
			WHERE b.content::text ILIKE $1
			  AND ($2 = '' OR t.project_id = $2)
			ORDER BY b.updated_at DESC
			LIMIT $3 OFFSET $4
		`, pattern, q.FilterProjectID, limit, q.Offset)
		if err != nil {
			return nil, 0, fmt.Errorf("search blocks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			r := Result{Type: ResultBlock}
			if err := rows.Scan(&r.ID, &r.TabID, &r.ProjectID, &r.BlockType, &r.Title, &r.Snippet); err != nil {
				return nil, 0, fmt.Errorf("scan block hit: %w", err)
			}
			r.BlockID = r.ID
			results = append(results, r)
		}
		if err := rows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate block hits: %w", err)
		}
	}

	if q.FilterType == "" || q.FilterType == ResultTask {
		rows, err := p.db.QueryContext(ctx, `
			SELECT k.id, k.block_id, b.tab_id, t.project_id,
			       COALESCE(k.data->>'text', '')
			FROM tasks k
			JOIN blocks b ON b.id = k.block_id
			JOIN tabs t ON t.id = b.tab_id
			WHERE k.data->>'text' ILIKE $1
			  AND ($2 = '' OR t.project_id = $2)
			ORDER BY k.updated_at DESC
			LIMIT $3 OFFSET $4
		`, pattern, q.FilterProjectID, limit, q.Offset)
		if err != nil {
			return nil, 0, fmt.Errorf("search tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			r := Result{Type: ResultTask}
			if err := rows.Scan(&r.ID, &r.BlockID, &r.TabID, &r.ProjectID, &r.Snippet); err != nil {
				return nil, 0, fmt.Errorf("scan task hit: %w", err)
			}
			results = append(results, r)
		}
		if err := rows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate task hits: %w", err)
		}
	}

	return results, len(results), nil
}
