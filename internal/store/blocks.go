package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

func (s *PostgresStore) ListBlocks(ctx context.Context, tabID string) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tab_id, type, content, sort_order, version, updated_at
		FROM blocks
		WHERE tab_id=$1
		ORDER BY sort_order, id
	`, tabID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	items := make([]Block, 0)
	for rows.Next() {
		var item Block
		if err := rows.Scan(&item.ID, &item.TabID, &item.Type, &item.Content, &item.SortOrder, &item.Version, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBlock(ctx context.Context, blockID string) (Block, error) {
	var item Block
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tab_id, type, content, sort_order, version, updated_at
		FROM blocks
		WHERE id=$1
	`, blockID).Scan(&item.ID, &item.TabID, &item.Type, &item.Content, &item.SortOrder, &item.Version, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Block{}, ErrNotFound
	}
	if err != nil {
		return Block{}, fmt.Errorf("get block: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertBlock(ctx context.Context, item Block) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (id, tab_id, type, content, sort_order)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.TabID, item.Type, item.Content, item.SortOrder)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// UpdateBlockContent is the whole-document replace. When expectedVersion
// is non-nil the write only lands if the stored version still matches;
// otherwise the caller gets ErrVersionConflict. A nil expectedVersion
// keeps the original last-write-wins behavior.
func (s *PostgresStore) UpdateBlockContent(ctx context.Context, blockID string, content json.RawMessage, expectedVersion *int64) (Block, error) {
	var item Block
	err := s.db.QueryRowContext(ctx, `
		UPDATE blocks
		SET content=$2, version=version+1, updated_at=NOW()
		WHERE id=$1 AND ($3::bigint IS NULL OR version=$3)
		RETURNING id, tab_id, type, content, sort_order, version, updated_at
	`, blockID, content, expectedVersion).Scan(&item.ID, &item.TabID, &item.Type, &item.Content, &item.SortOrder, &item.Version, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Not found or stale version; look at the block to tell which.
		if _, getErr := s.GetBlock(ctx, blockID); getErr == nil {
			return Block{}, ErrVersionConflict
		}
		return Block{}, ErrNotFound
	}
	if err != nil {
		return Block{}, fmt.Errorf("update block content: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, blockID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id=$1`, blockID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return requireRow(res)
}

// ReorderBlocks rewrites sort_order for the tab's blocks to match ids.
// Blocks not named keep their relative order after the named ones.
func (s *PostgresStore) ReorderBlocks(ctx context.Context, tabID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder tx: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE blocks SET sort_order=$3, updated_at=NOW() WHERE id=$1 AND tab_id=$2
		`, id, tabID, i); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reorder block %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}
