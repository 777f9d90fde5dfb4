package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertFileRecord(ctx context.Context, item FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_records (id, block_id, name, object_key, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.BlockID, item.Name, item.ObjectKey, item.ContentType, item.Size)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBlockFiles(ctx context.Context, blockID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_id, name, object_key, content_type, size, created_at
		FROM file_records
		WHERE block_id=$1
		ORDER BY created_at, id
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list block files: %w", err)
	}
	defer rows.Close()

	items := make([]FileRecord, 0)
	for rows.Next() {
		var item FileRecord
		if err := rows.Scan(&item.ID, &item.BlockID, &item.Name, &item.ObjectKey, &item.ContentType, &item.Size, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFileRecord(ctx context.Context, fileID string) (FileRecord, error) {
	var item FileRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, block_id, name, object_key, content_type, size, created_at
		FROM file_records
		WHERE id=$1
	`, fileID).Scan(&item.ID, &item.BlockID, &item.Name, &item.ObjectKey, &item.ContentType, &item.Size, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("get file record: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteFileRecord(ctx context.Context, blockID, fileID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM file_records WHERE id=$1 AND block_id=$2
	`, fileID, blockID)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return requireRow(res)
}
