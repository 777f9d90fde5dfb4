package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tessera/api/internal/block"
)

func (s *PostgresStore) ListTasks(ctx context.Context, blockID string) ([]block.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM tasks WHERE block_id=$1 ORDER BY created_at, id
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]block.Task, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var task block.Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		items = append(items, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, blockID, taskID string) (block.Task, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM tasks WHERE id=$1 AND block_id=$2
	`, taskID, blockID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return block.Task{}, ErrNotFound
	}
	if err != nil {
		return block.Task{}, fmt.Errorf("get task: %w", err)
	}
	var task block.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return block.Task{}, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, blockID string, task block.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, block_id, data) VALUES ($1, $2, $3)
	`, task.ID, blockID, raw); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, blockID string, task block.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET data=$3, updated_at=NOW() WHERE id=$1 AND block_id=$2
	`, task.ID, blockID, raw)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, blockID, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE id=$1 AND block_id=$2
	`, taskID, blockID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res)
}

// GetProperties loads one universal-properties record. A missing record
// is ErrNotFound; callers fall back to the task's legacy inline fields.
func (s *PostgresStore) GetProperties(ctx context.Context, entityType, entityID string) (block.Properties, error) {
	var p block.Properties
	var tags []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT status, priority, assignee_id, due_date, tags
		FROM entity_properties
		WHERE entity_type=$1 AND entity_id=$2
	`, entityType, entityID).Scan(&p.Status, &p.Priority, &p.AssigneeID, &p.DueDate, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return block.Properties{}, ErrNotFound
	}
	if err != nil {
		return block.Properties{}, fmt.Errorf("get properties: %w", err)
	}
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return block.Properties{}, fmt.Errorf("decode tags: %w", err)
	}
	return p, nil
}

// ListTaskProperties loads every universal-properties record for the
// tasks of one block, keyed by task id.
func (s *PostgresStore) ListTaskProperties(ctx context.Context, blockID string) (map[string]block.Properties, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.entity_id, p.status, p.priority, p.assignee_id, p.due_date, p.tags
		FROM entity_properties p
		JOIN tasks t ON t.id = p.entity_id
		WHERE p.entity_type='task' AND t.block_id=$1
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list task properties: %w", err)
	}
	defer rows.Close()

	out := make(map[string]block.Properties)
	for rows.Next() {
		var id string
		var p block.Properties
		var tags []byte
		if err := rows.Scan(&id, &p.Status, &p.Priority, &p.AssigneeID, &p.DueDate, &tags); err != nil {
			return nil, fmt.Errorf("scan properties: %w", err)
		}
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		out[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return out, nil
}

// UpsertProperties applies a partial update to a universal-properties
// record, creating it if absent. Nil fields keep their stored value.
func (s *PostgresStore) UpsertProperties(ctx context.Context, entityType, entityID string, updates PropertyUpdates) error {
	var tags []byte
	if updates.Tags != nil {
		raw, err := json.Marshal(*updates.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		tags = raw
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_properties (entity_type, entity_id, status, priority, assignee_id, due_date, tags)
		VALUES ($1, $2, COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, ''), COALESCE($7::jsonb, '[]'::jsonb))
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			status      = COALESCE($3, entity_properties.status),
			priority    = COALESCE($4, entity_properties.priority),
			assignee_id = COALESCE($5, entity_properties.assignee_id),
			due_date    = COALESCE($6, entity_properties.due_date),
			tags        = COALESCE($7::jsonb, entity_properties.tags),
			updated_at  = NOW()
	`, entityType, entityID, updates.Status, updates.Priority, updates.AssigneeID, updates.DueDate, tags)
	if err != nil {
		return fmt.Errorf("upsert properties: %w", err)
	}
	return nil
}
