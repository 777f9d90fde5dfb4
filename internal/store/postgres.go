package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, sort_order, created_at, updated_at
		FROM projects
		ORDER BY sort_order, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, sort_order, created_at, updated_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.Description, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, sort_order)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Name, item.Description, item.SortOrder)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, name, description string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, projectID, name, description)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ListTabs(ctx context.Context, projectID string) ([]Tab, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, sort_order, created_at, updated_at
		FROM tabs
		WHERE project_id=$1
		ORDER BY sort_order, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	defer rows.Close()

	items := make([]Tab, 0)
	for rows.Next() {
		var item Tab
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Name, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tabs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTab(ctx context.Context, tabID string) (Tab, error) {
	var item Tab
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, sort_order, created_at, updated_at
		FROM tabs
		WHERE id=$1
	`, tabID).Scan(&item.ID, &item.ProjectID, &item.Name, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Tab{}, ErrNotFound
	}
	if err != nil {
		return Tab{}, fmt.Errorf("get tab: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertTab(ctx context.Context, item Tab) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tabs (id, project_id, name, sort_order)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.ProjectID, item.Name, item.SortOrder)
	if err != nil {
		return fmt.Errorf("insert tab: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTab(ctx context.Context, tabID, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tabs SET name=$2, updated_at=NOW() WHERE id=$1
	`, tabID, name)
	if err != nil {
		return fmt.Errorf("update tab: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteTab(ctx context.Context, tabID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tabs WHERE id=$1`, tabID)
	if err != nil {
		return fmt.Errorf("delete tab: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
