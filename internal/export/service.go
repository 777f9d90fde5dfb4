package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"tessera/api/internal/block"
	"tessera/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetTab(ctx context.Context, id string) (store.Tab, error)
	GetProject(ctx context.Context, id string) (store.Project, error)
	ListBlocks(ctx context.Context, tabID string) ([]store.Block, error)
	ListTasks(ctx context.Context, blockID string) ([]block.Task, error)
}

// Service provides tab export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders the tab's blocks and generates output in the requested
// format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	tab, err := s.store.GetTab(ctx, req.TabID)
	if err != nil {
		return nil, fmt.Errorf("get tab: %w", err)
	}
	project, err := s.store.GetProject(ctx, tab.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	blocks, err := s.store.ListBlocks(ctx, req.TabID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	rendered := make([]renderBlock, 0, len(blocks))
	for _, b := range blocks {
		rb := renderBlock{Type: block.Type(b.Type), Content: b.Content}
		// Tasks live in their own table, not in the content document.
		if rb.Type == block.TypeTasks {
			tasks, err := s.store.ListTasks(ctx, b.ID)
			if err != nil {
				return nil, fmt.Errorf("list tasks: %w", err)
			}
			rb.Tasks = tasks
		}
		rendered = append(rendered, rb)
	}

	html, err := RenderTabHTML(TemplateData{
		Title:       tab.Name,
		ProjectName: project.Name,
		ContentHTML: template.HTML(BlocksToHTML(rendered)),
		ExportedAt:  time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(tab.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, tab.Name)
	case FormatDOCX:
		return exportDOCX(html, tab.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
