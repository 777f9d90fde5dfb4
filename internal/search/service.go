package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBlock indexes a block (fire-and-forget to Meilisearch).
func (s *Service) IndexBlock(rec BlockRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexBlock(rec); err != nil {
			log.Printf("search: index block %s: %v", rec.ID, err)
		}
	}()
}

// IndexTask indexes a task (fire-and-forget to Meilisearch).
func (s *Service) IndexTask(rec TaskRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTask(rec); err != nil {
			log.Printf("search: index task %s: %v", rec.ID, err)
		}
	}()
}

// DeleteBlock removes a block from the search index (fire-and-forget).
func (s *Service) DeleteBlock(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBlock(id); err != nil {
			log.Printf("search: delete block %s: %v", id, err)
		}
	}()
}

// DeleteTask removes a task from the search index (fire-and-forget).
func (s *Service) DeleteTask(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTask(id); err != nil {
			log.Printf("search: delete task %s: %v", id, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
