package table

import (
	"context"
	"sort"
	"sync"

	"ForceView/internal/backend"
	"ForceView/internal/filter"
	"ForceView/internal/model"
)

// SortKey extracts the numeric value a local table sorts on.
type SortKey[T any] func(row T, sc *model.Subcase) float64

// LocalSource sorts, filters and paginates a cached all-rows array.
type LocalSource[T any] struct {
	load func(ctx context.Context) ([]T, error)
	id   func(T) int
	keys map[string]SortKey[T]

	mu     sync.Mutex
	loaded bool
	rows   []T
}

func NewLocalSource[T any](load func(ctx context.Context) ([]T, error), id func(T) int, keys map[string]SortKey[T]) *LocalSource[T] {
	return &LocalSource[T]{load: load, id: id, keys: keys}
}

// Invalidate drops the cached rows so the next call reloads them.
func (s *LocalSource[T]) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.rows = nil
	s.mu.Unlock()
}

func (s *LocalSource[T]) all(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.rows, nil
	}
	rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.rows = rows
	s.loaded = true
	return s.rows, nil
}

func (s *LocalSource[T]) filtered(ctx context.Context, tokens []string) ([]T, error) {
	rows, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return rows, nil
	}
	want, err := filter.Spans(tokens)
	if err != nil {
		backend.Report(ctx, "Invalid filter: "+err.Error())
		return nil, err
	}
	out := []T{}
	for _, r := range rows {
		if want.Contains(s.id(r)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *LocalSource[T]) Count(ctx context.Context, ids []string) (int, error) {
	rows, err := s.filtered(ctx, ids)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *LocalSource[T]) Fetch(ctx context.Context, q Query) ([]T, error) {
	rows, err := s.filtered(ctx, q.IDs)
	if err != nil {
		return nil, err
	}
	sorted := make([]T, len(rows))
	copy(sorted, rows)
	if key, ok := s.keys[q.Sort.Column]; ok {
		dir := float64(q.Sort.Direction.normalize())
		sort.SliceStable(sorted, func(i, j int) bool {
			return (key(sorted[i], q.Subcase)-key(sorted[j], q.Subcase))*dir < 0
		})
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start >= len(sorted) {
		return []T{}, nil
	}
	end := start + PageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[start:end], nil
}
