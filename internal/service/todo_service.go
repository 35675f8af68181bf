package service

import (
	"context"
	"errors"
	"fmt"

	dom "github.com/kmc-jp/minweb-todo/internal/domain"
	"github.com/kmc-jp/minweb-todo/internal/repo"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"

	"github.com/kmc-jp/minweb-todo/internal/cache"
)

var ErrNotFound = errors.New("todo not found")

// notFound wraps ErrNotFound with the offending id.
func notFound(id int64) error {
	return fmt.Errorf("%w: id=%d", ErrNotFound, id)
}

type TodoService struct {
	repo  repo.TodoRepo
	cache *cache.TodoCache
	sf    singleflight.Group
}

// NewTodoService creates a TodoService. If c is nil, caching is disabled.
func NewTodoService(r repo.TodoRepo, c *cache.TodoCache) *TodoService {
	return &TodoService{repo: r, cache: c}
}

func (s *TodoService) List(ctx context.Context) ([]dom.Todo, error) {
	if s.cache != nil {
		v, err, _ := s.sf.Do("list", func() (interface{}, error) {
			if list, err := s.cache.GetList(ctx); err == nil && list != nil {
				return list, nil
			}
			list, err := s.repo.List(ctx)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetList(ctx, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Todo), nil
	}
	return s.repo.List(ctx)
}

// GetByID returns the todo or ErrNotFound. The use-case contract is
// "the id must exist"; only the port treats absence as an optional.
func (s *TodoService) GetByID(ctx context.Context, id int64) (dom.Todo, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, notFound(id)
		}
		return dom.Todo{}, err
	}
	return t, nil
}

// Create validates the title and persists it as submitted (untrimmed).
func (s *TodoService) Create(ctx context.Context, title string) (dom.Todo, error) {
	if err := dom.ValidateTitle(title); err != nil {
		return dom.Todo{}, err
	}
	t, err := s.repo.Create(ctx, title)
	if err != nil {
		return dom.Todo{}, err
	}
	s.invalidateCache(ctx)
	return t, nil
}

// Update checks existence first so update, complete and delete all fail
// with the same ErrNotFound, then applies the patch. The port's update
// is a single conditional statement, so a row deleted between the check
// and the write still comes back as ErrNotFound.
func (s *TodoService) Update(ctx context.Context, id int64, patch dom.TodoPatch) (dom.Todo, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, notFound(id)
		}
		return dom.Todo{}, err
	}
	if patch.Title != nil {
		if err := dom.ValidateTitle(*patch.Title); err != nil {
			return dom.Todo{}, err
		}
	}
	t, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Todo{}, notFound(id)
		}
		return dom.Todo{}, err
	}
	s.invalidateCache(ctx)
	return t, nil
}

// Complete marks the todo done. Sugar over Update, and idempotent:
// completing a completed todo succeeds and refreshes updated_at.
func (s *TodoService) Complete(ctx context.Context, id int64) (dom.Todo, error) {
	done := true
	return s.Update(ctx, id, dom.TodoPatch{Completed: &done})
}

func (s *TodoService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(id)
		}
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		// Row vanished between the existence check and the delete.
		return notFound(id)
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *TodoService) invalidateCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx)
	}
}
