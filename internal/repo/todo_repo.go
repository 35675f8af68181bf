package repo

import (
	"context"

	dom "github.com/kmc-jp/minweb-todo/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TodoRepo is the persistence port the service depends on. GetByID
// reports absence as pgx.ErrNoRows; the not-found policy lives in the
// service layer.
type TodoRepo interface {
	List(ctx context.Context) ([]dom.Todo, error)
	GetByID(ctx context.Context, id int64) (dom.Todo, error)
	Create(ctx context.Context, title string) (dom.Todo, error)
	Update(ctx context.Context, id int64, patch dom.TodoPatch) (dom.Todo, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type PGTodoRepo struct {
	db *pgxpool.Pool
}

func NewPGTodoRepo(db *pgxpool.Pool) *PGTodoRepo {
	return &PGTodoRepo{db: db}
}

func (r *PGTodoRepo) List(ctx context.Context) ([]dom.Todo, error) {
	query := `
		SELECT id, title, completed, created_at, updated_at
		FROM todos ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []dom.Todo
	for rows.Next() {
		var t dom.Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *PGTodoRepo) GetByID(ctx context.Context, id int64) (dom.Todo, error) {
	query := `
		SELECT id, title, completed, created_at, updated_at
		FROM todos WHERE id = $1`
	var t dom.Todo
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// Create inserts the row and re-reads it so the returned timestamps are
// the engine's, not the application clock's.
func (r *PGTodoRepo) Create(ctx context.Context, title string) (dom.Todo, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO todos (title) VALUES ($1) RETURNING id`, title,
	).Scan(&id)
	if err != nil {
		return dom.Todo{}, err
	}
	return r.GetByID(ctx, id)
}

// Update applies only the supplied fields in one conditional statement,
// so a row deleted concurrently yields pgx.ErrNoRows rather than a
// write against a stale existence check.
func (r *PGTodoRepo) Update(ctx context.Context, id int64, patch dom.TodoPatch) (dom.Todo, error) {
	if patch.Empty() {
		return dom.Todo{}, dom.ErrNoFields
	}
	query := `
		UPDATE todos
		SET title = COALESCE($2, title),
		    completed = COALESCE($3, completed),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, title, completed, created_at, updated_at`
	var t dom.Todo
	err := r.db.QueryRow(ctx, query, id, patch.Title, patch.Completed).Scan(
		&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// Delete hard-removes the row and reports whether anything matched.
func (r *PGTodoRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
