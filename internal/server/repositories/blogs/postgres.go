package blogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/dbx"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
)

const blogColumns = `id, title, slug, user_id, content, sources, status, views, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlog(row scanner) (*models.Blog, error) {
	b := &models.Blog{}
	var content, sources []byte
	err := row.Scan(&b.ID, &b.Title, &b.Slug, &b.UserID, &content, &sources,
		&b.Status, &b.Views, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	b.Content = json.RawMessage(content)
	if err := json.Unmarshal(sources, &b.Sources); err != nil {
		return nil, fmt.Errorf("decode sources of blog %d: %w", b.ID, err)
	}
	return b, nil
}

func encodeSources(sources []string) ([]byte, error) {
	if sources == nil {
		sources = []string{}
	}
	return json.Marshal(sources)
}

func (r *PostgresRepository) Create(ctx context.Context, blog *models.Blog) (*models.Blog, error) {
	sources, err := encodeSources(blog.Sources)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO blogs (title, slug, user_id, content, sources, status, views, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		 RETURNING id
		 `

	err = r.db.QueryRowContext(ctx, query,
		blog.Title, blog.Slug, blog.UserID, []byte(blog.Content), sources, blog.Status, blog.CreatedAt).Scan(&blog.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	blog.Views = 0
	blog.UpdatedAt = blog.CreatedAt
	return blog, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs WHERE id = $1`
	return scanBlog(r.db.QueryRowContext(ctx, query, id))
}

// GetBySlug returns the oldest post with the slug. Slugs derive from unique
// titles but are not unique themselves ("A b" and "a B" collide).
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*models.Blog, error) {
	query := `SELECT ` + blogColumns + ` FROM blogs WHERE slug = $1 ORDER BY id LIMIT 1`
	return scanBlog(r.db.QueryRowContext(ctx, query, slug))
}

func (r *PostgresRepository) Update(ctx context.Context, blog *models.Blog) (*models.Blog, error) {
	sources, err := encodeSources(blog.Sources)
	if err != nil {
		return nil, err
	}

	query :=
		`UPDATE blogs SET title = $2, slug = $3, content = $4, sources = $5, status = $6, updated_at = $7
		 WHERE id = $1
		 RETURNING ` + blogColumns

	row := r.db.QueryRowContext(ctx, query,
		blog.ID, blog.Title, blog.Slug, []byte(blog.Content), sources, blog.Status, blog.UpdatedAt)
	updated, err := scanBlog(row)
	if err != nil && dbx.IsUniqueViolation(err) {
		return nil, common.ErrorAlreadyExists
	}
	return updated, err
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blogs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// List returns matching posts, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*models.Blog, error) {
	query :=
		`SELECT ` + blogColumns + ` FROM blogs
		 WHERE ($1 = 0 OR user_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, filter.UserID, filter.Status)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Blog, 0)
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// IncrementViews bumps the counter in place and returns the new value.
func (r *PostgresRepository) IncrementViews(ctx context.Context, id int64) (int64, error) {
	query := `UPDATE blogs SET views = views + 1 WHERE id = $1 RETURNING views`

	var views int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&views); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return views, nil
}
