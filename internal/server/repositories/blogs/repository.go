// Package blogs declares the storage contract for blog posts.
package blogs

import (
	"context"

	"github.com/dmitrijs2005/inkpost/internal/server/models"
)

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	UserID int64
	Status string
}

type Repository interface {
	Create(ctx context.Context, blog *models.Blog) (*models.Blog, error)
	GetByID(ctx context.Context, id int64) (*models.Blog, error)
	GetBySlug(ctx context.Context, slug string) (*models.Blog, error)
	Update(ctx context.Context, blog *models.Blog) (*models.Blog, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]*models.Blog, error)
	IncrementViews(ctx context.Context, id int64) (int64, error)
}
