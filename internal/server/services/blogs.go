package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/dbx"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/blogs"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inkpost/internal/timex"
)

const (
	maxTitleLength = 255
	analyticsDays  = 30
)

// BlogInput is the writable part of a post.
type BlogInput struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
	Sources []string        `json:"sources"`
	Status  string          `json:"status"`
}

// Slugify lowercases title and replaces spaces with dashes.
func Slugify(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// normalize trims the input in place and rejects what cannot be stored.
func (in *BlogInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return common.NewValidationError("title must be 1 to 255 characters")
	}

	trimmed := bytes.TrimSpace(in.Content)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return common.NewValidationError("content must be a JSON object")
	}
	in.Content = trimmed

	sources := make([]string, 0, len(in.Sources))
	for _, src := range in.Sources {
		if src = strings.TrimSpace(src); src != "" {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return common.NewValidationError("at least one non-empty source is required")
	}
	in.Sources = sources

	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Status != common.BlogStatusDraft && in.Status != common.BlogStatusPublished {
		return common.NewValidationError("status must be draft or published")
	}
	return nil
}

// BlogService is single-owner CRUD over posts plus per-author analytics.
type BlogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	log         logging.Logger
}

func NewBlogService(db *sql.DB, m repomanager.RepositoryManager, clock timex.Clock, log logging.Logger) *BlogService {
	return &BlogService{db: db, repomanager: m, clock: clock, log: log.With("module", "blogs")}
}

func (s *BlogService) Create(ctx context.Context, userID int64, in BlogInput) (*models.Blog, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	blog, err := s.repomanager.Blogs(s.db).Create(ctx, &models.Blog{
		Title:     in.Title,
		Slug:      Slugify(in.Title),
		UserID:    userID,
		Content:   in.Content,
		Sources:   in.Sources,
		Status:    in.Status,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, s.storageError(ctx, "create", 0, err)
	}

	s.log.Info(ctx, "blog created", "blog_id", blog.ID, "user_id", userID, "slug", blog.Slug)
	return blog, nil
}

// Update replaces the writable fields of a post owned by userID.
func (s *BlogService) Update(ctx context.Context, userID, id int64, in BlogInput) (*models.Blog, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var updated *models.Blog
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Blogs(tx)
		blog, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if blog.UserID != userID {
			return common.ErrForbidden
		}

		blog.Title, blog.Slug = in.Title, Slugify(in.Title)
		blog.Content, blog.Sources, blog.Status = in.Content, in.Sources, in.Status
		blog.UpdatedAt = s.clock.Now()

		updated, err = repo.Update(ctx, blog)
		return err
	})
	if err != nil {
		return nil, s.storageError(ctx, "update", id, err)
	}

	s.log.Info(ctx, "blog updated", "blog_id", id, "user_id", userID)
	return updated, nil
}

func (s *BlogService) Get(ctx context.Context, id int64) (*models.Blog, error) {
	blog, err := s.repomanager.Blogs(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, "get", id, err)
	}
	return blog, nil
}

func (s *BlogService) GetBySlug(ctx context.Context, slug string) (*models.Blog, error) {
	blog, err := s.repomanager.Blogs(s.db).GetBySlug(ctx, slug)
	if err != nil {
		return nil, s.storageError(ctx, "get by slug", 0, err)
	}
	return blog, nil
}

func (s *BlogService) ListAll(ctx context.Context) ([]*models.Blog, error) {
	return s.list(ctx, blogs.ListFilter{})
}

// ListMine lists the posts of userID. A status other than draft or
// published lists every post.
func (s *BlogService) ListMine(ctx context.Context, userID int64, status string) ([]*models.Blog, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != common.BlogStatusDraft && status != common.BlogStatusPublished {
		status = ""
	}
	return s.list(ctx, blogs.ListFilter{UserID: userID, Status: status})
}

func (s *BlogService) list(ctx context.Context, filter blogs.ListFilter) ([]*models.Blog, error) {
	list, err := s.repomanager.Blogs(s.db).List(ctx, filter)
	if err != nil {
		return nil, s.storageError(ctx, "list", 0, err)
	}
	return list, nil
}

// Delete removes a post owned by userID.
func (s *BlogService) Delete(ctx context.Context, userID, id int64) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Blogs(tx)
		blog, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if blog.UserID != userID {
			return common.ErrForbidden
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return s.storageError(ctx, "delete", id, err)
	}

	s.log.Info(ctx, "blog deleted", "blog_id", id, "user_id", userID)
	return nil
}

func (s *BlogService) IncrementViews(ctx context.Context, id int64) (int64, error) {
	views, err := s.repomanager.Blogs(s.db).IncrementViews(ctx, id)
	if err != nil {
		return 0, s.storageError(ctx, "increment views", id, err)
	}
	return views, nil
}

// Analytics summarises the posts of userID. ViewsOverTime holds one
// zero-filled bucket per day of the last 30 days; per-day views are not
// recorded.
func (s *BlogService) Analytics(ctx context.Context, userID int64) (*models.BlogAnalytics, error) {
	list, err := s.list(ctx, blogs.ListFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	a := &models.BlogAnalytics{
		TotalBlogs:    len(list),
		Blogs:         list,
		ViewsOverTime: make([]models.DailyViews, 0, analyticsDays),
	}
	for _, b := range list {
		if b.Status == common.BlogStatusPublished {
			a.PublishedCount++
		}
		a.TotalViews += b.Views
		if b.Views > 0 && (a.MostViewedBlog == nil || b.Views > a.MostViewedBlog.Views) {
			a.MostViewedBlog = b
		}
	}
	a.DraftCount = a.TotalBlogs - a.PublishedCount

	today := s.clock.Now().Truncate(24 * time.Hour)
	for i := analyticsDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		a.ViewsOverTime = append(a.ViewsOverTime, models.DailyViews{Date: day.Format(time.DateOnly)})
	}
	return a, nil
}

func (s *BlogService) storageError(ctx context.Context, op string, id int64, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrBlogNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		return common.ErrBlogTitleTaken
	case errors.Is(err, common.ErrForbidden):
		s.log.Warn(ctx, "blog "+op+" refused: not the owner", "blog_id", id)
		return common.ErrForbidden
	}
	s.log.Error(ctx, "blog "+op+" failed", "blog_id", id, "error", err)
	return common.ErrorInternal
}
