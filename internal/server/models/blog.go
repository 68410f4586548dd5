package models

import (
	"encoding/json"
	"time"
)

type Blog struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Slug      string          `json:"slug"`
	UserID    int64           `json:"user_id"`
	Content   json.RawMessage `json:"content"`
	Sources   []string        `json:"sources"`
	Status    string          `json:"status"`
	Views     int64           `json:"views"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DailyViews is one bucket of the views-over-time series.
type DailyViews struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// BlogAnalytics summarises the posts of a single author.
type BlogAnalytics struct {
	TotalBlogs     int          `json:"total_blogs"`
	PublishedCount int          `json:"published_count"`
	DraftCount     int          `json:"draft_count"`
	TotalViews     int64        `json:"total_views"`
	MostViewedBlog *Blog        `json:"most_viewed_blog"`
	Blogs          []*Blog      `json:"blogs"`
	ViewsOverTime  []DailyViews `json:"views_over_time"`
}
