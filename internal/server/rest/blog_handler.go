package rest

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
	"github.com/dmitrijs2005/inkpost/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type blogsResponse struct {
	Blogs []*models.Blog `json:"blogs"`
}

type viewsResponse struct {
	Views int64 `json:"views"`
}

func blogID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewValidationError("invalid blog id")
	}
	return id, nil
}

func (h *Handler) CreateBlog(w http.ResponseWriter, r *http.Request) {
	var in services.BlogInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	blog, err := h.blogs.Create(r.Context(), currentUser(r).ID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, blog)
}

func (h *Handler) UpdateBlog(w http.ResponseWriter, r *http.Request) {
	id, err := blogID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var in services.BlogInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	blog, err := h.blogs.Update(r.Context(), currentUser(r).ID, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, blog)
}

func (h *Handler) GetBlog(w http.ResponseWriter, r *http.Request) {
	id, err := blogID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	blog, err := h.blogs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, blog)
}

func (h *Handler) GetBlogBySlug(w http.ResponseWriter, r *http.Request) {
	blog, err := h.blogs.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, blog)
}

func (h *Handler) ListBlogs(w http.ResponseWriter, r *http.Request) {
	list, err := h.blogs.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, blogsResponse{Blogs: list})
}

// MyBlogs lists the caller's posts, optionally filtered by ?status=.
func (h *Handler) MyBlogs(w http.ResponseWriter, r *http.Request) {
	list, err := h.blogs.ListMine(r.Context(), currentUser(r).ID, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, blogsResponse{Blogs: list})
}

func (h *Handler) DeleteBlog(w http.ResponseWriter, r *http.Request) {
	id, err := blogID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.blogs.Delete(r.Context(), currentUser(r).ID, id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeMessage(w, r, http.StatusOK, "Blog deleted successfully")
}

func (h *Handler) IncrementViews(w http.ResponseWriter, r *http.Request) {
	id, err := blogID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.blogs.IncrementViews(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, viewsResponse{Views: views})
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.blogs.Analytics(r.Context(), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, a)
}
