package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/verify-email/{token}", h.VerifyEmail)
		r.Post("/resend-verification", h.ResendVerification)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password/{token}", h.ResetPassword)
		r.With(h.authenticate).Get("/me", h.Me)
	})

	r.Route("/blogs", func(r chi.Router) {
		r.Get("/", h.ListBlogs)
		r.Get("/slug/{slug}", h.GetBlogBySlug)
		r.Get("/{id}", h.GetBlog)
		r.Post("/{id}/views", h.IncrementViews)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Post("/", h.CreateBlog)
			r.Get("/mine", h.MyBlogs)
			r.Get("/analytics", h.Analytics)
			r.Put("/{id}", h.UpdateBlog)
			r.Delete("/{id}", h.DeleteBlog)
		})
	})

	return r
}
