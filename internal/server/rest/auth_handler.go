package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/go-chi/chi/v5"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userResponse struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Email, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeMessage(w, r, http.StatusCreated, "Registration successful. Please check your email to verify your account.")
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.writeTokenError(w, r, err)
		return
	}

	h.writeMessage(w, r, http.StatusOK, "Email verified successfully. You can now log in.")
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeMessage(w, r, http.StatusOK, "If the account is awaiting verification, a new link has been sent.")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setTokenCookies(w, pair)
	h.writeJSON(w, r, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, TokenType: "bearer"})
}

// Logout revokes the refresh token from the cookie, if any, and always
// clears both cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := cookieValue(r, common.RefreshTokenCookieName); token != "" {
		h.auth.Logout(r.Context(), token)
	}

	h.expireCookies(w)
	h.writeMessage(w, r, http.StatusOK, "Logged out successfully")
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, common.RefreshTokenCookieName)
	if token == "" {
		h.writeError(w, r, common.ErrInvalidOrExpiredToken)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		h.expireCookies(w)
		h.writeError(w, r, err)
		return
	}

	h.setTokenCookies(w, pair)
	h.writeJSON(w, r, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, TokenType: "bearer"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeMessage(w, r, http.StatusOK, "Password reset link has been sent to your email.")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		h.writeTokenError(w, r, err)
		return
	}

	h.writeMessage(w, r, http.StatusOK, "Password reset successfully. You can now log in with your new password.")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	h.writeJSON(w, r, http.StatusOK, userResponse{
		ID:         user.ID,
		Email:      user.Email,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt,
	})
}

// writeTokenError reports a bad emailed token as 400: the link is wrong,
// the caller is not unauthenticated.
func (h *Handler) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, common.ErrInvalidOrExpiredToken) {
		h.writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}
	h.writeError(w, r, err)
}
