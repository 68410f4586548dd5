package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
	"github.com/dmitrijs2005/inkpost/internal/server/services"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// AuthService is the part of services.AuthService used by the handlers.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	ResendVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	CurrentUser(ctx context.Context, creds services.Credentials) (*models.User, error)
}

// BlogService is the part of services.BlogService used by the handlers.
type BlogService interface {
	Create(ctx context.Context, userID int64, in services.BlogInput) (*models.Blog, error)
	Update(ctx context.Context, userID, id int64, in services.BlogInput) (*models.Blog, error)
	Get(ctx context.Context, id int64) (*models.Blog, error)
	GetBySlug(ctx context.Context, slug string) (*models.Blog, error)
	ListAll(ctx context.Context) ([]*models.Blog, error)
	ListMine(ctx context.Context, userID int64, status string) ([]*models.Blog, error)
	Delete(ctx context.Context, userID, id int64) error
	IncrementViews(ctx context.Context, id int64) (int64, error)
	Analytics(ctx context.Context, userID int64) (*models.BlogAnalytics, error)
}

// CookieConfig holds the attributes of the credential cookies.
type CookieConfig struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler serves the JSON API on top of the auth and blog services and maps
// their errors to HTTP statuses.
type Handler struct {
	auth    AuthService
	blogs   BlogService
	cookies CookieConfig
	logger  logging.Logger
}

func NewHandler(auth AuthService, blogs BlogService, cookies CookieConfig, l logging.Logger) *Handler {
	return &Handler{
		auth:    auth,
		blogs:   blogs,
		cookies: cookies,
		logger:  l.With("module", "http_handler"),
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, messageResponse{Message: msg})
}

// writeError renders err with the status of its kind. Errors that are not a
// *common.Error are reported as an opaque internal error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorStatus(w, r, statusFor(err), err)
}

func (h *Handler) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	var e *common.Error
	if !errors.As(err, &e) {
		h.logger.Error(r.Context(), "unclassified error", "error", err)
		e = common.ErrorInternal
	}
	h.writeJSON(w, r, status, errorResponse{Error: e.Code, Message: e.Message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrEmailNotVerified), errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	}

	switch common.KindOf(err) {
	case common.KindValidation:
		return http.StatusUnprocessableEntity
	case common.KindAuthentication:
		return http.StatusUnauthorized
	case common.KindConflict:
		return http.StatusConflict
	case common.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. A malformed body is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return common.NewValidationError("request body is empty")
		}
		return common.NewValidationError("invalid request body")
	}
	return nil
}
