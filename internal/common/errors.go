package common

import "errors"

// Kind classifies an error for the caller. Transport layers map kinds to
// status codes; everything that is not a *Error is KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a caller-visible failure. Code is stable and machine readable,
// Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same Code, so errors built by
// NewValidationError satisfy errors.Is(err, ErrValidation).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewValidationError is ErrValidation with a caller-facing message.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Message: msg}
}

// KindOf reports the Kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Token codec errors.
	ErrInvalidToken = errors.New("invalid token")

	// Service-level errors.
	ErrorInternal = &Error{Kind: KindInternal, Code: "internal_error", Message: "internal error"}

	ErrValidation = &Error{Kind: KindValidation, Code: "validation_error", Message: "invalid input"}

	ErrInvalidCredentials    = &Error{Kind: KindAuthentication, Code: "invalid_credentials", Message: "invalid email or password"}
	ErrEmailNotVerified      = &Error{Kind: KindAuthentication, Code: "email_not_verified", Message: "please verify your email before logging in"}
	ErrInvalidOrExpiredToken = &Error{Kind: KindAuthentication, Code: "invalid_or_expired_token", Message: "invalid or expired token"}
	ErrUnauthenticated       = &Error{Kind: KindAuthentication, Code: "unauthenticated", Message: "authentication required"}
	ErrForbidden             = &Error{Kind: KindAuthentication, Code: "forbidden", Message: "not allowed"}

	ErrEmailAlreadyRegistered = &Error{Kind: KindConflict, Code: "email_already_registered", Message: "email already registered"}
	ErrBlogTitleTaken         = &Error{Kind: KindConflict, Code: "blog_title_taken", Message: "a blog with this title already exists"}

	ErrEmailNotFound = &Error{Kind: KindNotFound, Code: "email_not_found", Message: "email does not exist in our system"}
	ErrBlogNotFound  = &Error{Kind: KindNotFound, Code: "blog_not_found", Message: "blog not found"}

	ErrDeliveryFailed = &Error{Kind: KindInternal, Code: "delivery_failed", Message: "failed to send email, please try again later"}
)
