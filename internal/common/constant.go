// Package common contains shared constants, sentinel errors and small helpers
// used across the inkpost server components.
package common

// Cookie names carrying the two credentials issued on login and refresh.
const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"
)

// Blog publication states.
const (
	BlogStatusDraft     = "draft"
	BlogStatusPublished = "published"
)
