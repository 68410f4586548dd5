// Package auth holds the credential primitives of the server: the signed
// access-token codec and password hashing.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenType is the value of the "type" claim on access tokens.
const AccessTokenType = "access"

// Claims are the registered claims plus the token type. Subject carries the
// decimal user id.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Codec signs and verifies access tokens. It is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	clock  timex.Clock
	method jwt.SigningMethod
	log    logging.Logger
}

func NewCodec(secret []byte, ttl time.Duration, clock timex.Clock, log logging.Logger) *Codec {
	return &Codec{
		secret: secret,
		ttl:    ttl,
		clock:  clock,
		method: jwt.SigningMethodHS256,
		log:    log.With("module", "auth"),
	}
}

// TTL is the lifetime of issued access tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// IssueAccessToken returns a token for userID valid until now+ttl.
// An error here is a configuration problem, never bad input.
func (c *Codec) IssueAccessToken(ctx context.Context, userID int64) (string, error) {
	now := c.clock.Now()
	token := jwt.NewWithClaims(c.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Type: AccessTokenType,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		c.log.Error(ctx, "access token signing failed", "user_id", userID, "error", err)
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// DecodeAccessToken returns the user id carried by tokenString. Every
// rejection (bad signature, expiry, malformed input, wrong type or
// algorithm) is reported as common.ErrInvalidToken.
func (c *Codec) DecodeAccessToken(ctx context.Context, tokenString string) (int64, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		c.reject(ctx, tokenString, reason(err))
		return 0, common.ErrInvalidToken
	}

	if claims.Type != AccessTokenType {
		c.reject(ctx, tokenString, "wrong token type")
		return 0, common.ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		c.reject(ctx, tokenString, "bad subject")
		return 0, common.ErrInvalidToken
	}
	return userID, nil
}

func (c *Codec) reject(ctx context.Context, token, why string) {
	c.log.Warn(ctx, "access token rejected", "reason", why, "token", common.MaskToken(token))
}

func reason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}
