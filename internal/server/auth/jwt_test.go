package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newCodec(t *testing.T, secret string) (*Codec, *timex.FixedClock, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	clock := &timex.FixedClock{T: start}
	return NewCodec([]byte(secret), 15*time.Minute, clock, logging.NewJSON(&buf, "debug")), clock, &buf
}

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestIssueAndDecode_Success(t *testing.T) {
	c, _, _ := newCodec(t, "super-secret")
	ctx := context.Background()

	tok, err := c.IssueAccessToken(ctx, 123)
	require.NoError(t, err)

	got, err := c.DecodeAccessToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(123), got)
	assert.Equal(t, 15*time.Minute, c.TTL())
}

func TestDecode_ExpiryBoundary(t *testing.T) {
	c, clock, _ := newCodec(t, "secret")
	ctx := context.Background()

	tok, err := c.IssueAccessToken(ctx, 1)
	require.NoError(t, err)

	clock.Advance(15*time.Minute - time.Second)
	_, err = c.DecodeAccessToken(ctx, tok)
	require.NoError(t, err, "one second before expiry")

	clock.Advance(time.Second)
	_, err = c.DecodeAccessToken(ctx, tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "expiry equal to now is expired")
}

func TestDecode_Rejections(t *testing.T) {
	valid := jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(start.Add(time.Hour)),
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, jwt.SigningMethodHS256, "other", Claims{RegisteredClaims: valid, Type: AccessTokenType})},
		{"wrong type", sign(t, jwt.SigningMethodHS256, "secret", Claims{RegisteredClaims: valid, Type: "refresh"})},
		{"missing type", sign(t, jwt.SigningMethodHS256, "secret", Claims{RegisteredClaims: valid})},
		{"unexpected algorithm", sign(t, jwt.SigningMethodHS512, "secret", Claims{RegisteredClaims: valid, Type: AccessTokenType})},
		{"non-numeric subject", sign(t, jwt.SigningMethodHS256, "secret", Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ExpiresAt: valid.ExpiresAt},
			Type:             AccessTokenType,
		})},
		{"no expiry", sign(t, jwt.SigningMethodHS256, "secret", Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "7"},
			Type:             AccessTokenType,
		})},
		{"malformed", "not.a.jwt"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, buf := newCodec(t, "secret")

			_, err := c.DecodeAccessToken(context.Background(), tt.token)
			require.ErrorIs(t, err, common.ErrInvalidToken)

			logged := buf.String()
			assert.Contains(t, logged, `"level":"WARN"`)
			assert.Contains(t, logged, "access token rejected")
			if len(tt.token) > 8 {
				assert.NotContains(t, logged, tt.token, "raw token must not be logged")
			}
		})
	}
}

func TestIssue_SigningFailureIsHard(t *testing.T) {
	c, _, buf := newCodec(t, "secret")
	c.method = jwt.SigningMethodRS256 // []byte is not an RSA key

	_, err := c.IssueAccessToken(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrInvalidToken))
	assert.True(t, strings.Contains(buf.String(), `"level":"ERROR"`))
}
