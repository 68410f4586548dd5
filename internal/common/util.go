package common

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// MakeRandHexString returns size random bytes encoded as hex, so the result
// is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MaskEmail hides the local part of an address for logging:
// "alice@example.com" becomes "a***e@example.com". Anything that is not
// shaped like an address is replaced entirely, since it may be a password
// typed into the wrong field.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	r := []rune(local)
	if len(r) <= 2 {
		return string(r[:1]) + "***@" + domain
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1]) + "@" + domain
}

// MaskToken keeps the first and last four characters of a token.
// Short tokens are fully hidden.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
