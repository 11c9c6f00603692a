package token

import (
	"crypto/rand"
	"encoding/base64"
)

// Size is the number of random bytes behind each invitation token.
const Size = 24

// New returns a random URL-safe token without padding. Uniqueness is
// enforced by the storage layer, not here.
func New() (string, error) {
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
