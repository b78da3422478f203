package release

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// newToken mints an opaque 256-bit release token, URL-safe without padding.
// Tokens carry no structure; possession is the whole credential.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate release token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
