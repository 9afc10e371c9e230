package lifecycle

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenEntropyBytes is the random size behind each submit token. 24 bytes
// keeps tokens well above the 128-bit unguessability floor.
const tokenEntropyBytes = 24

func newSubmitToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
