package lifecycle

import (
	"encoding/base64"
	"testing"
)

func TestNewSubmitToken(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		token, err := newSubmitToken()
		if err != nil {
			t.Fatalf("newSubmitToken: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not url-safe base64: %v", token, err)
		}
		if len(raw) != tokenEntropyBytes {
			t.Fatalf("token entropy = %d bytes, want %d", len(raw), tokenEntropyBytes)
		}
		if _, ok := seen[token]; ok {
			t.Fatalf("token %q repeated", token)
		}
		seen[token] = struct{}{}
	}
}
