// Package testutil provides helpers shared by tests across the module.
package testutil

import (
	"encoding/base64"
	"testing"
)

// MustDecodeBase64 decodes the provided standard base64-encoded string (i.e.,
// the session token encoding), failing the test on error.
func MustDecodeBase64(t *testing.T, encoded string) []byte {
	t.Helper()
	bs, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("Unexpected error decoding %q: %v", encoded, err)
	}
	return bs
}
