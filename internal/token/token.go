// Package token provides creation of random session tokens.
//
// A token is the standard (padded) base64 encoding of a fixed number of bytes
// read from a cryptographically secure source.
package token

import (
	"encoding/base64"
	"fmt"
	"io"
)

// MinLen is the smallest accepted random payload length, in bytes.
const MinLen = 16

// Generator produces random tokens of a fixed length.
type Generator struct {
	n    int
	rand io.Reader
}

// NewGenerator returns a new Generator reading n bytes from r per token.
// Lengths below MinLen are raised to MinLen.
func NewGenerator(n int, r io.Reader) *Generator {
	if n < MinLen {
		n = MinLen
	}
	return &Generator{n: n, rand: r}
}

// Len returns the number of random bytes in each generated token.
func (g *Generator) Len() int {
	return g.n
}

// Generate returns a fresh random byte sequence of the configured length.
func (g *Generator) Generate() ([]byte, error) {
	data := make([]byte, g.n)
	if _, err := io.ReadFull(g.rand, data); err != nil {
		return nil, fmt.Errorf("failed to read %d random bytes: %w", g.n, err)
	}
	return data, nil
}

// New returns a freshly generated, encoded token.
func (g *Generator) New() (string, error) {
	data, err := g.Generate()
	if err != nil {
		return "", err
	}
	return Encode(data), nil
}

// Encode returns the textual form of the provided raw token bytes.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode inverts Encode.
func Decode(token string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(token)
}
