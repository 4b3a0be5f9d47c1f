package token_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/swfrench/redisesh/internal/testutil"
	"github.com/swfrench/redisesh/internal/token"
)

var stdBase64 = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

func TestEncode(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "zeros",
			data: make([]byte, 16),
			want: "AAAAAAAAAAAAAAAAAAAAAA==",
		},
		{
			name: "standard alphabet",
			data: []byte{0xfb, 0xff, 0xbf},
			want: "+/+/",
		},
		{
			name: "padding",
			data: []byte("hello"),
			want: "aGVsbG8=",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := token.Encode(tc.data)
			if got != tc.want {
				t.Errorf("Encode(%v) = %q, want %q", tc.data, got, tc.want)
			}
			if again := token.Encode(tc.data); again != got {
				t.Errorf("Encode(%v) is not deterministic - got %q then %q", tc.data, got, again)
			}
			dec, err := token.Decode(got)
			if err != nil {
				t.Fatalf("Decode(%q) returned unexpected error: %v", got, err)
			}
			if diff := cmp.Diff(tc.data, dec); diff != "" {
				t.Errorf("Decode(Encode()) returned incorrect bytes (+got, -want):\n%s", diff)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	g := token.NewGenerator(16, rand.Reader)
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		data, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate() returned unexpected error: %v", err)
		}
		if got, want := len(data), 16; got != want {
			t.Fatalf("Generate() returned %d bytes, want %d", got, want)
		}
		if seen[string(data)] {
			t.Fatalf("Generate() returned a duplicate byte sequence after %d calls: %v", i, data)
		}
		seen[string(data)] = true
	}
}

func TestNew(t *testing.T) {
	raw := testutil.MustDecodeBase64(t, "FjcKOUT10xuBXjijEMv/UvegOFPtu55WvvS3ChkcyL0=")
	g := token.NewGenerator(32, bytes.NewReader(raw))
	got, err := g.New()
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	if want := "FjcKOUT10xuBXjijEMv/UvegOFPtu55WvvS3ChkcyL0="; got != want {
		t.Errorf("New() = %q, want %q", got, want)
	}
	if !stdBase64.MatchString(got) {
		t.Errorf("New() = %q, which is not drawn from the base64 alphabet", got)
	}
}

func TestMinLen(t *testing.T) {
	g := token.NewGenerator(4, rand.Reader)
	if got, want := g.Len(), token.MinLen; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	tok, err := g.New()
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	if got, want := len(tok), 24; got != want {
		t.Errorf("len(New()) = %d, want %d", got, want)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("no entropy")
}

func TestGenerateErrors(t *testing.T) {
	testCases := []struct {
		name string
		r    io.Reader
		err  error
	}{
		{
			name: "failing source",
			r:    failingReader{},
		},
		{
			name: "short source",
			r:    strings.NewReader("too short"),
			err:  io.ErrUnexpectedEOF,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := token.NewGenerator(16, tc.r).New()
			if err == nil {
				t.Fatal("New() unexpectedly succeeded")
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Errorf("New() returned incorrect error type - got: %v want: %v", err, tc.err)
			}
		})
	}
}
