// Package verify checks a staged file against an expected content hash.
package verify

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

var (
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrUnknownAlgorithm  = errors.New("unknown checksum algorithm")
	ErrMalformedChecksum = errors.New("malformed checksum")
)

// Error carries the expected and computed digests of a failed check.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Checksum is an expected digest in lowercase hex.
type Checksum struct {
	Algorithm string
	Expected  string
}

// Parse reads "algo:hex" or a bare hex digest. A bare digest's algorithm is
// inferred from its length, defaulting to sha256.
func Parse(s string) (Checksum, error) {
	s = strings.TrimSpace(s)
	algo, digest, ok := strings.Cut(s, ":")
	if !ok {
		digest = algo
		algo = inferAlgorithm(digest)
	}
	algo = strings.ToLower(strings.ReplaceAll(algo, "-", ""))
	digest = strings.ToLower(strings.TrimSpace(digest))

	if _, known := algorithms[algo]; !known {
		return Checksum{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	if digest == "" {
		return Checksum{}, fmt.Errorf("%w: empty digest", ErrMalformedChecksum)
	}
	if strings.Trim(digest, "0123456789abcdef") != "" {
		return Checksum{}, fmt.Errorf("%w: %q is not hex", ErrMalformedChecksum, digest)
	}
	return Checksum{Algorithm: algo, Expected: digest}, nil
}

func inferAlgorithm(digest string) string {
	switch len(digest) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 128:
		return "sha512"
	default:
		return "sha256"
	}
}

func (c Checksum) String() string {
	return c.Algorithm + ":" + c.Expected
}

// New returns a fresh hash for c's algorithm.
func (c Checksum) New() hash.Hash {
	if fn, ok := algorithms[c.Algorithm]; ok {
		return fn()
	}
	return sha256.New()
}

// File hashes the file at path and compares it with c. A mismatch returns an
// *Error wrapping ErrChecksumMismatch.
func File(ctx context.Context, path string, c Checksum) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	h := c.New()
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return err
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != c.Expected {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("%s expected %s, got %s", c.Algorithm, c.Expected, actual),
		}
	}
	return nil
}

// ctxReader stops a long hash when ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
