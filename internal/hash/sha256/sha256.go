// Package sha256 computes hex SHA-256 digests of replay files.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Digest accumulates bytes written to it. Use it as one side of an
// io.MultiWriter while streaming a download.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write implements io.Writer. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	n, _ := d.h.Write(p)
	d.n += int64(n)
	return n, nil
}

// Size returns the number of bytes hashed so far.
func (d *Digest) Size() int64 {
	return d.n
}

// Sum returns the hex digest of everything written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Reset discards the accumulated state.
func (d *Digest) Reset() {
	d.h.Reset()
	d.n = 0
}

// Hash hashes data and returns a hex digest.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader consumes r and returns its hex digest and length.
func HashReader(r io.Reader) (string, int64, error) {
	d := NewDigest()
	n, err := io.Copy(d, r)
	if err != nil {
		return "", n, fmt.Errorf("hash reader: %w", err)
	}
	return d.Sum(), n, nil
}

// HashFile returns the hex digest and size of the file at path.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path) // #nosec G304 -- path is produced by the downloader
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return HashReader(f)
}
