package sha256

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHashDeterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, helloDigest, Hash([]byte("hello world")))
	assert.Equal(t, Hash([]byte("hello world")), Hash([]byte("hello world")))
}

func TestDigestMatchesHashAcrossChunks(t *testing.T) {
	t.Parallel()

	d := NewDigest()
	w := io.MultiWriter(io.Discard, d)
	for _, chunk := range []string{"hel", "lo ", "world"} {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}
	assert.Equal(t, helloDigest, d.Sum())
	assert.EqualValues(t, 11, d.Size())

	d.Reset()
	assert.Zero(t, d.Size())
	assert.Equal(t, Hash(nil), d.Sum())
}

func TestHashReaderAndFile(t *testing.T) {
	t.Parallel()

	sum, n, err := HashReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, helloDigest, sum)
	assert.EqualValues(t, 11, n)

	path := filepath.Join(t.TempDir(), "demo.rar")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))
	sum, n, err = HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, helloDigest, sum)
	assert.EqualValues(t, 11, n)

	_, _, err = HashFile(filepath.Join(t.TempDir(), "missing.rar"))
	require.Error(t, err)
}
