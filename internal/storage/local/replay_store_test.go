package local_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hltv-demo-scraper/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesReplayDir", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		store, err := local.New(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "demofiles"), store.BaseDir())
		assert.DirExists(t, store.BaseDir())
	})

	t.Run("ReplayDirIsAFile", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "demofiles"), []byte("x"), 0o600))
		_, err := local.New(root)
		assert.Error(t, err)
	})
}

func TestPath(t *testing.T) {
	t.Parallel()

	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	got, err := store.Path("9999", "88888")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir(), "9999", "88888.rar"), got)

	for _, tc := range []struct{ event, demo string }{
		{"", "1"},
		{"1", ""},
		{"..", "1"},
		{"1", "../../etc"},
		{`a\b`, "1"},
	} {
		_, err := store.Path(tc.event, tc.demo)
		assert.ErrorIs(t, err, local.ErrInvalidID, "event=%q demo=%q", tc.event, tc.demo)
	}
}

func TestEnsureEventDir(t *testing.T) {
	t.Parallel()

	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	dir, err := store.EnsureEventDir("9999")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir(), "9999"), dir)
	assert.DirExists(t, dir)

	again, err := store.EnsureEventDir("9999")
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	_, err = store.EnsureEventDir("../escape")
	require.ErrorIs(t, err, local.ErrInvalidID)
}

func TestPendingFileCommit(t *testing.T) {
	t.Parallel()

	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	pending, err := store.Create("9999", "88888")
	require.NoError(t, err)
	_, err = pending.Write([]byte("replay-bytes"))
	require.NoError(t, err)
	assert.NoFileExists(t, pending.FinalPath(), "final file must not exist before commit")

	require.NoError(t, pending.Commit())
	data, err := os.ReadFile(pending.FinalPath())
	require.NoError(t, err)
	assert.Equal(t, "replay-bytes", string(data))
	assert.NoFileExists(t, pending.Name())
	assert.Error(t, pending.Commit())

	pending.Abort()
	assert.FileExists(t, pending.FinalPath(), "abort after commit keeps the file")
}

func TestPendingFileAbortLeavesNothing(t *testing.T) {
	t.Parallel()

	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	pending, err := store.Create("9999", "77777")
	require.NoError(t, err)
	_, err = pending.Write([]byte("partial"))
	require.NoError(t, err)
	pending.Abort()

	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), "9999"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitOverwritesExistingReplay(t *testing.T) {
	t.Parallel()

	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	for _, body := range []string{"first", "second"} {
		pending, err := store.Create("9999", "88888")
		require.NoError(t, err)
		_, err = pending.WriteString(body)
		require.NoError(t, err)
		require.NoError(t, pending.Commit())
	}
	data, err := os.ReadFile(filepath.Join(store.BaseDir(), "9999", "88888.rar"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
