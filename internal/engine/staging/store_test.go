package staging

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "file.bin"))
}

// =============================================================================
// Store Tests
// =============================================================================

func TestStore_Paths(t *testing.T) {
	s := New("/downloads/file.bin")
	assert.Equal(t, "/downloads/file.bin", s.DestinationPath())
	assert.Equal(t, "/downloads/file.bin.tmp", s.StagingPath())
}

func TestStore_LengthMissingIsZero(t *testing.T) {
	s := newStore(t)

	n, err := s.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.False(t, s.Exists())
}

func TestStore_AppendAndLength(t *testing.T) {
	s := newStore(t)

	f, err := s.OpenAppend()
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 300))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = s.OpenAppend()
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 100))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	n, err := s.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(400), n)
	assert.True(t, s.Exists())
}

func TestStore_ResetTruncates(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.StagingPath(), make([]byte, 500), 0644))

	require.NoError(t, s.Reset())

	n, err := s.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.True(t, s.Exists(), "reset keeps an empty staging file")
}

func TestStore_DiscardIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.StagingPath(), []byte("partial"), 0644))

	require.NoError(t, s.Discard())
	require.NoError(t, s.Discard())
	assert.False(t, s.Exists())
}

func TestStore_Finalize(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.StagingPath(), []byte("payload"), 0644))

	require.NoError(t, s.Finalize())

	assert.False(t, testutil.FileExists(s.StagingPath()))
	data, err := os.ReadFile(s.DestinationPath())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestStore_FinalizeMissingStaging(t *testing.T) {
	s := newStore(t)

	err := s.Finalize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFilesystem))
	assert.False(t, testutil.FileExists(s.DestinationPath()))
}

func TestStore_DestinationSize(t *testing.T) {
	s := newStore(t)

	_, exists, err := s.DestinationSize()
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(s.DestinationPath(), make([]byte, 1000), 0644))
	size, exists, err := s.DestinationSize()
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(1000), size)

	require.NoError(t, s.RemoveDestination())
	require.NoError(t, s.RemoveDestination())
	assert.False(t, testutil.FileExists(s.DestinationPath()))
}

func TestStore_LockIsExclusive(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "file.bin")
	first := New(dest)
	second := New(dest)

	require.NoError(t, first.Lock())
	assert.True(t, testutil.FileExists(dest+".tmp.lock"))

	err := second.Lock()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))
	assert.True(t, errors.Is(err, types.ErrFilesystem))

	require.NoError(t, first.Unlock())
	assert.False(t, testutil.FileExists(dest+".tmp.lock"))

	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
	require.NoError(t, second.Unlock(), "unlocking twice is a no-op")
}

func TestStore_EnsureSpace(t *testing.T) {
	s := newStore(t)

	assert.NoError(t, s.EnsureSpace(0))
	assert.NoError(t, s.EnsureSpace(1))

	err := s.EnsureSpace(math.MaxInt64)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFilesystem))
}

// =============================================================================
// copyFile Tests
// =============================================================================

func TestCopyFile(t *testing.T) {
	tmpDir, cleanup, err := testutil.TempDir("trickle-copy-test")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	srcPath, err := testutil.CreateTestFile(tmpDir, "src.bin", 64*1024, true)
	if err != nil {
		t.Fatal(err)
	}
	dstPath := filepath.Join(tmpDir, "dst.bin")

	if err := copyFile(srcPath, dstPath); err != nil {
		t.Fatalf("copyFile failed: %v", err)
	}

	match, err := testutil.CompareFiles(srcPath, dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if !match {
		t.Error("File contents don't match")
	}
}

func TestCopyFile_SourceNotExists(t *testing.T) {
	tmpDir := t.TempDir()

	err := copyFile(filepath.Join(tmpDir, "nonexistent.bin"), filepath.Join(tmpDir, "dst.bin"))
	if err == nil {
		t.Error("Expected error for nonexistent source")
	}
}

func TestCopyFile_InvalidDestination(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath, _ := testutil.CreateTestFile(tmpDir, "src.bin", 100, false)

	err := copyFile(srcPath, filepath.Join(tmpDir, "nonexistent", "subdir", "dst.bin"))
	if err == nil {
		t.Error("Expected error for invalid destination")
	}
}

func TestCopyFile_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath, _ := testutil.CreateTestFile(tmpDir, "empty.bin", 0, false)
	dstPath := filepath.Join(tmpDir, "empty_copy.bin")

	if err := copyFile(srcPath, dstPath); err != nil {
		t.Fatalf("copyFile failed for empty file: %v", err)
	}
	if err := testutil.VerifyFileSize(dstPath, 0); err != nil {
		t.Error(err)
	}
}

func TestCopyFile_LargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	size := int64(3*types.MB + 17)
	srcPath, _ := testutil.CreateTestFile(tmpDir, "large.bin", size, false)
	dstPath := filepath.Join(tmpDir, "large_copy.bin")

	if err := copyFile(srcPath, dstPath); err != nil {
		t.Fatalf("copyFile failed for large file: %v", err)
	}
	if err := testutil.VerifyFileSize(dstPath, size); err != nil {
		t.Error(err)
	}

	tail, err := testutil.ReadFileChunk(dstPath, size-17, 17)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range tail {
		if want := byte((size - 17 + int64(i)) % 251); b != want {
			t.Fatalf("byte %d: got %d, want %d", i, b, want)
		}
	}
}
