// Package staging manages the on-disk partial file of a download.
//
// The staging file lives next to the destination at path+".tmp". Its byte
// length is the resume offset: nothing else about a download is persisted.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// ErrLocked is returned by Lock when another run holds the staging file.
var ErrLocked = errors.New("staging file is in use by another run")

// Store owns the staging and destination paths of one task.
type Store struct {
	dest    string
	staging string
	lock    *flock.Flock
}

// New returns a store for the destination path.
func New(dest string) *Store {
	staging := dest + types.StagingSuffix
	return &Store{
		dest:    dest,
		staging: staging,
		lock:    flock.New(staging + types.LockSuffix),
	}
}

func (s *Store) DestinationPath() string { return s.dest }
func (s *Store) StagingPath() string     { return s.staging }

// Length returns the staging file's size, 0 when it does not exist.
func (s *Store) Length() (int64, error) {
	info, err := os.Stat(s.staging)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, types.FilesystemError("stat staging", err)
	}
	return info.Size(), nil
}

// Exists reports whether a staging file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.staging)
	return err == nil
}

// Discard removes the staging file. A missing file is not an error.
func (s *Store) Discard() error {
	if err := os.Remove(s.staging); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.FilesystemError("remove staging", err)
	}
	return nil
}

// Reset truncates the staging file to zero bytes, creating it if needed.
func (s *Store) Reset() error {
	f, err := os.Create(s.staging)
	if err != nil {
		return types.FilesystemError("reset staging", err)
	}
	if err := f.Close(); err != nil {
		return types.FilesystemError("reset staging", err)
	}
	return nil
}

// OpenAppend opens the staging file for appending, creating it if needed.
func (s *Store) OpenAppend() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.staging), 0755); err != nil {
		return nil, types.FilesystemError("create download dir", err)
	}
	f, err := os.OpenFile(s.staging, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, types.FilesystemError("open staging", err)
	}
	return f, nil
}

// Finalize moves the staging file to the destination path.
func (s *Store) Finalize() error {
	if err := os.Rename(s.staging, s.dest); err != nil {
		utils.Debug("Rename %s failed, copying instead: %v", s.staging, err)
		// Fallback: copy if rename fails (cross-device)
		if copyErr := copyFile(s.staging, s.dest); copyErr != nil {
			_ = os.Remove(s.dest)
			return types.FilesystemError("finalize", copyErr)
		}
		if err := os.Remove(s.staging); err != nil {
			return types.FilesystemError("finalize", err)
		}
	}
	return nil
}

// DestinationSize returns the destination file's size and whether it exists.
func (s *Store) DestinationSize() (int64, bool, error) {
	info, err := os.Stat(s.dest)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.FilesystemError("stat destination", err)
	}
	return info.Size(), true, nil
}

// RemoveDestination deletes the destination file. A missing file is not an error.
func (s *Store) RemoveDestination() error {
	if err := os.Remove(s.dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.FilesystemError("remove destination", err)
	}
	return nil
}

// Lock takes an exclusive lock on the staging file for the duration of a run,
// so two processes never append to the same staging file.
func (s *Store) Lock() error {
	if err := os.MkdirAll(filepath.Dir(s.staging), 0755); err != nil {
		return types.FilesystemError("create download dir", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return types.FilesystemError("lock staging", err)
	}
	if !ok {
		return types.FilesystemError("lock staging", ErrLocked)
	}
	return nil
}

// Unlock releases the run lock and removes the lock file.
func (s *Store) Unlock() error {
	if !s.lock.Locked() {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return types.FilesystemError("unlock staging", err)
	}
	_ = os.Remove(s.lock.Path())
	return nil
}

// EnsureSpace fails when the destination volume has fewer than need free bytes.
func (s *Store) EnsureSpace(need int64) error {
	if need <= 0 {
		return nil
	}
	usage, err := disk.Usage(filepath.Dir(s.dest))
	if err != nil {
		utils.Debug("Free space check skipped for %s: %v", s.dest, err)
		return nil
	}
	if usage.Free < uint64(need) {
		return types.FilesystemError("check free space", fmt.Errorf("need %s, have %s",
			utils.ConvertBytesToHumanReadable(need),
			utils.ConvertBytesToHumanReadable(int64(usage.Free))))
	}
	return nil
}

// copyFile copies a file from src to dst (fallback when rename fails)
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			utils.Debug("Error closing input file: %v", err)
		}
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			utils.Debug("Error closing output file: %v", err)
		}
	}()

	buf := make([]byte, types.MB)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return err
	}
	return out.Sync()
}
