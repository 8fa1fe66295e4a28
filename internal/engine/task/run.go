package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/h2non/filetype"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/speed"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/engine/verify"
	"github.com/surge-downloader/trickle/internal/utils"
)

// errStopped ends a run whose task left the running state.
var errStopped = errors.New("run stopped")

// run is the single goroutine that owns a run's network stream and staging
// file.
func (t *Task) run(ctx context.Context, cancel context.CancelFunc, feed *events.Feed, done chan struct{}) {
	defer close(done)
	defer cancel()

	started := t.now()
	err := t.transfer(ctx, feed)
	t.finish(feed, err, t.now().Sub(started))
}

func (t *Task) transfer(ctx context.Context, feed *events.Feed) error {
	offset, err := t.store.Length()
	if err != nil {
		return err
	}

	info, err := engine.RequestFileInfo(ctx, t.fetcher, t.url, t.headers, offset)
	if err != nil {
		return err
	}
	defer func() { _ = info.Body.Close() }()

	switch {
	case !info.SupportsRange && offset > 0:
		// The body starts at byte 0; appending it would corrupt the file
		t.logger.Info("server ignored range request, restarting from zero", "discarded", offset)
		if err := t.store.Reset(); err != nil {
			return err
		}
		offset = 0

	case offset > info.TotalSize:
		t.logger.Warn("discarding staging file", "error", types.StaleStagingError(offset, info.TotalSize))
		_ = info.Body.Close()
		if err := t.store.Reset(); err != nil {
			return err
		}
		offset = 0
		if info, err = engine.RequestFileInfo(ctx, t.fetcher, t.url, t.headers, 0); err != nil {
			return err
		}
	}
	total := info.TotalSize

	t.mu.Lock()
	if t.progress.State != types.StateRunning {
		t.mu.Unlock()
		return errStopped
	}
	t.supportsRange = info.SupportsRange
	t.filename = info.Filename
	t.progress = types.ProgressUpdate{
		State:         types.StateRunning,
		ReceivedBytes: offset,
		TotalSize:     total,
	}
	t.mu.Unlock()

	t.logger.Debug("negotiated", "total", total, "offset", offset, "range", info.SupportsRange)
	feed.Publish(events.DownloadStartedMsg{
		DownloadID:    t.ID,
		URL:           t.url,
		Filename:      info.Filename,
		Total:         total,
		ResumeOffset:  offset,
		SupportsRange: info.SupportsRange,
		DestPath:      t.store.DestinationPath(),
	})

	if offset < total {
		if t.runtime.ShouldCheckDiskSpace() {
			if err := t.store.EnsureSpace(total - offset); err != nil {
				return err
			}
		}
		if err := t.stream(ctx, feed, info.Body, offset, total); err != nil {
			return err
		}
	} else if !t.store.Exists() {
		// Empty resource: finalize still needs a staging file
		if err := t.store.Reset(); err != nil {
			return err
		}
	}

	if t.checksum != nil {
		if err := verify.File(ctx, t.store.StagingPath(), *t.checksum); err != nil {
			if errors.Is(err, verify.ErrChecksumMismatch) {
				return types.IntegrityError("verify", err)
			}
			if ctx.Err() != nil {
				return errStopped
			}
			return types.FilesystemError("verify", err)
		}
		t.logger.Debug("checksum verified", "checksum", t.checksum.String())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress.State != types.StateRunning {
		return errStopped
	}
	if err := t.store.Finalize(); err != nil {
		return err
	}
	t.progress = types.ProgressUpdate{
		State:            types.StateCompleted,
		ReceivedBytes:    total,
		TotalSize:        total,
		SpeedBytesPerSec: t.progress.SpeedBytesPerSec,
		SpeedSampleCount: t.progress.SpeedSampleCount,
	}
	return nil
}

// stream appends body to the staging file chunk by chunk, publishing a
// ProgressMsg after each one.
func (t *Task) stream(ctx context.Context, feed *events.Feed, body io.Reader, offset, total int64) error {
	f, err := t.store.OpenAppend()
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Sync()
			_ = f.Close()
		}
	}()

	tracker := speed.New(t.runtime.GetSpeedSampleInterval(), t.runtime.GetSpeedWindowSize())
	tracker.Reset(t.now())
	started := t.now()

	received := offset
	buf := make([]byte, t.runtime.GetReadBufferSize())
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			// A chunk that arrives after Stop is dropped, not persisted
			if t.State() != types.StateRunning {
				return errStopped
			}
			if received+int64(n) > total {
				return types.NetworkError("read", nil, fmt.Sprintf("server sent more than %d bytes", total))
			}

			if _, err := f.Write(buf[:n]); err != nil {
				return types.FilesystemError("write staging", err)
			}
			received += int64(n)
			est := tracker.Observe(int64(n), t.now())

			t.mu.Lock()
			update := types.ProgressUpdate{
				State:            t.progress.State,
				ReceivedBytes:    received,
				TotalSize:        total,
				SpeedBytesPerSec: est.BytesPerSec,
				SpeedSampleCount: est.Samples,
			}
			t.progress = update
			t.mu.Unlock()

			feed.Publish(events.ProgressMsg{
				DownloadID: t.ID,
				Update:     update,
				Elapsed:    t.now().Sub(started),
			})
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if t.State() != types.StateRunning {
					return errStopped
				}
				return types.NetworkError("read", ctxErr, readErr.Error())
			}
			return types.NetworkError("read", readErr, "")
		}
	}

	if received != total {
		return types.NetworkError("read", io.ErrUnexpectedEOF, fmt.Sprintf("got %d of %d bytes", received, total))
	}

	closed = true
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return types.FilesystemError("sync staging", err)
	}
	if err := f.Close(); err != nil {
		return types.FilesystemError("close staging", err)
	}
	return nil
}

// finish settles the task after a run and ends the feed with one terminal message.
func (t *Task) finish(feed *events.Feed, err error, elapsed time.Duration) {
	var contentType string
	if err == nil {
		if kind, matchErr := filetype.MatchFile(t.store.DestinationPath()); matchErr == nil && kind != filetype.Unknown {
			contentType = kind.MIME.Value
		}
	}

	t.mu.Lock()
	var msg any
	switch {
	case err == nil:
		t.logger.Info("download complete",
			"size", utils.ConvertBytesToHumanReadable(t.progress.TotalSize),
			"elapsed", elapsed.Round(time.Millisecond))
		msg = events.DownloadCompleteMsg{
			DownloadID:  t.ID,
			Filename:    t.filename,
			Elapsed:     elapsed,
			Total:       t.progress.TotalSize,
			ContentType: contentType,
		}

	case t.cancelling:
		msg = events.DownloadRemovedMsg{DownloadID: t.ID, Filename: t.filename}

	case t.progress.State == types.StateStopped:
		msg = events.DownloadPausedMsg{DownloadID: t.ID, Filename: t.filename}

	default:
		t.logger.Error("download failed", "error", err)
		t.progress = t.progress.With(types.StateStopped)
		msg = events.DownloadErrorMsg{DownloadID: t.ID, Filename: t.filename, Err: err}
	}

	if t.progress.State == types.StateStopped {
		// Keep received in step with what is durably staged
		if n, lenErr := t.store.Length(); lenErr == nil {
			t.progress.ReceivedBytes = n
		}
		t.progress.SpeedBytesPerSec = types.SpeedUnknown
		t.progress.SpeedSampleCount = 0
		if paused, ok := msg.(events.DownloadPausedMsg); ok {
			paused.Downloaded = t.progress.ReceivedBytes
			msg = paused
		}
	}
	t.mu.Unlock()

	if unlockErr := t.store.Unlock(); unlockErr != nil {
		t.logger.Warn("failed to release staging lock", "error", unlockErr)
	}

	feed.Publish(msg)
	feed.Close()
}
