// Package task runs one resumable download: it negotiates a range with the
// server, appends to the staging file, reports progress on an event feed and
// renames the verified file into place.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/staging"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/engine/verify"
	"github.com/surge-downloader/trickle/internal/utils"
)

// Task is a single download identified by its URL and destination path.
//
// All transfer I/O happens on one goroutine per run. Start, Stop and Cancel
// may be called from any goroutine.
type Task struct {
	ID  string
	url string

	headers                http.Header
	acceptedSize           int64 // -1 when unset
	initTotalSize          bool
	initTotalSizeOnlyExist bool
	checksum               *verify.Checksum
	runtime                *types.RuntimeConfig
	fetcher                engine.Fetcher
	logger                 *slog.Logger
	now                    func() time.Time

	store *staging.Store

	mu            sync.Mutex
	progress      types.ProgressUpdate
	supportsRange bool
	filename      string
	feed          *events.Feed
	cancelRun     context.CancelFunc
	done          chan struct{} // closed when the current run's goroutine exits
	cancelling    bool
}

// New creates a task for rawurl saved at path. It inspects the destination
// and staging files to pick the initial state:
//   - destination present with the accepted size: completed, no network
//   - non-empty staging file: stopped, resuming from its length
//   - otherwise idle
func New(ctx context.Context, rawurl, path string, opts ...Option) (*Task, error) {
	if _, err := url.ParseRequestURI(rawurl); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawurl, err)
	}
	if path == "" {
		return nil, errors.New("destination path must not be empty")
	}

	t := &Task{
		ID:           uuid.NewString(),
		url:          rawurl,
		headers:      make(http.Header),
		acceptedSize: -1,
		now:          time.Now,
		store:        staging.New(path),
		feed:         events.NewFeed(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.fetcher == nil {
		t.fetcher = engine.NewHTTPFetcher(t.runtime)
	}
	if t.logger == nil {
		t.logger = utils.Logger()
	}
	t.logger = t.logger.With("task_id", t.ID, "url", rawurl)
	t.filename = utils.FilenameFromURL(rawurl)

	size, exists, err := t.store.DestinationSize()
	if err != nil {
		return nil, err
	}
	if exists && t.acceptedSize >= 0 {
		if size == t.acceptedSize {
			t.logger.Debug("destination already complete", "size", size)
			t.progress = types.ProgressUpdate{State: types.StateCompleted, ReceivedBytes: size, TotalSize: size}
			t.feed.Close()
			return t, nil
		}
		t.logger.Info("removing destination with unexpected size", "size", size, "accepted", t.acceptedSize)
		if err := t.store.RemoveDestination(); err != nil {
			return nil, err
		}
	}

	offset, err := t.store.Length()
	if err != nil {
		return nil, err
	}
	if offset == 0 {
		if err := t.store.Discard(); err != nil {
			return nil, err
		}
	}

	t.progress = types.ProgressUpdate{State: types.StateIdle, ReceivedBytes: offset}
	if offset > 0 {
		t.progress.State = types.StateStopped
		t.logger.Debug("resuming from staging file", "offset", offset)
	}

	if t.initTotalSize && (offset > 0 || !t.initTotalSizeOnlyExist) {
		if _, err := t.probe(ctx); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Task) URL() string  { return t.url }
func (t *Task) Path() string { return t.store.DestinationPath() }

// Filename is the server-suggested name, or the URL's last segment until a
// server has been asked.
func (t *Task) Filename() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filename
}

// State returns the current lifecycle state.
func (t *Task) State() types.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.State
}

// Progress returns the latest progress snapshot.
func (t *Task) Progress() types.ProgressUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SupportsRange reports what the last negotiation found.
func (t *Task) SupportsRange() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supportsRange
}

// GetReceivedSize returns the last known number of staged bytes.
func (t *Task) GetReceivedSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.ReceivedBytes
}

// GetTotalSize returns the known total, probing the server when it is unknown.
func (t *Task) GetTotalSize(ctx context.Context) (int64, error) {
	t.mu.Lock()
	total := t.progress.TotalSize
	t.mu.Unlock()
	if total > 0 {
		return total, nil
	}
	return t.probe(ctx)
}

func (t *Task) probe(ctx context.Context) (int64, error) {
	result, err := engine.ProbeServer(ctx, t.fetcher, t.url, t.headers)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// A running negotiation owns these fields
	if t.progress.State != types.StateRunning {
		t.progress.TotalSize = result.FileSize
		t.supportsRange = result.SupportsRange
		t.filename = result.Filename
	}
	return result.FileSize, nil
}

// Events returns the feed of the current run. Once a run has ended it keeps
// returning that run's closed feed until the next Start, so call it after
// Start to follow a new run. The feed yields events.DownloadStartedMsg and
// events.ProgressMsg values and is closed after exactly one terminal message:
// DownloadCompleteMsg, DownloadPausedMsg, DownloadErrorMsg or DownloadRemovedMsg.
func (t *Task) Events() <-chan any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.feed.C()
}

// Start begins or resumes the transfer in the background. ctx bounds the
// whole run; cancelling it ends the run with an error event.
func (t *Task) Start(ctx context.Context, deleteExisting bool) error {
	t.mu.Lock()
	if t.progress.State == types.StateRunning {
		t.mu.Unlock()
		return types.StateError("start", types.StateRunning)
	}
	prev := t.done
	t.mu.Unlock()

	// A stopped run may still be tearing down
	if prev != nil {
		<-prev
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.progress.State {
	case types.StateRunning, types.StateCompleted:
		return types.StateError("start", t.progress.State)
	}

	_, exists, err := t.store.DestinationSize()
	if err != nil {
		return err
	}
	if exists {
		if !deleteExisting {
			return types.FileExistsError("start", t.store.DestinationPath())
		}
		if err := t.store.RemoveDestination(); err != nil {
			return err
		}
	}

	if err := t.store.Lock(); err != nil {
		return err
	}

	if t.feed.Closed() {
		t.feed = events.NewFeed()
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancelRun = cancel
	t.done = make(chan struct{})
	t.progress = types.ProgressUpdate{
		State:            types.StateRunning,
		ReceivedBytes:    t.progress.ReceivedBytes,
		SpeedBytesPerSec: types.SpeedUnknown,
	}

	t.logger.Info("download starting", "offset", t.progress.ReceivedBytes)
	go t.run(runCtx, cancel, t.feed, t.done)
	return nil
}

// Stop pauses a running transfer, keeping the staged bytes for a later Start.
// It returns once the run has ended and does nothing if the task is not running.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.progress.State != types.StateRunning {
		t.mu.Unlock()
		return
	}
	t.progress = t.progress.With(types.StateStopped)
	cancel, done := t.cancelRun, t.done
	t.mu.Unlock()

	t.logger.Info("download stopping")
	cancel()
	<-done
}

// Cancel ends any run and deletes both the staging and destination files,
// leaving the task idle with nothing received. It is valid in every state.
func (t *Task) Cancel() error {
	t.mu.Lock()
	t.cancelling = true
	if t.progress.State == types.StateRunning {
		t.progress = t.progress.With(types.StateStopped)
		t.cancelRun()
	}
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() { t.cancelling = false }()

	// No run closed this feed. Publish does not block, so holding t.mu is safe
	if !t.feed.Closed() {
		t.feed.Publish(events.DownloadRemovedMsg{DownloadID: t.ID, Filename: t.filename})
		t.feed.Close()
	}

	t.progress = types.ProgressUpdate{State: types.StateIdle, TotalSize: t.progress.TotalSize}
	t.logger.Info("download cancelled")

	return errors.Join(t.store.Discard(), t.store.RemoveDestination())
}
