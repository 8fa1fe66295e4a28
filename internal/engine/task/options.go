package task

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/engine/verify"
)

// Option configures a Task at creation.
type Option func(*Task) error

// WithHeaders adds request headers (cookies, auth, ...) to every request.
func WithHeaders(h http.Header) Option {
	return func(t *Task) error {
		for key, vals := range h {
			t.headers[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
		}
		return nil
	}
}

// WithAcceptedSize treats an existing destination of exactly n bytes as a
// finished download.
func WithAcceptedSize(n int64) Option {
	return func(t *Task) error {
		if n < 0 {
			return errors.New("accepted size must not be negative")
		}
		t.acceptedSize = n
		return nil
	}
}

// WithInitTotalSize probes the total size during New. When onlyIfResuming is
// set the probe only happens if a staging file is being resumed.
func WithInitTotalSize(onlyIfResuming bool) Option {
	return func(t *Task) error {
		t.initTotalSize = true
		t.initTotalSizeOnlyExist = onlyIfResuming
		return nil
	}
}

// WithChecksum verifies the staged file before finalizing. The value is
// "algo:hex" or a bare hex digest.
func WithChecksum(s string) Option {
	return func(t *Task) error {
		c, err := verify.Parse(s)
		if err != nil {
			return err
		}
		t.checksum = &c
		return nil
	}
}

// WithFetcher replaces the HTTP transport.
func WithFetcher(f engine.Fetcher) Option {
	return func(t *Task) error {
		if f == nil {
			return errors.New("fetcher must not be nil")
		}
		t.fetcher = f
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Task) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		t.logger = l
		return nil
	}
}

// WithRuntime applies user settings. The default fetcher is built from it.
func WithRuntime(rc *types.RuntimeConfig) Option {
	return func(t *Task) error {
		t.runtime = rc
		return nil
	}
}

// WithClock overrides time.Now for speed sampling.
func WithClock(now func() time.Time) Option {
	return func(t *Task) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		t.now = now
		return nil
	}
}
