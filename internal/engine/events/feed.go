package events

import (
	"sync"

	"github.com/surge-downloader/trickle/internal/engine/types"
)

// Feed is a single-producer event channel for one run of a task.
//
// Publish never blocks. While the consumer is behind, non-terminal messages
// are coalesced so only the newest one waits for room, and the last buffer
// slot is kept for the terminal message. Publishing after Close and closing
// twice are no-ops.
type Feed struct {
	mu      sync.Mutex
	ch      chan any
	pending any // newest non-terminal message that did not fit
	closed  bool
}

// NewFeed creates an open feed buffered at types.ProgressChannelBuffer.
func NewFeed() *Feed {
	return newFeed(types.ProgressChannelBuffer)
}

func newFeed(size int) *Feed {
	if size < 2 {
		size = 2
	}
	return &Feed{ch: make(chan any, size)}
}

// C returns the receive side of the feed. It is closed after the terminal event.
func (f *Feed) C() <-chan any {
	return f.ch
}

// Publish queues msg without blocking and reports whether it reached the
// channel. A non-terminal message that does not fit replaces any earlier
// pending one and is sent once the consumer frees a slot.
func (f *Feed) Publish(msg any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}

	f.flushLocked()

	if IsTerminal(msg) {
		// A newer state supersedes the pending message
		f.pending = nil
		select {
		case f.ch <- msg:
			return true
		default:
			return false
		}
	}

	if f.pending == nil && f.hasRoomLocked() {
		f.ch <- msg
		return true
	}
	f.pending = msg
	return false
}

// hasRoomLocked reports whether a non-terminal message fits without taking
// the slot held back for the terminal message. Only the producer sends, under
// f.mu, so the room cannot shrink before the send.
func (f *Feed) hasRoomLocked() bool {
	return len(f.ch) < cap(f.ch)-1
}

func (f *Feed) flushLocked() {
	if f.pending != nil && f.hasRoomLocked() {
		f.ch <- f.pending
		f.pending = nil
	}
}

// Close closes the channel once, dropping any pending message.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.pending = nil
	close(f.ch)
}

// Closed reports whether Close has been called.
func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
