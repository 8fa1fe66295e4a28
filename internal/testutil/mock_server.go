// Package testutil provides testing utilities for the trickle download engine.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer is a configurable HTTP test server for download testing.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize         int64         // Size of the served file
	SupportsRanges   bool          // Whether to honor HTTP Range requests
	ContentType      string        // Content-Type header value
	Filename         string        // Filename in Content-Disposition header
	RandomData       bool          // If true, serve random data; otherwise a byte pattern
	OmitLength       bool          // Send neither Content-Length nor Content-Range
	Latency          time.Duration // Artificial latency per request
	ChunkLatency     time.Duration // Latency after every written chunk
	ChunkSize        int64         // Bytes written (and flushed) per write
	FailAfterBytes   int64         // Drop the connection after this many bytes per request (0 = never)
	FailOnNthRequest int           // Respond 500 on the Nth request (0 = never)
	HoldAfterBytes   int64         // Block each response after this many bytes until Release (0 = never)

	// Tracking
	RequestCount   atomic.Int64
	BytesServed    atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
	FailedRequests atomic.Int64

	mu           sync.Mutex
	rangeHeaders []string
	held         chan struct{} // signalled when a response reaches HoldAfterBytes
	release      chan struct{}
	releaseOnce  sync.Once

	// Internal
	data          []byte
	CustomHandler http.HandlerFunc
}

// MockServerOption is a function that configures a MockServer.
type MockServerOption func(*MockServer)

// WithHandler sets a custom request handler.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) {
		m.CustomHandler = h
	}
}

// WithFileSize sets the file size to serve.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) {
		m.FileSize = size
	}
}

// WithRangeSupport enables or disables Range request support.
func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) {
		m.SupportsRanges = enabled
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) {
		m.ContentType = ct
	}
}

// WithFilename sets the filename in Content-Disposition header.
func WithFilename(name string) MockServerOption {
	return func(m *MockServer) {
		m.Filename = name
	}
}

// WithRandomData enables serving random bytes instead of the default pattern.
func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) {
		m.RandomData = random
	}
}

// WithData serves exactly the given content.
func WithData(data []byte) MockServerOption {
	return func(m *MockServer) {
		m.data = append([]byte(nil), data...)
		m.FileSize = int64(len(data))
	}
}

// WithoutLength omits Content-Length and Content-Range from responses.
func WithoutLength() MockServerOption {
	return func(m *MockServer) {
		m.OmitLength = true
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.Latency = d
	}
}

// WithChunkLatency adds artificial latency after every chunk.
func WithChunkLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.ChunkLatency = d
	}
}

// WithChunkSize sets how many bytes are written and flushed per write.
func WithChunkSize(n int64) MockServerOption {
	return func(m *MockServer) {
		m.ChunkSize = n
	}
}

// WithFailAfterBytes causes the connection to fail after serving N bytes.
func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
	}
}

// WithFailOnNthRequest causes the Nth request to fail.
func WithFailOnNthRequest(n int) MockServerOption {
	return func(m *MockServer) {
		m.FailOnNthRequest = n
	}
}

// WithHoldAfterBytes blocks every response after N bytes until Release is called
// or the client goes away.
func WithHoldAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.HoldAfterBytes = n
	}
}

// NewMockServerT creates a new mock HTTP server and skips the test if binding fails.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := &MockServer{
		FileSize:       1024 * 1024, // 1MB default
		SupportsRanges: true,
		ContentType:    "application/octet-stream",
		Filename:       "testfile.bin",
		ChunkSize:      32 * 1024,
		held:           make(chan struct{}, 16),
		release:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if int64(len(m.data)) != m.FileSize {
		m.data = make([]byte, m.FileSize)
		if m.RandomData {
			_, _ = rand.Read(m.data)
		} else {
			for i := range m.data {
				m.data[i] = byte(i % 251)
			}
		}
	}

	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handleRequest))
	t.Cleanup(func() {
		m.Release()
		m.Close()
	})
	return m
}

// URL returns the server's URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Data returns a copy of the served content.
func (m *MockServer) Data() []byte {
	return append([]byte(nil), m.data...)
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// Held returns a channel that receives once for every response that reaches HoldAfterBytes.
func (m *MockServer) Held() <-chan struct{} {
	return m.held
}

// Release unblocks held responses. Safe to call more than once.
func (m *MockServer) Release() {
	m.releaseOnce.Do(func() { close(m.release) })
}

// RangeHeaders returns the Range header of every request, in order ("" when absent).
func (m *MockServer) RangeHeaders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rangeHeaders...)
}

// Stats returns a summary of server statistics.
func (m *MockServer) Stats() MockServerStats {
	return MockServerStats{
		TotalRequests:  m.RequestCount.Load(),
		BytesServed:    m.BytesServed.Load(),
		RangeRequests:  m.RangeRequests.Load(),
		FullRequests:   m.FullRequests.Load(),
		FailedRequests: m.FailedRequests.Load(),
	}
}

// MockServerStats contains server statistics.
type MockServerStats struct {
	TotalRequests  int64
	BytesServed    int64
	RangeRequests  int64
	FullRequests   int64
	FailedRequests int64
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	reqNum := m.RequestCount.Add(1)
	rangeHeader := r.Header.Get("Range")

	m.mu.Lock()
	m.rangeHeaders = append(m.rangeHeaders, rangeHeader)
	m.mu.Unlock()

	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}

	if m.FailOnNthRequest > 0 && reqNum == int64(m.FailOnNthRequest) {
		m.FailedRequests.Add(1)
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}

	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	start := int64(0)
	end := m.FileSize - 1

	if rangeHeader != "" && m.SupportsRanges {
		m.RangeRequests.Add(1)

		var err error
		start, end, err = parseRange(rangeHeader, m.FileSize)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", m.FileSize))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		m.setCommonHeaders(w, start, end)
		if !m.OmitLength {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
		}
		w.WriteHeader(http.StatusPartialContent)
	} else {
		m.FullRequests.Add(1)
		m.setCommonHeaders(w, 0, m.FileSize-1)
		w.WriteHeader(http.StatusOK)
	}

	m.serve(w, r, start, end)
}

func (m *MockServer) serve(w http.ResponseWriter, r *http.Request, start, end int64) {
	flusher, _ := w.(http.Flusher)
	length := end - start + 1
	written := int64(0)
	heldOnce := false

	for written < length {
		if m.FailAfterBytes > 0 && written >= m.FailAfterBytes {
			m.FailedRequests.Add(1)
			// Abruptly end the response short of Content-Length
			return
		}

		if m.HoldAfterBytes > 0 && !heldOnce && written >= m.HoldAfterBytes {
			heldOnce = true
			select {
			case m.held <- struct{}{}:
			default:
			}
			select {
			case <-m.release:
			case <-r.Context().Done():
				return
			}
		}

		chunk := m.ChunkSize
		if remaining := length - written; remaining < chunk {
			chunk = remaining
		}
		if m.FailAfterBytes > 0 && written+chunk > m.FailAfterBytes {
			chunk = m.FailAfterBytes - written
		}
		if m.HoldAfterBytes > 0 && !heldOnce && written+chunk > m.HoldAfterBytes {
			chunk = m.HoldAfterBytes - written
		}

		dataStart := start + written
		n, err := w.Write(m.data[dataStart : dataStart+chunk])
		if err != nil {
			return // Client disconnected
		}
		if flusher != nil {
			flusher.Flush()
		}

		written += int64(n)
		m.BytesServed.Add(int64(n))

		if m.ChunkLatency > 0 {
			time.Sleep(m.ChunkLatency)
		}
	}
}

func (m *MockServer) setCommonHeaders(w http.ResponseWriter, start, end int64) {
	w.Header().Set("Content-Type", m.ContentType)
	if !m.OmitLength {
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	}
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}
}

// parseRange parses an HTTP Range header and returns start, end positions.
// Handles formats like "bytes=0-499", "bytes=500-" and "bytes=-500".
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	first, last, ok := strings.Cut(rangeSpec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error

	switch {
	case first == "":
		// Suffix range: -500 means last 500 bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		start, end = fileSize-n, fileSize-1
	default:
		start, err = strconv.ParseInt(first, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		end = fileSize - 1
		if last != "" {
			end, err = strconv.ParseInt(last, 10, 64)
			if err != nil {
				return 0, 0, err
			}
			end = min(end, fileSize-1)
		}
	}

	if start < 0 || start >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range not satisfiable")
	}

	return start, end, nil
}
