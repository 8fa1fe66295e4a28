package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/testutil"
)

// fakeFetcher returns a canned response and records the request headers.
type fakeFetcher struct {
	status  int
	header  http.Header
	body    string
	length  int64
	err     error
	url     string
	headers []http.Header
}

func (f *fakeFetcher) Get(_ context.Context, rawurl string, headers http.Header) (*http.Response, error) {
	f.headers = append(f.headers, headers.Clone())
	if f.err != nil {
		return nil, f.err
	}
	reqURL, _ := url.Parse(rawurl)
	if f.url != "" {
		reqURL, _ = url.Parse(f.url)
	}
	h := f.header
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		StatusCode:    f.status,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(f.body)),
		ContentLength: f.length,
		Request:       &http.Request{URL: reqURL},
	}, nil
}

// =============================================================================
// RequestFileInfo Tests
// =============================================================================

func TestRequestFileInfo_PartialContent(t *testing.T) {
	f := &fakeFetcher{
		status: http.StatusPartialContent,
		header: http.Header{
			"Content-Range":       {"bytes 400-999/1000"},
			"Content-Type":        {"application/zip"},
			"Content-Disposition": {`attachment; filename="report.zip"`},
		},
		body:   strings.Repeat("x", 600),
		length: 600,
	}

	info, err := RequestFileInfo(context.Background(), f, "http://example.com/dl?id=1",
		http.Header{"Cookie": {"a=b"}, "Range": {"bytes=0-0"}}, 400)
	require.NoError(t, err)
	defer info.Body.Close()

	assert.Equal(t, int64(1000), info.TotalSize)
	assert.True(t, info.SupportsRange)
	assert.Equal(t, int64(400), info.Offset)
	assert.Equal(t, "report.zip", info.Filename)
	assert.Equal(t, "application/zip", info.ContentType)

	require.Len(t, f.headers, 1)
	assert.Equal(t, "bytes=400-", f.headers[0].Get("Range"), "caller Range is replaced")
	assert.Equal(t, "a=b", f.headers[0].Get("Cookie"))
}

func TestRequestFileInfo_FullContentMeansNoRangeSupport(t *testing.T) {
	f := &fakeFetcher{status: http.StatusOK, body: "abc", length: 1000}

	info, err := RequestFileInfo(context.Background(), f, "http://example.com/files/data.bin", nil, 300)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), info.TotalSize)
	assert.False(t, info.SupportsRange)
	assert.Equal(t, int64(0), info.Offset)
	assert.Equal(t, "data.bin", info.Filename)
}

func TestRequestFileInfo_UnknownTotalStarFallsBackToLength(t *testing.T) {
	f := &fakeFetcher{
		status: http.StatusPartialContent,
		header: http.Header{"Content-Range": {"bytes 100-199/*"}},
		length: 100,
	}

	info, err := RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(200), info.TotalSize)
}

func TestRequestFileInfo_NoLength(t *testing.T) {
	f := &fakeFetcher{status: http.StatusOK, length: -1}

	_, err := RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNetwork))
}

func TestRequestFileInfo_StartMismatch(t *testing.T) {
	f := &fakeFetcher{
		status: http.StatusPartialContent,
		header: http.Header{"Content-Range": {"bytes 0-999/1000"}},
		length: 1000,
	}

	_, err := RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 400)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNetwork))
}

func TestRequestFileInfo_RangeNotSatisfiable(t *testing.T) {
	f := &fakeFetcher{
		status: http.StatusRequestedRangeNotSatisfiable,
		header: http.Header{"Content-Range": {"bytes */1000"}},
	}

	info, err := RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.TotalSize)
	assert.True(t, info.SupportsRange)

	n, _ := io.Copy(io.Discard, info.Body)
	assert.Equal(t, int64(0), n)

	// Rejected start inside the resource makes no sense
	_, err = RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 10)
	assert.True(t, errors.Is(err, types.ErrNetwork))
}

func TestRequestFileInfo_ServerError(t *testing.T) {
	f := &fakeFetcher{status: http.StatusInternalServerError}

	_, err := RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNetwork))
	assert.Contains(t, err.Error(), "500")
}

func TestRequestFileInfo_TransportError(t *testing.T) {
	f := &fakeFetcher{err: context.Canceled}

	_, err := RequestFileInfo(context.Background(), f, "http://example.com/f", nil, 0)
	assert.True(t, errors.Is(err, types.ErrNetwork))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRequestFileInfo_FilenameFallbacks(t *testing.T) {
	f := &fakeFetcher{status: http.StatusOK, length: 1, url: "http://cdn.example.com/real-name.iso"}
	info, err := RequestFileInfo(context.Background(), f, "http://example.com/redirect", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "real-name.iso", info.Filename)

	f = &fakeFetcher{
		status: http.StatusOK,
		length: 1,
		header: http.Header{"Content-Disposition": {`attachment; filename="../../etc/passwd"`}},
	}
	info, err = RequestFileInfo(context.Background(), f, "http://example.com/", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "passwd", info.Filename)

	f = &fakeFetcher{status: http.StatusOK, length: 1, url: "http://example.com/"}
	info, err = RequestFileInfo(context.Background(), f, "http://example.com/", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "download.bin", info.Filename)
}

// =============================================================================
// ParseContentRange Tests
// =============================================================================

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header     string
		start, end int64
		total      int64
		wantErr    bool
	}{
		{"bytes 0-499/1000", 0, 499, 1000, false},
		{"bytes 500-999/1000", 500, 999, 1000, false},
		{"bytes 10-19/*", 10, 19, -1, false},
		{"", 0, 0, 0, true},
		{"items 0-1/2", 0, 0, 0, true},
		{"bytes 0-499", 0, 0, 0, true},
		{"bytes 5-1/10", 0, 0, 0, true},
		{"bytes 0-10/10", 0, 0, 0, true},
		{"bytes a-1/10", 0, 0, 0, true},
	}

	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		if tt.wantErr {
			assert.Error(t, err, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.start, start, tt.header)
		assert.Equal(t, tt.end, end, tt.header)
		assert.Equal(t, tt.total, total, tt.header)
	}
}

// =============================================================================
// Against a real server
// =============================================================================

func TestRequestFileInfo_MockServer(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(1000),
		testutil.WithFilename("served.bin"),
	)
	fetcher := NewHTTPFetcher(nil)

	info, err := RequestFileInfo(context.Background(), fetcher, server.URL(), nil, 250)
	require.NoError(t, err)
	data, err := io.ReadAll(info.Body)
	require.NoError(t, err)
	require.NoError(t, info.Body.Close())

	assert.Equal(t, int64(1000), info.TotalSize)
	assert.True(t, info.SupportsRange)
	assert.Equal(t, "served.bin", info.Filename)
	assert.Equal(t, server.Data()[250:], data)
}

func TestRequestFileInfo_ExtendedFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		want        string
	}{
		{"extended only", `attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`, "résumé.pdf"},
		{"extended wins", `attachment; filename="fallback.pdf"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`, "résumé.pdf"},
		{"plain", `attachment; filename="plain.pdf"`, "plain.pdf"},
		{"extended path stripped", `attachment; filename*=UTF-8''..%2F..%2Fevil.sh`, "evil.sh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockServerT(t, testutil.WithHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Disposition", tt.disposition)
				w.Header().Set("Content-Range", "bytes 0-3/4")
				w.Header().Set("Content-Length", "4")
				w.WriteHeader(http.StatusPartialContent)
				_, _ = io.WriteString(w, "data")
			}))

			info, err := RequestFileInfo(context.Background(), NewHTTPFetcher(nil), server.URL()+"/download?id=7", nil, 0)
			require.NoError(t, err)
			defer info.Body.Close()

			assert.Equal(t, tt.want, info.Filename)
		})
	}
}

func TestRequestFileInfo_MockServerWithoutRanges(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(1000),
		testutil.WithRangeSupport(false),
	)

	info, err := RequestFileInfo(context.Background(), NewHTTPFetcher(nil), server.URL(), nil, 300)
	require.NoError(t, err)
	defer info.Body.Close()

	assert.False(t, info.SupportsRange)
	assert.Equal(t, int64(1000), info.TotalSize)
	assert.Equal(t, int64(0), info.Offset)
}

func TestRequestFileInfo_MockServer416(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1000))

	info, err := RequestFileInfo(context.Background(), NewHTTPFetcher(nil), server.URL(), nil, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.TotalSize)
}

func TestProbeServer(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(4096),
		testutil.WithContentType("image/png"),
	)

	result, err := ProbeServer(context.Background(), NewHTTPFetcher(nil), server.URL(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), result.FileSize)
	assert.True(t, result.SupportsRange)
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, []string{"bytes=0-"}, server.RangeHeaders())
}
