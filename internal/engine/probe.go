package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vfaronov/httpheader"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// FileInfo is the outcome of one range negotiation. Body yields the resource
// from Offset onwards and must be closed by the caller.
type FileInfo struct {
	TotalSize     int64
	SupportsRange bool
	Offset        int64 // first byte Body carries
	Filename      string
	ContentType   string
	Body          io.ReadCloser
}

// RequestFileInfo sends GET with Range: bytes=<rangeStart>- and interprets the
// response:
//   - 206 with Content-Range: total from the header, range support true
//   - 200 with Content-Length: total from the length, range support false
//   - 416 with Content-Range: bytes */N: total N and an empty body
//
// Anything else, or a response with no derivable total, is a NetworkError.
func RequestFileInfo(ctx context.Context, f Fetcher, rawurl string, headers http.Header, rangeStart int64) (*FileInfo, error) {
	utils.Debug("Requesting %s from byte %d", rawurl, rangeStart)

	reqHeaders := make(http.Header, len(headers)+1)
	for key, vals := range headers {
		if http.CanonicalHeaderKey(key) == "Range" { // we set our own
			continue
		}
		reqHeaders[http.CanonicalHeaderKey(key)] = vals
	}
	reqHeaders.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))

	resp, err := f.Get(ctx, rawurl, reqHeaders)
	if err != nil {
		return nil, types.NetworkError("request", err, "")
	}

	info, err := parseResponse(resp, rangeStart)
	if err != nil {
		drain(resp.Body)
		return nil, err
	}

	info.Filename = resolveFilename(rawurl, resp)
	info.ContentType = resp.Header.Get("Content-Type")

	utils.Debug("Negotiated %s: status %d, total %d, range %v, offset %d",
		info.Filename, resp.StatusCode, info.TotalSize, info.SupportsRange, info.Offset)
	return info, nil
}

func parseResponse(resp *http.Response, rangeStart int64) (*FileInfo, error) {
	switch resp.StatusCode {
	case http.StatusPartialContent: // 206
		start, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, types.NetworkError("negotiate", err, "unreadable Content-Range")
		}
		if start != rangeStart {
			return nil, types.NetworkError("negotiate", nil,
				fmt.Sprintf("server returned range from %d, requested %d", start, rangeStart))
		}
		if total < 0 {
			// "bytes x-y/*": the remaining length still tells us the end
			if resp.ContentLength < 0 {
				return nil, types.NetworkError("negotiate", nil, "unknown total size")
			}
			total = start + resp.ContentLength
		}
		return &FileInfo{TotalSize: total, SupportsRange: true, Offset: start, Body: resp.Body}, nil

	case http.StatusOK: // 200 - server ignores Range header
		length := resp.ContentLength
		if length < 0 {
			if v := resp.Header.Get("Content-Length"); v != "" {
				length, _ = strconv.ParseInt(v, 10, 64)
			}
		}
		if length < 0 {
			return nil, types.NetworkError("negotiate", nil, "neither Content-Range nor Content-Length present")
		}
		return &FileInfo{TotalSize: length, SupportsRange: false, Offset: 0, Body: resp.Body}, nil

	case http.StatusRequestedRangeNotSatisfiable: // 416
		total, err := parseUnsatisfiedRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, types.NetworkError("negotiate", err, "range not satisfiable")
		}
		if rangeStart < total {
			return nil, types.NetworkError("negotiate", nil,
				fmt.Sprintf("range from %d rejected for %d byte resource", rangeStart, total))
		}
		drain(resp.Body)
		return &FileInfo{TotalSize: total, SupportsRange: true, Offset: rangeStart, Body: http.NoBody}, nil

	default:
		return nil, types.NetworkError("negotiate", nil, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}
}

// ParseContentRange parses "bytes start-end/total". total is -1 for "*".
func ParseContentRange(header string) (start, end, total int64, err error) {
	if header == "" {
		return 0, 0, 0, errors.New("missing Content-Range header")
	}
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range unit: %s", header)
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	if start, err = strconv.ParseInt(strings.TrimSpace(first), 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(strings.TrimSpace(last), 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if end < start {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range bounds: %s", header)
	}

	if size = strings.TrimSpace(size); size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	if end >= total {
		return 0, 0, 0, fmt.Errorf("range end %d beyond total %d", end, total)
	}
	return start, end, total, nil
}

// parseUnsatisfiedRange parses the "bytes */N" form sent with a 416.
func parseUnsatisfiedRange(header string) (int64, error) {
	size, ok := strings.CutPrefix(header, "bytes */")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range for 416: %q", header)
	}
	return strconv.ParseInt(strings.TrimSpace(size), 10, 64)
}

// resolveFilename prefers Content-Disposition, then the final URL's last segment.
func resolveFilename(rawurl string, resp *http.Response) string {
	// filename* (RFC 8187) is decoded into name and preferred over filename
	if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
		if name = utils.SanitizeFilename(name); name != "" {
			return name
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if name := utils.FilenameFromURL(resp.Request.URL.String()); name != "" {
			return name
		}
	}
	if name := utils.FilenameFromURL(rawurl); name != "" {
		return name
	}
	return utils.DefaultFilename
}

// ProbeResult contains the metadata from a server probe
type ProbeResult struct {
	FileSize      int64
	SupportsRange bool
	Filename      string
	ContentType   string
}

// ProbeServer negotiates at offset 0 and closes the body without reading it.
func ProbeServer(ctx context.Context, f Fetcher, rawurl string, headers http.Header) (*ProbeResult, error) {
	utils.Debug("Probing server: %s", rawurl)

	info, err := RequestFileInfo(ctx, f, rawurl, headers, 0)
	if err != nil {
		return nil, err
	}
	_ = info.Body.Close()

	return &ProbeResult{
		FileSize:      info.TotalSize,
		SupportsRange: info.SupportsRange,
		Filename:      info.Filename,
		ContentType:   info.ContentType,
	}, nil
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*types.KB))
	_ = body.Close()
}
