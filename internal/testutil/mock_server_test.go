package testutil

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestMockServer_BasicDownload(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(64*1024),
		WithRangeSupport(true),
	)

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}

	if !bytes.Equal(data, server.Data()) {
		t.Error("Body does not match served data")
	}

	stats := server.Stats()
	if stats.TotalRequests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.TotalRequests)
	}
	if stats.FullRequests != 1 {
		t.Errorf("Expected 1 full request, got %d", stats.FullRequests)
	}
}

func TestMockServer_OpenEndedRangeRequest(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(1000))

	req, _ := http.NewRequest(http.MethodGet, server.URL(), nil)
	req.Header.Set("Range", "bytes=400-")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("Expected 206, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 400-999/1000" {
		t.Errorf("Unexpected Content-Range: %q", got)
	}

	data, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(data, server.Data()[400:]) {
		t.Error("Range body does not match served data")
	}

	if headers := server.RangeHeaders(); len(headers) != 1 || headers[0] != "bytes=400-" {
		t.Errorf("Unexpected recorded range headers: %v", headers)
	}
}

func TestMockServer_UnsatisfiableRange(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(1000))

	req, _ := http.NewRequest(http.MethodGet, server.URL(), nil)
	req.Header.Set("Range", "bytes=1000-")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("Expected 416, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes */1000" {
		t.Errorf("Unexpected Content-Range: %q", got)
	}
}

func TestMockServer_IgnoresRangeWhenUnsupported(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(1000), WithRangeSupport(false))

	req, _ := http.NewRequest(http.MethodGet, server.URL(), nil)
	req.Header.Set("Range", "bytes=300-")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.ContentLength != 1000 {
		t.Errorf("Expected Content-Length 1000, got %d", resp.ContentLength)
	}
}

func TestMockServer_FailAfterBytes(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(100*1024),
		WithFailAfterBytes(10*1024),
	)

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Error("Expected a read error for a truncated body")
	}
	if len(data) != 10*1024 {
		t.Errorf("Expected 10KB before failure, got %d", len(data))
	}
}

func TestMockServer_HoldAndRelease(t *testing.T) {
	server := NewMockServerT(t,
		WithFileSize(1000),
		WithHoldAfterBytes(400),
	)

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	select {
	case <-server.Held():
	case <-time.After(5 * time.Second):
		t.Fatal("Response never reached the hold point")
	}

	buf := make([]byte, 400)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		t.Fatalf("Failed to read held prefix: %v", err)
	}

	server.Release()
	server.Release() // idempotent

	rest, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read remainder: %v", err)
	}
	if len(rest) != 600 {
		t.Errorf("Expected 600 remaining bytes, got %d", len(rest))
	}
}

func TestMockServer_WithoutLength(t *testing.T) {
	server := NewMockServerT(t, WithFileSize(2048), WithoutLength())

	resp, err := http.Get(server.URL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.ContentLength != -1 {
		t.Errorf("Expected unknown length, got %d", resp.ContentLength)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		size       int64
		start, end int64
		wantErr    bool
	}{
		{"bytes=0-499", 1000, 0, 499, false},
		{"bytes=500-", 1000, 500, 999, false},
		{"bytes=-100", 1000, 900, 999, false},
		{"bytes=900-2000", 1000, 900, 999, false},
		{"bytes=1000-", 1000, 0, 0, true},
		{"items=0-1", 1000, 0, 0, true},
		{"bytes=abc-", 1000, 0, 0, true},
	}

	for _, tt := range tests {
		start, end, err := parseRange(tt.header, tt.size)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseRange(%q) expected error", tt.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRange(%q) unexpected error: %v", tt.header, err)
			continue
		}
		if start != tt.start || end != tt.end {
			t.Errorf("parseRange(%q) = %d-%d, want %d-%d", tt.header, start, end, tt.start, tt.end)
		}
	}
}
