package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// NewHTTPServerT starts an httptest server on 127.0.0.1 over tcp4, skipping the
// test when no listener can be opened. The server is closed on test cleanup.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}

	srv := &httptest.Server{
		Listener: ln,
		Config: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
