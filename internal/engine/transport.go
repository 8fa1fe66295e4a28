package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// Fetcher issues a streaming GET. The caller owns the response body.
type Fetcher interface {
	Get(ctx context.Context, rawurl string, headers http.Header) (*http.Response, error)
}

// HTTPFetcher is a Fetcher backed by a reusable http.Client.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher builds a client from the runtime config: proxy (HTTP or
// SOCKS5), TLS verification and redirect handling that keeps caller headers.
func NewHTTPFetcher(runtime *types.RuntimeConfig) *HTTPFetcher {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
		// Byte offsets must match the stored bytes exactly
		DisableCompression: true,
	}

	if runtime != nil && runtime.ProxyURL != "" {
		parsedURL, err := url.Parse(runtime.ProxyURL)
		if err != nil {
			utils.Debug("Invalid proxy URL %s: %v", runtime.ProxyURL, err)
			transport.Proxy = http.ProxyFromEnvironment
		} else if strings.HasPrefix(parsedURL.Scheme, "socks5") {
			utils.Debug("Using SOCKS5 proxy: %s", parsedURL.Host)
			var auth *proxy.Auth
			if parsedURL.User != nil {
				pass, _ := parsedURL.User.Password()
				auth = &proxy.Auth{User: parsedURL.User.Username(), Password: pass}
			}
			socks, dialErr := proxy.SOCKS5("tcp", parsedURL.Host, auth, dialer)
			if dialErr != nil {
				utils.Debug("Failed to create SOCKS5 dialer: %v", dialErr)
				transport.Proxy = http.ProxyFromEnvironment
			} else if cd, ok := socks.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return socks.Dial(network, addr)
				}
			}
		} else {
			transport.Proxy = http.ProxyURL(parsedURL)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	if runtime != nil && runtime.SkipTLSVerification {
		utils.Debug("TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPFetcher{
		Client: &http.Client{
			Transport:     transport,
			CheckRedirect: preserveHeaders,
		},
		UserAgent: runtime.GetUserAgent(),
	}
}

// preserveHeaders copies the original request's headers (cookies, auth, ...)
// onto every redirect, which net/http drops when the host changes.
func preserveHeaders(req *http.Request, via []*http.Request) error {
	if len(via) >= types.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", types.MaxRedirects)
	}
	if len(via) > 0 {
		for key, vals := range via[0].Header {
			if key == "Range" {
				continue
			}
			req.Header[key] = vals
		}
	}
	return nil
}

// Get sends a GET with the given headers. A User-Agent is added only when the
// caller did not set one.
func (f *HTTPFetcher) Get(ctx context.Context, rawurl string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, vals := range headers {
		req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
	}
	if req.Header.Get("User-Agent") == "" {
		ua := f.UserAgent
		if ua == "" {
			ua = types.DefaultUserAgent
		}
		req.Header.Set("User-Agent", ua)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}
