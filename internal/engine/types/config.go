package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// StagingSuffix is appended to the destination path while downloading
	StagingSuffix = ".tmp"

	// LockSuffix is appended to the staging path for the cross-process run lock
	LockSuffix = ".lock"
)

// Transfer constants
const (
	ReadBuffer = 32 * KB

	SpeedSampleInterval = 1000 * time.Millisecond // Speed sample tick
	SpeedWindowSize     = 10                      // Samples kept for the moving average
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	MaxRedirects                 = 10
)

// Channel buffer sizes
const (
	ProgressChannelBuffer = 100
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool

	ReadBufferSize      int
	SpeedSampleInterval time.Duration
	SpeedWindowSize     int
	CheckDiskSpace      bool
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

// GetReadBufferSize returns configured value or default
func (r *RuntimeConfig) GetReadBufferSize() int {
	if r == nil || r.ReadBufferSize <= 0 {
		return ReadBuffer
	}
	return r.ReadBufferSize
}

// GetSpeedSampleInterval returns configured value or default
func (r *RuntimeConfig) GetSpeedSampleInterval() time.Duration {
	if r == nil || r.SpeedSampleInterval <= 0 {
		return SpeedSampleInterval
	}
	return r.SpeedSampleInterval
}

// GetSpeedWindowSize returns configured value or default
func (r *RuntimeConfig) GetSpeedWindowSize() int {
	if r == nil || r.SpeedWindowSize <= 0 {
		return SpeedWindowSize
	}
	return r.SpeedWindowSize
}

// ShouldCheckDiskSpace reports whether free space is checked before streaming
func (r *RuntimeConfig) ShouldCheckDiskSpace() bool {
	return r != nil && r.CheckDiskSpace
}
