package types

import "github.com/surge-downloader/trickle/internal/config"

// ConvertRuntimeConfig converts the app-level RuntimeConfig to the engine-level RuntimeConfig.
func ConvertRuntimeConfig(rc *config.RuntimeConfig) *RuntimeConfig {
	if rc == nil {
		return nil
	}
	return &RuntimeConfig{
		UserAgent:           rc.UserAgent,
		ProxyURL:            rc.ProxyURL,
		SkipTLSVerification: rc.SkipTLSVerification,
		ReadBufferSize:      rc.ReadBufferSize,
		SpeedSampleInterval: rc.SpeedSampleInterval,
		SpeedWindowSize:     rc.SpeedWindowSize,
		CheckDiskSpace:      rc.CheckDiskSpace,
	}
}
