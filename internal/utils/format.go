package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ConvertBytesToHumanReadable formats a byte count with IEC units (KiB, MiB, ...).
func ConvertBytesToHumanReadable(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}

// FormatSpeed formats a bytes/second rate, or "--" while it is unknown.
func FormatSpeed(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "--"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// FormatETA formats a remaining-seconds estimate, or "--" for the -1 sentinel.
func FormatETA(seconds int64) string {
	if seconds < 0 {
		return "--"
	}
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
