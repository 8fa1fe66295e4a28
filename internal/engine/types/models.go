package types

// TaskState is the lifecycle state of a download task
type TaskState int

const (
	StateIdle TaskState = iota
	StateRunning
	StateStopped
	StateCompleted
)

func (s TaskState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// SpeedUnknown is reported before the first speed sample of a run
const SpeedUnknown int64 = 0

// ProgressUpdate is a snapshot of a task's transfer. It is replaced wholesale on
// every change and never mutated in place.
type ProgressUpdate struct {
	State            TaskState `json:"state"`
	ReceivedBytes    int64     `json:"received_bytes"`
	TotalSize        int64     `json:"total_size"` // 0 = unknown
	SpeedBytesPerSec int64     `json:"speed"`
	SpeedSampleCount int       `json:"speed_samples"`
}

// ProgressPercent returns received/total*100, or -1 when the total is unknown or
// smaller than what was received. A completed transfer is always 100, including
// an empty resource.
func (p ProgressUpdate) ProgressPercent() float64 {
	if p.State == StateCompleted {
		return 100
	}
	if p.TotalSize <= 0 || p.TotalSize < p.ReceivedBytes {
		return -1
	}
	return float64(p.ReceivedBytes) / float64(p.TotalSize) * 100
}

// RemainingSeconds estimates seconds left at the current speed, or -1 when the
// speed is unknown or progress is invalid.
func (p ProgressUpdate) RemainingSeconds() int64 {
	if p.SpeedBytesPerSec <= 0 || p.ProgressPercent() < 0 {
		return -1
	}
	return (p.TotalSize - p.ReceivedBytes) / p.SpeedBytesPerSec
}

// With returns a copy of p in the given state.
func (p ProgressUpdate) With(state TaskState) ProgressUpdate {
	p.State = state
	return p
}
