package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/surge-downloader/trickle/internal/engine/types"
)

// ProgressMsg represents a progress update from the task
type ProgressMsg struct {
	DownloadID string
	Update     types.ProgressUpdate
	Elapsed    time.Duration
}

// DownloadStartedMsg is sent when a run actually starts (after range negotiation)
type DownloadStartedMsg struct {
	DownloadID    string
	URL           string
	Filename      string
	Total         int64
	ResumeOffset  int64
	SupportsRange bool
	DestPath      string // Full path to the destination file
}

// DownloadPausedMsg ends a run that was stopped; staged bytes are kept
type DownloadPausedMsg struct {
	DownloadID string
	Filename   string
	Downloaded int64
}

// DownloadCompleteMsg signals that the download finished successfully
type DownloadCompleteMsg struct {
	DownloadID  string
	Filename    string
	Elapsed     time.Duration
	Total       int64
	ContentType string // sniffed from the finished file, empty if unknown
}

// DownloadRemovedMsg ends the feed of a cancelled task
type DownloadRemovedMsg struct {
	DownloadID string
	Filename   string
}

// DownloadErrorMsg signals that an error occurred
type DownloadErrorMsg struct {
	DownloadID string
	Filename   string
	Err        error
}

func (m DownloadErrorMsg) MarshalJSON() ([]byte, error) {
	type encoded struct {
		DownloadID string `json:"DownloadID"`
		Filename   string `json:"Filename,omitempty"`
		Err        string `json:"Err,omitempty"`
	}

	out := encoded{
		DownloadID: m.DownloadID,
		Filename:   m.Filename,
	}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}

	return json.Marshal(out)
}

func (m *DownloadErrorMsg) UnmarshalJSON(data []byte) error {
	var aux struct {
		DownloadID string          `json:"DownloadID"`
		Filename   string          `json:"Filename"`
		Err        json.RawMessage `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.DownloadID = aux.DownloadID
	m.Filename = aux.Filename
	m.Err = nil

	if len(aux.Err) == 0 {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Err, &errStr); err == nil {
		if errStr != "" {
			m.Err = errors.New(errStr)
		}
		return nil
	}

	// Accept non-string payloads (e.g. {}).
	raw := string(aux.Err)
	if raw != "" && raw != "null" {
		m.Err = errors.New(raw)
	}
	return nil
}

// IsTerminal reports whether msg ends a feed.
func IsTerminal(msg any) bool {
	switch msg.(type) {
	case DownloadCompleteMsg, DownloadErrorMsg, DownloadPausedMsg, DownloadRemovedMsg:
		return true
	}
	return false
}
