package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/types"
)

// Update handles feed events, key presses and resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case events.DownloadStartedMsg:
		if msg.Filename != "" {
			m.Filename = msg.Filename
		}
		m.resumeOffset = msg.ResumeOffset
		m.supportsRange = msg.SupportsRange
		m.update.TotalSize = msg.Total
		m.update.ReceivedBytes = msg.ResumeOffset
		return m, listenForActivity(m.events)

	case events.ProgressMsg:
		m.update = msg.Update
		m.elapsed = msg.Elapsed
		return m, listenForActivity(m.events)

	case events.DownloadCompleteMsg:
		m.update = types.ProgressUpdate{
			State:         types.StateCompleted,
			ReceivedBytes: msg.Total,
			TotalSize:     msg.Total,
		}
		m.elapsed = msg.Elapsed
		return m.finish(msg)

	case events.DownloadPausedMsg:
		m.update = m.update.With(types.StateStopped)
		m.update.ReceivedBytes = msg.Downloaded
		m.update.SpeedBytesPerSec = types.SpeedUnknown
		return m.finish(msg)

	case events.DownloadErrorMsg:
		m.update = m.update.With(types.StateStopped)
		m.update.SpeedBytesPerSec = types.SpeedUnknown
		return m.finish(msg)

	case events.DownloadRemovedMsg:
		m.update = types.ProgressUpdate{State: types.StateIdle}
		return m.finish(msg)

	case feedClosedMsg:
		m.done = true
		return m, tea.Quit

	case stoppedMsg:
		// The paused event follows on the feed
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - ProgressBarWidthOffset
		if w > MaxProgressWidth {
			w = MaxProgressWidth
		}
		if w < 10 {
			w = 10
		}
		m.bar.Width = w
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done || m.stopping {
				return m, tea.Quit
			}
			m.stopping = true
			return m, stopCmd(m.stop)
		}
	}

	return m, nil
}

func (m Model) finish(outcome any) (tea.Model, tea.Cmd) {
	m.outcome = outcome
	m.done = true
	return m, tea.Quit
}
