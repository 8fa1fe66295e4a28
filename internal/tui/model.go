// Package tui renders a single download's progress in the terminal.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"

	"github.com/surge-downloader/trickle/internal/engine/types"
)

// Model follows one task's event feed until its terminal message.
type Model struct {
	Filename string
	DestPath string

	update        types.ProgressUpdate
	elapsed       time.Duration
	resumeOffset  int64
	supportsRange bool

	bar   progress.Model
	width int

	events <-chan any
	stop   func()

	stopping bool
	done     bool
	outcome  any
}

// feedClosedMsg is delivered when the task's feed closes.
type feedClosedMsg struct{}

// stoppedMsg is delivered once the stop callback has returned.
type stoppedMsg struct{}

// New creates a model reading from feed. stop is called (off the UI
// goroutine) when the user asks to pause.
func New(filename, destPath string, feed <-chan any, stop func()) Model {
	opts := []progress.Option{
		progress.WithDefaultGradient(),
		progress.WithWidth(DefaultProgressWidth),
	}
	if noColor {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii))
	}

	return Model{
		Filename: filename,
		DestPath: destPath,
		update:   types.ProgressUpdate{State: types.StateRunning, SpeedBytesPerSec: types.SpeedUnknown},
		bar:      progress.New(opts...),
		events:   feed,
		stop:     stop,
	}
}

func (m Model) Init() tea.Cmd {
	return listenForActivity(m.events)
}

// Outcome returns the terminal event that ended the feed, or nil if the
// program quit before one arrived.
func (m Model) Outcome() any {
	return m.outcome
}

// Progress returns the last snapshot shown.
func (m Model) Progress() types.ProgressUpdate {
	return m.update
}

func listenForActivity(sub <-chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return feedClosedMsg{}
		}
		return msg
	}
}

func stopCmd(stop func()) tea.Cmd {
	return func() tea.Msg {
		if stop != nil {
			stop()
		}
		return stoppedMsg{}
	}
}
